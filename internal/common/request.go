package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// DecodeJSON decodes the request body into dst, rejecting unknown fields and
// trailing data. Failures are returned as INVALID_JSON validation errors.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return Validation("INVALID_JSON", "request body is required", err)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return NewAppError("PAYLOAD_TOO_LARGE", "request body is too large", http.StatusRequestEntityTooLarge, err).
				WithDetails(map[string]any{"maxBytes": maxErr.Limit})
		}
		var details any
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			details = map[string]any{"offset": syntaxErr.Offset}
		case errors.As(err, &typeErr):
			details = map[string]any{"field": typeErr.Field}
		}
		return Validation("INVALID_JSON", "request body is not valid JSON", err).WithDetails(details)
	}
	if dec.More() {
		return Validation("INVALID_JSON", "request body must contain a single JSON object", nil)
	}
	return nil
}

// IDParam parses a positive int64 URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, Validation("INVALID_ID", name+" must be a positive integer", err).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
