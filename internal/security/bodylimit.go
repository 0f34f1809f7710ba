// Package security holds request hardening middleware for the billing API.
package security

import (
	"net/http"

	"github.com/noah-isme/backend-bengkel/internal/common"
)

// BodyLimit caps request payloads. Declared lengths above Max are refused
// up front; chunked bodies are cut off by http.MaxBytesReader and surface
// as a decode error in the handler.
type BodyLimit struct {
	Max int64
}

// Middleware rejects oversized requests with 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large", map[string]any{"maxBytes": b.Max})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
