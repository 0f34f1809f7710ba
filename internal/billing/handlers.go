package billing

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/docnumber"
)

// Handler serves one document kind under its own route prefix.
type Handler struct {
	svc            *Service
	kind           docnumber.Kind
	logger         zerolog.Logger
	defaultPerPage int
	maxPerPage     int
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Service        *Service
	Kind           docnumber.Kind
	Logger         zerolog.Logger
	DefaultPerPage int
	MaxPerPage     int
}

// NewHandler constructs a Handler for cfg.Kind.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		svc:            cfg.Service,
		kind:           cfg.Kind,
		logger:         cfg.Logger,
		defaultPerPage: cfg.DefaultPerPage,
		maxPerPage:     cfg.MaxPerPage,
	}
	if h.defaultPerPage < 1 {
		h.defaultPerPage = 20
	}
	if h.maxPerPage < h.defaultPerPage {
		h.maxPerPage = max(100, h.defaultPerPage)
	}
	return h
}

// Create handles POST /{kind}s.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	doc, err := h.svc.Create(r.Context(), h.kind, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/"+string(h.kind)+"s/"+strconv.FormatInt(doc.ID, 10))
	common.Data(w, http.StatusCreated, doc)
}

// Get handles GET /{kind}s/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	doc, err := h.svc.Get(r.Context(), h.kind, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, doc)
}

// List handles GET /{kind}s?customerId=&paid=&page=&per_page=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Page: common.ParsePagination(r, h.defaultPerPage, h.maxPerPage)}
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("customerId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			common.WriteError(w, common.Validation("INVALID_FILTER", "customerId must be a positive integer", err))
			return
		}
		filter.CustomerID = &id
	}
	if v := strings.TrimSpace(q.Get("paid")); v != "" {
		if h.kind != docnumber.KindInvoice {
			common.WriteError(w, common.Validation("INVALID_FILTER", "paid filter applies to invoices only", nil))
			return
		}
		paid, err := strconv.ParseBool(v)
		if err != nil {
			common.WriteError(w, common.Validation("INVALID_FILTER", "paid must be true or false", err))
			return
		}
		filter.Paid = &paid
	}

	res, err := h.svc.List(r.Context(), h.kind, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page := filter.Page
	page.TotalItems = int(res.Total)
	w.Header().Set("X-Total-Count", strconv.FormatInt(res.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{"data": res.Items, "pagination": page})
}

// Update handles PATCH /{kind}s/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req UpdateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	doc, err := h.svc.Update(r.Context(), h.kind, id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, doc)
}

// Delete handles DELETE /{kind}s/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), h.kind, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewHandler serves POST /billing/preview.
type PreviewHandler struct {
	Service *Service
	Logger  zerolog.Logger
}

// Preview prices a request without storing it.
func (h PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Service.Preview(r.Context(), req)
	if err != nil {
		writeError(h.Logger, w, r, err)
		return
	}
	common.Data(w, http.StatusOK, p)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(h.logger, w, r, err)
}

func writeError(logger zerolog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	mapped := ToAppError(err)
	var appErr *common.AppError
	if !errors.As(mapped, &appErr) || appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("billing request failed")
	}
	common.WriteError(w, mapped)
}
