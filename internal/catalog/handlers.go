package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/validation"
)

// Handler exposes the material catalog endpoints.
type Handler struct {
	service        *Service
	defaultPerPage int
	maxPerPage     int
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service        *Service
	DefaultPerPage int
	MaxPerPage     int
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{service: cfg.Service, defaultPerPage: cfg.DefaultPerPage, maxPerPage: cfg.MaxPerPage}
	if h.defaultPerPage < 1 {
		h.defaultPerPage = 20
	}
	if h.maxPerPage < h.defaultPerPage {
		h.maxPerPage = 100
	}
	return h
}

type materialView struct {
	ID          int64     `json:"id"`
	ProductName string    `json:"productName"`
	ProductCost string    `json:"productCost"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func view(m Material) materialView {
	return materialView{
		ID:          m.ID,
		ProductName: m.ProductName,
		ProductCost: m.ProductCost.StringFixed(2),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// List handles GET /api/v1/materials.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := common.ParsePagination(r, h.defaultPerPage, h.maxPerPage)
	result, err := h.service.List(r.Context(), r.URL.Query().Get("name"), page)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	items := make([]materialView, 0, len(result.Items))
	for _, m := range result.Items {
		items = append(items, view(m))
	}
	page.TotalItems = int(result.Total)
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": page})
}

// Get handles GET /api/v1/materials/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.Data(w, http.StatusOK, view(m))
}

// Create handles POST /api/v1/materials.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.service.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.Data(w, http.StatusCreated, view(m))
}

// Update handles PATCH /api/v1/materials/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in UpdateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	m, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	common.Data(w, http.StatusOK, view(m))
}

// Delete handles DELETE /api/v1/materials/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		common.WriteError(w, ToAppError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToAppError maps catalog errors onto API errors.
func ToAppError(err error) error {
	var verrs validation.Errors
	switch {
	case err == nil || common.IsAppError(err):
		return err
	case errors.As(err, &verrs):
		return common.Validation("VALIDATION_FAILED", "request validation failed", err).
			WithDetails(map[string]any{"fields": verrs})
	case errors.Is(err, ErrMaterialNotFound):
		return common.NotFound("MATERIAL_NOT_FOUND", "material not found", err)
	case errors.Is(err, ErrNegativeCost):
		return common.Validation("NEGATIVE_PRODUCT_COST", "productCost must not be negative", err)
	case errors.Is(err, ErrDuplicateName):
		return common.Conflict("DUPLICATE_MATERIAL", "a material with this name already exists", err)
	case errors.Is(err, ErrMaterialInUse):
		return common.Conflict("MATERIAL_IN_USE", "material is attached to a billing document", err)
	default:
		return common.Internal("INTERNAL", "internal server error", http.StatusInternalServerError, err)
	}
}
