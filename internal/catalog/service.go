// Package catalog serves the job material catalog that prices document line items.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-bengkel/internal/common"
	"github.com/noah-isme/backend-bengkel/internal/store"
	"github.com/noah-isme/backend-bengkel/internal/validation"
)

// Catalog errors.
var (
	ErrMaterialNotFound = errors.New("catalog: material not found")
	ErrDuplicateName    = errors.New("catalog: material name already exists")
	ErrMaterialInUse    = errors.New("catalog: material is referenced by a billing document")
	ErrNegativeCost     = errors.New("catalog: product cost must not be negative")
)

// Querier is the persistence surface the catalog needs.
type Querier interface {
	GetMaterial(ctx context.Context, id int64) (store.Material, error)
	ListMaterials(ctx context.Context, arg store.ListMaterialsParams) ([]store.Material, error)
	CountMaterials(ctx context.Context, name string) (int64, error)
	CreateMaterial(ctx context.Context, name string, cost decimal.Decimal) (store.Material, error)
	UpdateMaterial(ctx context.Context, id int64, name string, cost decimal.Decimal) (store.Material, error)
	DeleteMaterial(ctx context.Context, id int64) (int64, error)
}

// Lookup resolves a single material and its current cost.
type Lookup interface {
	GetMaterial(ctx context.Context, id int64) (Material, error)
}

// Material is the catalog entry exposed to callers.
type Material struct {
	ID          int64           `json:"id"`
	ProductName string          `json:"productName"`
	ProductCost decimal.Decimal `json:"productCost"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CreateInput is the body of POST /materials.
type CreateInput struct {
	ProductName string          `json:"productName" validate:"required,max=255"`
	ProductCost decimal.Decimal `json:"productCost"`
}

// UpdateInput is the body of PATCH /materials/{id}. Nil fields are left unchanged.
type UpdateInput struct {
	ProductName *string          `json:"productName" validate:"omitempty,min=1,max=255"`
	ProductCost *decimal.Decimal `json:"productCost"`
}

// ListResult is a page of materials.
type ListResult struct {
	Items []Material `json:"items"`
	Total int64      `json:"total"`
}

// Service orchestrates catalog queries and caching.
type Service struct {
	queries   Querier
	cache     *Cache
	validator *validation.Validator
	logger    zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries   Querier
	Cache     *Cache
	Validator *validation.Validator
	Logger    zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}
	return &Service{queries: cfg.Queries, cache: cfg.Cache, validator: v, logger: cfg.Logger}, nil
}

// GetMaterial implements Lookup, reading through the cache.
func (s *Service) GetMaterial(ctx context.Context, id int64) (Material, error) {
	key := ""
	if s.cache.enabled() {
		key = s.cache.materialKey(id)
		var cached Material
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached, nil
		} else if err != nil {
			s.logger.Warn().Err(err).Int64("material_id", id).Msg("catalog cache read")
		}
	}
	row, err := s.queries.GetMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("%w: %d", ErrMaterialNotFound, id)
		}
		return Material{}, fmt.Errorf("get material: %w", err)
	}
	m := fromRow(row)
	if err := s.cache.SetJSON(ctx, key, m); err != nil {
		s.logger.Warn().Err(err).Int64("material_id", id).Msg("catalog cache write")
	}
	return m, nil
}

// List returns a page of materials whose name contains name (case-insensitive).
func (s *Service) List(ctx context.Context, name string, page common.Pagination) (ListResult, error) {
	name = strings.TrimSpace(name)
	var key string
	if s.cache.enabled() {
		k, err := s.cache.listKey(ctx, name, page.Page, page.PerPage)
		if err == nil {
			key = k
			var cached ListResult
			if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
				return cached, nil
			}
		}
	}

	total, err := s.queries.CountMaterials(ctx, name)
	if err != nil {
		return ListResult{}, fmt.Errorf("count materials: %w", err)
	}
	rows, err := s.queries.ListMaterials(ctx, store.ListMaterialsParams{Name: name, Limit: page.PerPage, Offset: page.Offset()})
	if err != nil {
		return ListResult{}, fmt.Errorf("list materials: %w", err)
	}
	result := ListResult{Items: make([]Material, 0, len(rows)), Total: total}
	for _, row := range rows {
		result.Items = append(result.Items, fromRow(row))
	}
	if err := s.cache.SetJSON(ctx, key, result); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write")
	}
	return result, nil
}

// Create adds a material to the catalog.
func (s *Service) Create(ctx context.Context, in CreateInput) (Material, error) {
	in.ProductName = strings.TrimSpace(in.ProductName)
	if err := s.validator.Struct(in); err != nil {
		return Material{}, err
	}
	if in.ProductCost.IsNegative() {
		return Material{}, ErrNegativeCost
	}
	row, err := s.queries.CreateMaterial(ctx, in.ProductName, in.ProductCost.Round(2))
	if err != nil {
		return Material{}, mapWriteError(err)
	}
	s.invalidate(ctx, 0)
	return fromRow(row), nil
}

// Update changes a material's name or cost. Line items already attached to
// documents keep the price they were created with.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Material, error) {
	if in.ProductName != nil {
		trimmed := strings.TrimSpace(*in.ProductName)
		in.ProductName = &trimmed
	}
	if err := s.validator.Struct(in); err != nil {
		return Material{}, err
	}
	if in.ProductCost != nil && in.ProductCost.IsNegative() {
		return Material{}, ErrNegativeCost
	}
	current, err := s.queries.GetMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("%w: %d", ErrMaterialNotFound, id)
		}
		return Material{}, fmt.Errorf("get material: %w", err)
	}
	name, cost := current.ProductName, current.ProductCost
	if in.ProductName != nil {
		name = *in.ProductName
	}
	if in.ProductCost != nil {
		cost = in.ProductCost.Round(2)
	}
	row, err := s.queries.UpdateMaterial(ctx, id, name, cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, fmt.Errorf("%w: %d", ErrMaterialNotFound, id)
		}
		return Material{}, mapWriteError(err)
	}
	s.invalidate(ctx, id)
	return fromRow(row), nil
}

// Delete removes a material that no document references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteMaterial(ctx, id)
	if err != nil {
		return mapWriteError(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrMaterialNotFound, id)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int64("material_id", id).Msg("catalog cache invalidate")
	}
}

func mapWriteError(err error) error {
	switch {
	case store.IsPgCode(err, store.CodeUniqueViolation):
		return fmt.Errorf("%w: %w", ErrDuplicateName, err)
	case store.IsPgCode(err, store.CodeForeignKeyViolation):
		return fmt.Errorf("%w: %w", ErrMaterialInUse, err)
	default:
		return fmt.Errorf("write material: %w", err)
	}
}

func fromRow(row store.Material) Material {
	return Material{
		ID:          row.ID,
		ProductName: row.ProductName,
		ProductCost: row.ProductCost,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
