package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-bengkel/internal/catalog"
)

func newRouter(t *testing.T) (http.Handler, *fakeQueries) {
	t.Helper()
	q := newFakeQueries()
	h := catalog.NewHandler(catalog.HandlerConfig{Service: newService(t, q, true), DefaultPerPage: 2, MaxPerPage: 5})
	r := chi.NewRouter()
	r.Route("/api/v1/materials", func(m chi.Router) {
		m.Get("/", h.List)
		m.Post("/", h.Create)
		m.Get("/{id}", h.Get)
		m.Patch("/{id}", h.Update)
		m.Delete("/{id}", h.Delete)
	})
	return r, q
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type materialBody struct {
	Data struct {
		ID          int64  `json:"id"`
		ProductName string `json:"productName"`
		ProductCost string `json:"productCost"`
	} `json:"data"`
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
		Kind string `json:"kind"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMaterialHandlersLifecycle(t *testing.T) {
	r, _ := newRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/materials", `{"productName":"Oil filter","productCost":"12.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[materialBody](t, rec)
	require.Equal(t, "12.50", created.Data.ProductCost)

	rec = do(t, r, http.MethodPost, "/api/v1/materials", `{"productName":"Air filter","productCost":7}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/v1/materials", `{"productName":"Wiper","productCost":"3.10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/materials?page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", rec.Header().Get("X-Total-Count"))
	var list struct {
		Data       []json.RawMessage `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			PerPage    int `json:"per_page"`
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.Equal(t, 2, list.Pagination.Page)
	require.Equal(t, 2, list.Pagination.PerPage)
	require.Equal(t, 3, list.Pagination.TotalItems)

	rec = do(t, r, http.MethodPatch, "/api/v1/materials/1", `{"productCost":"14"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[materialBody](t, rec)
	require.Equal(t, "Oil filter", updated.Data.ProductName)
	require.Equal(t, "14.00", updated.Data.ProductCost)

	rec = do(t, r, http.MethodGet, "/api/v1/materials/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "14.00", decode[materialBody](t, rec).Data.ProductCost)

	rec = do(t, r, http.MethodDelete, "/api/v1/materials/1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/v1/materials/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "MATERIAL_NOT_FOUND", decode[errorBody](t, rec).Error.Code)
}

func TestMaterialHandlersErrors(t *testing.T) {
	r, q := newRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
		kind   string
	}{
		{"bad id", http.MethodGet, "/api/v1/materials/abc", "", http.StatusBadRequest, "INVALID_ID", "VALIDATION_ERROR"},
		{"bad json", http.MethodPost, "/api/v1/materials", `{"productName":`, http.StatusBadRequest, "INVALID_JSON", "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/api/v1/materials", `{"name":"x"}`, http.StatusBadRequest, "INVALID_JSON", "VALIDATION_ERROR"},
		{"missing name", http.MethodPost, "/api/v1/materials", `{"productCost":"1"}`, http.StatusBadRequest, "VALIDATION_FAILED", "VALIDATION_ERROR"},
		{"negative cost", http.MethodPost, "/api/v1/materials", `{"productName":"x","productCost":"-1"}`, http.StatusBadRequest, "NEGATIVE_PRODUCT_COST", "VALIDATION_ERROR"},
		{"missing delete", http.MethodDelete, "/api/v1/materials/77", "", http.StatusNotFound, "MATERIAL_NOT_FOUND", "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, r, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code)
			body := decode[errorBody](t, rec)
			require.Equal(t, tc.code, body.Error.Code)
			require.Equal(t, tc.kind, body.Error.Kind)
		})
	}

	rec := do(t, r, http.MethodPost, "/api/v1/materials", `{"productName":"Belt","productCost":"9"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/v1/materials", `{"productName":"Belt","productCost":"9"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "DUPLICATE_MATERIAL", decode[errorBody](t, rec).Error.Code)

	id := decode[materialBody](t, do(t, r, http.MethodGet, "/api/v1/materials/1", "")).Data.ID
	q.inUse[id] = true
	rec = do(t, r, http.MethodDelete, "/api/v1/materials/1", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "MATERIAL_IN_USE", decode[errorBody](t, rec).Error.Code)
}
