package production

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-garment/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (*chi.Mux, *harness) {
	t.Helper()
	h := newHarness(t)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.svc, 1000)
	r := chi.NewRouter()
	r.Route("/api", handler.MountRoutes)
	return r, h
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func problemOf(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerPipeline(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/orders", map[string]any{
		"lot_number": "LOT-77",
		"product_id": 3,
		"items": []map[string]any{
			{"color": "Blue", "size": "M", "quantity": 10},
			{"color": "Blue", "size": "L", "quantity": 5},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

	rec = doJSON(t, r, http.MethodPost, "/api/orders/1/ship", map[string]any{"partner": "Confecção X", "unit_price": "1.75"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var shipment Shipment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shipment))
	require.Equal(t, "1.75", shipment.UnitPrice.StringFixed(2))

	rec = doJSON(t, r, http.MethodPost, "/api/shipments/1/returns", map[string]any{
		"items":      map[string]map[string]int{"Blue": {"M": 11}},
		"conferente": "João",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "Validation Error", problemOf(t, rec).Title)

	rec = doJSON(t, r, http.MethodPost, "/api/shipments/1/returns", map[string]any{
		"items":      map[string]map[string]int{"Blue": {"M": 6, "L": 5}},
		"conferente": "",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Required Field Missing", problemOf(t, rec).Title)

	rec = doJSON(t, r, http.MethodPost, "/api/shipments/1/returns", map[string]any{
		"items":      map[string]map[string]int{"Blue": {"M": 6, "L": 5}},
		"conferente": "João",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result ReturnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Child)
	require.Equal(t, 4, result.Child.SentQuantity)

	rec = doJSON(t, r, http.MethodDelete, "/api/shipments/1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/shipments/2/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chain []Shipment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chain))
	require.Len(t, chain, 2)

	rec = doJSON(t, r, http.MethodGet, "/api/orders/1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	require.Equal(t, 11, progress.Received)
	require.Equal(t, 4, progress.Outstanding)
}

func TestHandlerDrafts(t *testing.T) {
	r, h := newTestRouter(t)
	order := h.orderInQC(t)
	path := "/api/orders/" + itoa(order.ID) + "/drafts/revision"

	rec := doJSON(t, r, http.MethodPut, path, map[string]any{"color": "Blue", "size": "M", "quantity": 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodPut, path, map[string]any{"color": "Blue", "size": "M", "quantity": 70})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"Blue":{"M":7}}`, rec.Body.String())

	rec = doJSON(t, r, http.MethodGet, "/api/orders/1/drafts/cutting", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/orders/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/orders/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/orders", map[string]any{"lot_number": "X", "product_id": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code, "validator rejects missing items")

	rec = doJSON(t, r, http.MethodPost, "/api/orders", map[string]any{"lot": "X"})
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are refused")

	rec = doJSON(t, r, http.MethodPost, "/api/orders/99/revision/revert", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"orders":[],"pagination":{"page":1,"per_page":20,"total":0,"total_pages":0}}`, rec.Body.String())
}

func TestRouteContextLookup(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", "12")
	req = req.WithContext(contextWithRoute(req, routeCtx))
	id, err := pathID(req, "id")
	require.NoError(t, err)
	require.Equal(t, int64(12), id)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func contextWithRoute(req *http.Request, routeCtx *chi.Context) context.Context {
	return context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
}
