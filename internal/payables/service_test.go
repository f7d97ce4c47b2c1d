package payables

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-garment/internal/production"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

type fakeLedger struct {
	mu            sync.Mutex
	shipments     []production.Shipment
	orders        map[int64]production.Order
	payments      []production.PaymentRecord
	shipmentLoads int
	failPayments  error
}

func (l *fakeLedger) ListShipments(ctx context.Context, filter production.ShipmentFilter) ([]production.Shipment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shipmentLoads++
	return append([]production.Shipment(nil), l.shipments...), nil
}

func (l *fakeLedger) GetShipment(ctx context.Context, id int64) (production.Shipment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.shipments {
		if s.ID == id {
			return s, nil
		}
	}
	return production.Shipment{}, production.ErrShipmentNotFound
}

func (l *fakeLedger) GetOrder(ctx context.Context, id int64) (production.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[id]
	if !ok {
		return production.Order{}, production.ErrOrderNotFound
	}
	return order, nil
}

func (l *fakeLedger) ListPayments(ctx context.Context) ([]production.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failPayments != nil {
		return nil, l.failPayments
	}
	return append([]production.PaymentRecord(nil), l.payments...), nil
}

func (l *fakeLedger) RecordPayment(ctx context.Context, p production.PaymentRecord) (production.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.ID = int64(len(l.payments) + 1)
	l.payments = append(l.payments, p)
	return p, nil
}

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newLedger() *fakeLedger {
	at := day(2024, 3, 10, 17)
	return &fakeLedger{
		shipments: []production.Shipment{
			returned(1, 10, "Confecção X", 15, "2.50", at),
			{ID: 2, OrderID: 11, SubcontractorName: "Oficina Y", SentQuantity: 8, Status: production.ShipmentSent},
		},
		orders: map[int64]production.Order{10: {ID: 10, LotNumber: "LOT-010"}},
	}
}

func newCachedService(t *testing.T, ledger Ledger) (*Service, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(ledger, NewCache(client, time.Hour), &auditSpy{}, nil)
	svc.SetClock(func() time.Time { return day(2024, 3, 12, 9) })
	return svc, srv
}

func TestServiceListDerivesOverduePayables(t *testing.T) {
	svc, _ := newCachedService(t, newLedger())

	items, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "LOT-010", items[0].LotNumber)
	assert.True(t, items[0].IsOverdue)
	assert.Equal(t, 1, items[0].DaysOverdue)
	assert.True(t, items[0].Total.Equal(decimal.RequireFromString("37.5")))

	overdue, err := svc.Overdue(context.Background())
	require.NoError(t, err)
	assert.Len(t, overdue, 1)
}

func TestServiceCachesProjectionUntilPayment(t *testing.T) {
	ledger := newLedger()
	svc, _ := newCachedService(t, ledger)
	ctx := context.Background()

	_, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	_, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.shipmentLoads)

	_, err = svc.RecordPayment(ctx, PaymentInput{ShipmentID: 1, Amount: decimal.RequireFromString("10")})
	require.NoError(t, err)

	items, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.shipmentLoads)
	require.Len(t, items, 1)
	assert.Equal(t, StatusPartial, items[0].Status)
	assert.True(t, items[0].AmountPaid.Equal(decimal.RequireFromString("10")))
}

func TestServiceShipmentsChangedInvalidates(t *testing.T) {
	ledger := newLedger()
	svc, _ := newCachedService(t, ledger)
	ctx := context.Background()

	_, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.NoError(t, svc.cache.ShipmentsChanged(ctx))
	_, err = svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.shipmentLoads)
}

func TestServiceWithoutCache(t *testing.T) {
	ledger := newLedger()
	svc := NewService(ledger, nil, nil, nil)
	svc.SetClock(func() time.Time { return day(2024, 3, 11, 9) })

	items, err := svc.List(context.Background(), Filter{Partner: "  confecção   x "})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsOverdue)

	_, err = svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.shipmentLoads)
}

func TestServiceListRejectsUnknownStatus(t *testing.T) {
	svc := NewService(newLedger(), nil, nil, nil)

	_, err := svc.List(context.Background(), Filter{Status: "LATE"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestServiceLoadFailure(t *testing.T) {
	ledger := newLedger()
	ledger.failPayments = errors.New("db down")
	svc := NewService(ledger, nil, nil, nil)

	_, err := svc.Summary(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRecordPaymentValidation(t *testing.T) {
	ledger := newLedger()
	svc, _ := newCachedService(t, ledger)
	ctx := shared.ContextWithActor(context.Background(), "finance")

	_, err := svc.RecordPayment(ctx, PaymentInput{ShipmentID: 1, Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordPayment(ctx, PaymentInput{ShipmentID: 99, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, production.ErrShipmentNotFound)

	_, err = svc.RecordPayment(ctx, PaymentInput{ShipmentID: 2, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotPayable)

	_, err = svc.RecordPayment(ctx, PaymentInput{ShipmentID: 1, Amount: decimal.RequireFromString("37.51")})
	assert.NoError(t, err, "overpayment within a cent is tolerated")

	_, err = svc.RecordPayment(ctx, PaymentInput{ShipmentID: 1, Amount: decimal.RequireFromString("0.05")})
	assert.ErrorIs(t, err, ErrExceedsBalance)
	assert.Len(t, ledger.payments, 1)

	items, err := svc.List(ctx, Filter{Status: StatusPaid})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsOverdue)

	audit := svc.audit.(*auditSpy)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "finance", audit.logs[0].Actor)
	assert.Equal(t, "payables:payment", audit.logs[0].Action)
}

func TestCacheVersioning(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	key, err := cache.Key(ctx, "items", "2024-03-12")
	require.NoError(t, err)
	assert.Equal(t, "payables:items:2024-03-12:v1", key)

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a"}, nil
	}
	for range 2 {
		got, err := fetch(ctx, cache, key, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Minute, srv.TTL(key))

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.Key(ctx, "items", "2024-03-12")
	require.NoError(t, err)
	assert.Equal(t, "payables:items:2024-03-12:v2", key)

	var nilCache *Cache
	key, err = nilCache.Key(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, "payables:items", key)
	assert.NoError(t, nilCache.Bump(ctx))
}

func TestHandlerPayables(t *testing.T) {
	ledger := newLedger()
	svc, _ := newCachedService(t, ledger)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/payables?overdue=true", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"days_overdue":1`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/payables?status=LATE", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusCreated, post(`{"shipment_id":1,"amount":"10.00"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, post(`{"shipment_id":1,"amount":"-1"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, post(`{"shipment_id":1,"amount":"100"}`).Code)
	assert.Equal(t, http.StatusConflict, post(`{"shipment_id":2,"amount":"1"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(`{"shipment_id":9,"amount":"1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"amount":"1"}`).Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/payables/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"partner":"Confecção X"`)
	assert.Contains(t, rr.Body.String(), `"paid":"10"`)
}
