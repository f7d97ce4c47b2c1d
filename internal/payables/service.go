package payables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-garment/internal/production"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// ErrExceedsBalance is returned when a payment would overpay a payable.
var ErrExceedsBalance = errors.New("payment exceeds payable balance")

const orderLookupLimit = 8

// Ledger is the read side of the production store plus the payment ledger.
// production.Repository satisfies it.
type Ledger interface {
	ListShipments(ctx context.Context, filter production.ShipmentFilter) ([]production.Shipment, error)
	GetShipment(ctx context.Context, id int64) (production.Shipment, error)
	GetOrder(ctx context.Context, id int64) (production.Order, error)
	ListPayments(ctx context.Context) ([]production.PaymentRecord, error)
	RecordPayment(ctx context.Context, p production.PaymentRecord) (production.PaymentRecord, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PaymentInput is a payment posted against one shipment.
type PaymentInput struct {
	ShipmentID int64
	Amount     decimal.Decimal
	PaidAt     *time.Time
	Note       string
}

// Service serves the payable projection and accepts payments.
type Service struct {
	ledger Ledger
	cache  *Cache
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// NewService builds Service. cache and audit may be nil.
func NewService(ledger Ledger, cache *Cache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// SetClock overrides the clock that decides "today".
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns payables matching filter, earliest due first.
func (s *Service) List(ctx context.Context, filter Filter) ([]PayableItem, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
	}
	filter.Partner = shared.NormalizeName(filter.Partner)
	items, err := s.project(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(items), nil
}

// Summary aggregates the current payables per partner.
func (s *Service) Summary(ctx context.Context) ([]PartnerSummary, error) {
	items, err := s.project(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(items), nil
}

// Overdue lists the unpaid payables past their due date.
func (s *Service) Overdue(ctx context.Context) ([]PayableItem, error) {
	return s.List(ctx, Filter{OverdueOnly: true})
}

// RecordPayment appends a payment to the ledger. The payable status is never
// stored; it follows from the new ledger on the next read.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (production.PaymentRecord, error) {
	if !in.Amount.IsPositive() {
		return production.PaymentRecord{}, ErrInvalidAmount
	}
	shipment, err := s.ledger.GetShipment(ctx, in.ShipmentID)
	if err != nil {
		return production.PaymentRecord{}, fmt.Errorf("load shipment %d: %w", in.ShipmentID, err)
	}
	payable := Derive([]production.Shipment{shipment}, nil, nil, s.now())
	if len(payable) == 0 {
		return production.PaymentRecord{}, fmt.Errorf("%w: shipment %d", ErrNotPayable, in.ShipmentID)
	}
	payments, err := s.ledger.ListPayments(ctx)
	if err != nil {
		return production.PaymentRecord{}, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		if p.ShipmentID == shipment.ID {
			paid = paid.Add(p.Amount)
		}
	}
	balance := payable[0].Total.Sub(paid)
	if in.Amount.GreaterThan(balance.Add(Epsilon)) {
		return production.PaymentRecord{}, fmt.Errorf("%w: balance %s", ErrExceedsBalance, balance.StringFixed(2))
	}

	paidAt := s.now()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}
	record, err := s.ledger.RecordPayment(ctx, production.PaymentRecord{
		ShipmentID: shipment.ID,
		Partner:    payable[0].Partner,
		Amount:     in.Amount,
		PaidAt:     paidAt,
		Note:       in.Note,
	})
	if err != nil {
		return production.PaymentRecord{}, fmt.Errorf("record payment: %w", err)
	}

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("payables cache bump failed", slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "payables:payment",
			Entity:   "shipment_payment",
			EntityID: strconv.FormatInt(record.ID, 10),
			Meta: map[string]any{
				"shipment_id": record.ShipmentID,
				"partner":     record.Partner,
				"amount":      record.Amount.String(),
			},
			At: s.now(),
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Int64("payment_id", record.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("payment recorded",
		slog.Int64("payment_id", record.ID),
		slog.Int64("shipment_id", record.ShipmentID),
		slog.String("amount", record.Amount.String()),
	)
	return record, nil
}

func (s *Service) project(ctx context.Context) ([]PayableItem, error) {
	today := truncateDay(s.now())
	key, err := s.cache.Key(ctx, "items", today.Format("2006-01-02"))
	if err != nil {
		s.logger.Warn("payables cache unavailable", slog.Any("error", err))
		return s.derive(ctx, today)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		items, err := fetch(ctx, s.cache, key, func(ctx context.Context) ([]PayableItem, error) {
			return s.derive(ctx, today)
		})
		if err != nil && items == nil {
			return nil, err
		}
		if err != nil {
			s.logger.Warn("payables cache write failed", slog.Any("error", err))
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]PayableItem), nil
}

func (s *Service) derive(ctx context.Context, today time.Time) ([]PayableItem, error) {
	var (
		shipments []production.Shipment
		payments  []production.PaymentRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shipments, err = s.ledger.ListShipments(gctx, production.ShipmentFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.ledger.ListPayments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load payable sources: %w", err)
	}
	orders, err := s.loadOrders(ctx, shipments)
	if err != nil {
		return nil, err
	}
	return Derive(shipments, orders, payments, today), nil
}

func (s *Service) loadOrders(ctx context.Context, shipments []production.Shipment) (map[int64]production.Order, error) {
	ids := make(map[int64]struct{})
	for _, sh := range shipments {
		if sh.ReceivedQuantity > 0 {
			ids[sh.OrderID] = struct{}{}
		}
	}
	var mu sync.Mutex
	orders := make(map[int64]production.Order, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orderLookupLimit)
	for id := range ids {
		g.Go(func() error {
			order, err := s.ledger.GetOrder(gctx, id)
			if errors.Is(err, production.ErrOrderNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load order %d: %w", id, err)
			}
			mu.Lock()
			orders[id] = order
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return orders, nil
}
