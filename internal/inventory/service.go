package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-garment/internal/production"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	ListMovements(ctx context.Context, orderID int64) ([]Movement, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	// ClaimReference records refID as processed. It reports false when the
	// reference was already claimed.
	ClaimReference(ctx context.Context, refID string) (bool, error)
	GetBalanceForUpdate(ctx context.Context, key BalanceKey) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service posts stock entries from the production pipeline into the ledger.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	allowNeg bool
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, allowNeg: cfg.AllowNegativeStock, now: time.Now}
}

// PostStockEntry books every non-zero cell of entry. Entries are idempotent by
// RefID: a redelivered entry is acknowledged without touching balances.
func (s *Service) PostStockEntry(ctx context.Context, entry production.StockEntry) (PostResult, error) {
	if strings.TrimSpace(entry.RefID) == "" || entry.ProductID <= 0 {
		return PostResult{}, fmt.Errorf("%w: reference and product required", ErrInvalidEntry)
	}
	warehouse := shared.NormalizeName(entry.Warehouse)
	if warehouse == "" {
		return PostResult{}, ErrWarehouseRequired
	}
	kind, sign := MovementIn, 1
	if entry.Reversal {
		kind, sign = MovementReversal, -1
	}
	postedAt := entry.Date
	if postedAt.IsZero() {
		postedAt = s.now()
	}

	var pending []Movement
	for _, item := range entry.Items {
		if item.Quantity < 0 {
			return PostResult{}, fmt.Errorf("%w: negative quantity for %s/%s", ErrInvalidEntry, item.Color, item.Size)
		}
		if item.Quantity == 0 {
			continue
		}
		pending = append(pending, Movement{
			RefID:     entry.RefID,
			Kind:      kind,
			OrderID:   entry.OrderID,
			LotNumber: entry.LotNumber,
			Warehouse: warehouse,
			ProductID: entry.ProductID,
			Color:     item.Color,
			Size:      item.Size,
			Qty:       sign * item.Quantity,
			PostedAt:  postedAt,
		})
	}

	result := PostResult{RefID: entry.RefID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		claimed, err := tx.ClaimReference(ctx, entry.RefID)
		if err != nil {
			return err
		}
		if !claimed {
			result.Duplicate = true
			return nil
		}
		for _, m := range pending {
			key := BalanceKey{Warehouse: m.Warehouse, ProductID: m.ProductID, Color: m.Color, Size: m.Size}
			balance, err := tx.GetBalanceForUpdate(ctx, key)
			if errors.Is(err, ErrBalanceNotFound) {
				balance = Balance{Warehouse: key.Warehouse, ProductID: key.ProductID, Color: key.Color, Size: key.Size}
			} else if err != nil {
				return err
			}
			balance.Qty += m.Qty
			if !s.allowNeg && balance.Qty < 0 {
				return fmt.Errorf("%w: %s %s/%s would be %d", ErrNegativeStock, key.Warehouse, key.Color, key.Size, balance.Qty)
			}
			balance.UpdatedAt = postedAt
			if err := tx.UpsertBalance(ctx, balance); err != nil {
				return err
			}
			inserted, err := tx.InsertMovement(ctx, m)
			if err != nil {
				return err
			}
			result.Movements = append(result.Movements, inserted)
		}
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}
	if result.Duplicate {
		s.logger.Info("stock entry already posted", slog.String("ref_id", entry.RefID))
		return result, nil
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   fmt.Sprintf("inventory:%s", strings.ToLower(string(kind))),
			Entity:   "stock_entry",
			EntityID: entry.RefID,
			Meta: map[string]any{
				"order_id":   entry.OrderID,
				"lot_number": entry.LotNumber,
				"warehouse":  warehouse,
				"product_id": entry.ProductID,
				"cells":      len(result.Movements),
			},
			At: postedAt,
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("ref_id", entry.RefID), slog.Any("error", err))
		}
	}
	s.logger.Info("stock entry posted",
		slog.String("ref_id", entry.RefID),
		slog.String("kind", string(kind)),
		slog.Int64("order_id", entry.OrderID),
		slog.Int("cells", len(result.Movements)),
	)
	return result, nil
}

// Balances lists stock balances.
func (s *Service) Balances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	filter.Warehouse = shared.NormalizeName(filter.Warehouse)
	return s.repo.ListBalances(ctx, filter)
}

// Movements lists the ledger lines booked for a production order.
func (s *Service) Movements(ctx context.Context, orderID int64) ([]Movement, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: order id required", ErrInvalidEntry)
	}
	return s.repo.ListMovements(ctx, orderID)
}
