package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-garment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

const idempotencyModule = "inventory"

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx   pgx.Tx
	keys *shared.IdempotencyStore
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, keys: shared.NewIdempotencyStore(tx)})
	})
}

// ListBalances returns balances ordered by warehouse, product and cell.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse, product_id, color, size, qty, updated_at
FROM stock_balances
WHERE ($1 = '' OR warehouse = $1) AND ($2 = 0 OR product_id = $2)
ORDER BY warehouse, product_id, color, size`, filter.Warehouse, filter.ProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Warehouse, &b.ProductID, &b.Color, &b.Size, &b.Qty, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// ListMovements returns the ledger lines of an order in posting order.
func (r *Repository) ListMovements(ctx context.Context, orderID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, ref_id, kind, order_id, lot_number, warehouse, product_id, color, size, qty, posted_at
FROM stock_movements WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.RefID, &m.Kind, &m.OrderID, &m.LotNumber, &m.Warehouse,
			&m.ProductID, &m.Color, &m.Size, &m.Qty, &m.PostedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepo) ClaimReference(ctx context.Context, refID string) (bool, error) {
	err := r.keys.CheckAndInsert(ctx, "stock:"+refID, idempotencyModule)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return false, nil
	}
	return err == nil, err
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, key BalanceKey) (Balance, error) {
	b := Balance{Warehouse: key.Warehouse, ProductID: key.ProductID, Color: key.Color, Size: key.Size}
	err := r.tx.QueryRow(ctx, `SELECT qty, updated_at FROM stock_balances
WHERE warehouse=$1 AND product_id=$2 AND color=$3 AND size=$4 FOR UPDATE`,
		key.Warehouse, key.ProductID, key.Color, key.Size).Scan(&b.Qty, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (warehouse, product_id, color, size, qty, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (warehouse, product_id, color, size) DO UPDATE SET qty = EXCLUDED.qty, updated_at = EXCLUDED.updated_at`,
		b.Warehouse, b.ProductID, b.Color, b.Size, b.Qty, b.UpdatedAt)
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (ref_id, kind, order_id, lot_number, warehouse, product_id, color, size, qty, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`, m.RefID, string(m.Kind), m.OrderID, m.LotNumber, m.Warehouse, m.ProductID, m.Color, m.Size, m.Qty, m.PostedAt).Scan(&m.ID)
	return m, err
}
