package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
	"github.com/odyssey-erp/odyssey-garment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// RepositoryPort abstracts the persistence collaborator used by the service.
type RepositoryPort interface {
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error)
	GetShipment(ctx context.Context, id int64) (Shipment, error)
	ListPayments(ctx context.Context) ([]PaymentRecord, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional operations of one unit of work.
// Reads lock the rows they return until the transaction ends.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error)
	ListOrderShipments(ctx context.Context, orderID int64) ([]Shipment, error)
	CreateOrder(ctx context.Context, order Order) (Order, error)
	UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (Order, error)
	CreateShipment(ctx context.Context, shipment Shipment) (Shipment, error)
	UpdateShipment(ctx context.Context, id int64, patch ShipmentPatch) (Shipment, error)
	DeleteShipment(ctx context.Context, id int64) error
	InsertPayment(ctx context.Context, payment PaymentRecord) (PaymentRecord, error)
}

// Repository persists orders, shipments and payments in PostgreSQL. Grids
// and stage details are stored as JSONB.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, lot_number, product_id, quantity_total, items, status, subcontractor, internal, revision, packing, created_at, updated_at`

const shipmentColumns = `id, order_id, subcontractor_name, internal, sent_quantity, sent_items, sent_date,
received_quantity, received_items, status, return_date, conferente, parent_id, external_token,
unit_price::text, created_at, updated_at`

// ListOrders returns a page of orders, newest first, and the total count.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_orders WHERE ($1 = '' OR status = $1)`,
		string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM production_orders
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, string(filter.Status), perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// GetOrder loads a single order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// ListShipments returns shipments matching the filter ordered by id.
func (r *Repository) ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error) {
	return listShipments(ctx, r.pool, filter)
}

// GetShipment loads a single shipment.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	return getShipment(ctx, r.pool, id, false)
}

// ListPayments returns the raw payment ledger.
func (r *Repository) ListPayments(ctx context.Context) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shipment_id, partner, amount::text, paid_at, note
FROM shipment_payments ORDER BY paid_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []PaymentRecord
	for rows.Next() {
		var (
			p      PaymentRecord
			amount string
		)
		if err := rows.Scan(&p.ID, &p.ShipmentID, &p.Partner, &amount, &p.PaidAt, &p.Note); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("payment %d amount: %w", p.ID, err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// RecordPayment appends a payment to the ledger.
func (r *Repository) RecordPayment(ctx context.Context, p PaymentRecord) (PaymentRecord, error) {
	var out PaymentRecord
	err := r.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.InsertPayment(ctx, p)
		return err
	})
	return out, err
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.tx, id, true)
}

func (r *txRepo) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	return getShipment(ctx, r.tx, id, true)
}

func (r *txRepo) ListOrderShipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	return listShipments(ctx, r.tx, ShipmentFilter{OrderID: orderID})
}

func (r *txRepo) CreateOrder(ctx context.Context, order Order) (Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return Order{}, err
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO production_orders
(lot_number, product_id, quantity_total, items, status, subcontractor, internal, created_at, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $8)
RETURNING `+orderColumns,
		order.LotNumber, order.ProductID, order.QuantityTotal, items, string(order.Status),
		order.Subcontractor, order.Internal, order.CreatedAt)
	created, err := scanOrder(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Order{}, fmt.Errorf("%w: %s", ErrDuplicateLot, order.LotNumber)
	}
	return created, err
}

func (r *txRepo) UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (Order, error) {
	current, err := getOrder(ctx, r.tx, id, true)
	if err != nil {
		return Order{}, err
	}
	next := patch.applyTo(current)
	revision, err := marshalNullable(next.Revision)
	if err != nil {
		return Order{}, err
	}
	packing, err := marshalNullable(next.Packing)
	if err != nil {
		return Order{}, err
	}
	row := r.tx.QueryRow(ctx, `UPDATE production_orders
SET status=$2, subcontractor=$3, internal=$4, revision=$5::jsonb, packing=$6::jsonb, updated_at=NOW()
WHERE id=$1
RETURNING `+orderColumns,
		id, string(next.Status), next.Subcontractor, next.Internal, revision, packing)
	return scanOrder(row)
}

func (r *txRepo) CreateShipment(ctx context.Context, s Shipment) (Shipment, error) {
	sent, err := json.Marshal(s.SentItems)
	if err != nil {
		return Shipment{}, err
	}
	received, err := json.Marshal(nonNilGrid(s.ReceivedItems))
	if err != nil {
		return Shipment{}, err
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO subcontract_shipments
(order_id, subcontractor_name, internal, sent_quantity, sent_items, sent_date, received_quantity,
 received_items, status, parent_id, external_token, unit_price, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::jsonb, $9, $10, $11, $12::numeric, $13, $13)
RETURNING `+shipmentColumns,
		s.OrderID, s.SubcontractorName, s.Internal, s.SentQuantity, sent, s.SentDate, s.ReceivedQuantity,
		received, string(s.Status), s.ParentID, s.ExternalToken, s.UnitPrice.String(), s.CreatedAt)
	return scanShipment(row)
}

func (r *txRepo) UpdateShipment(ctx context.Context, id int64, patch ShipmentPatch) (Shipment, error) {
	current, err := getShipment(ctx, r.tx, id, true)
	if err != nil {
		return Shipment{}, err
	}
	next := patch.applyTo(current)
	received, err := json.Marshal(nonNilGrid(next.ReceivedItems))
	if err != nil {
		return Shipment{}, err
	}
	row := r.tx.QueryRow(ctx, `UPDATE subcontract_shipments
SET status=$2, received_quantity=$3, received_items=$4::jsonb, return_date=$5, conferente=$6, updated_at=NOW()
WHERE id=$1
RETURNING `+shipmentColumns,
		id, string(next.Status), next.ReceivedQuantity, received, next.ReturnDate, next.Conferente)
	return scanShipment(row)
}

func (r *txRepo) DeleteShipment(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM subcontract_shipments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShipmentNotFound
	}
	return nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p PaymentRecord) (PaymentRecord, error) {
	var amount string
	err := r.tx.QueryRow(ctx, `INSERT INTO shipment_payments (shipment_id, partner, amount, paid_at, note)
VALUES ($1, $2, $3::numeric, $4, $5)
RETURNING id, amount::text`, p.ShipmentID, p.Partner, p.Amount.String(), p.PaidAt, p.Note).Scan(&p.ID, &amount)
	if err != nil {
		return PaymentRecord{}, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	return p, err
}

// ============================================================================
// HELPERS
// ============================================================================

func getOrder(ctx context.Context, q querier, id int64, lock bool) (Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM production_orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return order, err
}

func getShipment(ctx context.Context, q querier, id int64, lock bool) (Shipment, error) {
	sql := `SELECT ` + shipmentColumns + ` FROM subcontract_shipments WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	shipment, err := scanShipment(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, ErrShipmentNotFound
	}
	return shipment, err
}

func listShipments(ctx context.Context, q querier, filter ShipmentFilter) ([]Shipment, error) {
	rows, err := q.Query(ctx, `SELECT `+shipmentColumns+` FROM subcontract_shipments
WHERE ($1 = 0 OR order_id = $1)
  AND ($2 = '' OR subcontractor_name = $2)
  AND ($3 = '' OR status = $3)
ORDER BY id`, filter.OrderID, filter.Partner, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shipments []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                 Order
		status            string
		items             []byte
		revision, packing []byte
	)
	if err := row.Scan(&o.ID, &o.LotNumber, &o.ProductID, &o.QuantityTotal, &items, &status,
		&o.Subcontractor, &o.Internal, &revision, &packing, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("order %d items: %w", o.ID, err)
	}
	if len(revision) > 0 {
		o.Revision = &RevisionDetails{}
		if err := json.Unmarshal(revision, o.Revision); err != nil {
			return Order{}, fmt.Errorf("order %d revision: %w", o.ID, err)
		}
	}
	if len(packing) > 0 {
		o.Packing = &PackingDetails{}
		if err := json.Unmarshal(packing, o.Packing); err != nil {
			return Order{}, fmt.Errorf("order %d packing: %w", o.ID, err)
		}
	}
	return o, nil
}

func scanShipment(row pgx.Row) (Shipment, error) {
	var (
		s              Shipment
		status, price  string
		sent, received []byte
		returnDate     *time.Time
	)
	if err := row.Scan(&s.ID, &s.OrderID, &s.SubcontractorName, &s.Internal, &s.SentQuantity, &sent, &s.SentDate,
		&s.ReceivedQuantity, &received, &status, &returnDate, &s.Conferente, &s.ParentID, &s.ExternalToken,
		&price, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Shipment{}, err
	}
	s.Status = ShipmentStatus(status)
	s.ReturnDate = returnDate
	if err := json.Unmarshal(sent, &s.SentItems); err != nil {
		return Shipment{}, fmt.Errorf("shipment %d sent items: %w", s.ID, err)
	}
	if err := json.Unmarshal(received, &s.ReceivedItems); err != nil {
		return Shipment{}, fmt.Errorf("shipment %d received items: %w", s.ID, err)
	}
	var err error
	if s.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return Shipment{}, fmt.Errorf("shipment %d unit price: %w", s.ID, err)
	}
	return s, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nonNilGrid(g grid.Grid) grid.Grid {
	if g == nil {
		return grid.Grid{}
	}
	return g
}
