package production

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memoryRepo is an in-memory RepositoryPort. WithTx snapshots the state and
// restores it when the callback fails.
type memoryRepo struct {
	mu           sync.Mutex
	orders       map[int64]Order
	shipments    map[int64]Shipment
	payments     []PaymentRecord
	nextOrder    int64
	nextShipment int64
	nextPayment  int64
	failCreate   error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]Order), shipments: make(map[int64]Shipment)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[int64]Order, len(r.orders))
	for id, o := range r.orders {
		orders[id] = o.clone()
	}
	shipments := make(map[int64]Shipment, len(r.shipments))
	for id, s := range r.shipments {
		shipments[id] = s.clone()
	}
	payments := append([]PaymentRecord(nil), r.payments...)
	nextOrder, nextShipment, nextPayment := r.nextOrder, r.nextShipment, r.nextPayment

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orders, r.shipments, r.payments = orders, shipments, payments
		r.nextOrder, r.nextShipment, r.nextPayment = nextOrder, nextShipment, nextPayment
		return err
	}
	return nil
}

func (r *memoryRepo) ListOrders(_ context.Context, filter OrderFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if filter.Status == "" || o.Status == filter.Status {
			out = append(out, o.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o.clone(), nil
}

func (r *memoryRepo) ListShipments(_ context.Context, filter ShipmentFilter) ([]Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listShipments(filter), nil
}

func (r *memoryRepo) listShipments(filter ShipmentFilter) []Shipment {
	var out []Shipment
	for _, s := range r.shipments {
		if filter.matches(s) {
			out = append(out, s.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) GetShipment(_ context.Context, id int64) (Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[id]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	return s.clone(), nil
}

func (r *memoryRepo) ListPayments(context.Context) ([]PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PaymentRecord(nil), r.payments...), nil
}

func (tx *memoryTx) GetOrderForUpdate(_ context.Context, id int64) (Order, error) {
	o, ok := tx.repo.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o.clone(), nil
}

func (tx *memoryTx) GetShipmentForUpdate(_ context.Context, id int64) (Shipment, error) {
	s, ok := tx.repo.shipments[id]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	return s.clone(), nil
}

func (tx *memoryTx) ListOrderShipments(_ context.Context, orderID int64) ([]Shipment, error) {
	return tx.repo.listShipments(ShipmentFilter{OrderID: orderID}), nil
}

func (tx *memoryTx) CreateOrder(_ context.Context, order Order) (Order, error) {
	for _, o := range tx.repo.orders {
		if o.LotNumber == order.LotNumber {
			return Order{}, ErrDuplicateLot
		}
	}
	tx.repo.nextOrder++
	order.ID = tx.repo.nextOrder
	tx.repo.orders[order.ID] = order.clone()
	return order.clone(), nil
}

func (tx *memoryTx) UpdateOrder(_ context.Context, id int64, patch OrderPatch) (Order, error) {
	o, ok := tx.repo.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	next := patch.applyTo(o)
	tx.repo.orders[id] = next
	return next.clone(), nil
}

func (tx *memoryTx) CreateShipment(_ context.Context, s Shipment) (Shipment, error) {
	if tx.repo.failCreate != nil {
		return Shipment{}, tx.repo.failCreate
	}
	tx.repo.nextShipment++
	s.ID = tx.repo.nextShipment
	tx.repo.shipments[s.ID] = s.clone()
	return s.clone(), nil
}

func (tx *memoryTx) UpdateShipment(_ context.Context, id int64, patch ShipmentPatch) (Shipment, error) {
	s, ok := tx.repo.shipments[id]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	next := patch.applyTo(s)
	tx.repo.shipments[id] = next
	return next.clone(), nil
}

func (tx *memoryTx) DeleteShipment(_ context.Context, id int64) error {
	if _, ok := tx.repo.shipments[id]; !ok {
		return ErrShipmentNotFound
	}
	delete(tx.repo.shipments, id)
	return nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, p PaymentRecord) (PaymentRecord, error) {
	if p.Amount.IsNegative() || p.Amount.IsZero() {
		return PaymentRecord{}, errors.New("amount must be positive")
	}
	tx.repo.nextPayment++
	p.ID = tx.repo.nextPayment
	tx.repo.payments = append(tx.repo.payments, p)
	return p, nil
}
