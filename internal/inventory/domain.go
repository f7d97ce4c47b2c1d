package inventory

import (
	"errors"
	"time"
)

// MovementKind tells inbound stock from reversals.
type MovementKind string

const (
	// MovementIn is finished goods entering a warehouse from packing.
	MovementIn MovementKind = "IN"
	// MovementReversal takes back a previous entry after packing was reverted.
	MovementReversal MovementKind = "REVERSAL"
)

// Movement is one stock ledger line per color/size cell.
type Movement struct {
	ID        int64        `json:"id"`
	RefID     string       `json:"ref_id"`
	Kind      MovementKind `json:"kind"`
	OrderID   int64        `json:"order_id"`
	LotNumber string       `json:"lot_number"`
	Warehouse string       `json:"warehouse"`
	ProductID int64        `json:"product_id"`
	Color     string       `json:"color"`
	Size      string       `json:"size"`
	Qty       int          `json:"qty"`
	PostedAt  time.Time    `json:"posted_at"`
}

// BalanceKey identifies a stock balance row.
type BalanceKey struct {
	Warehouse string
	ProductID int64
	Color     string
	Size      string
}

// Balance is the on-hand quantity of one product cell in one warehouse.
type Balance struct {
	Warehouse string    `json:"warehouse"`
	ProductID int64     `json:"product_id"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
	Qty       int       `json:"qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the balance key.
func (b Balance) Key() BalanceKey {
	return BalanceKey{Warehouse: b.Warehouse, ProductID: b.ProductID, Color: b.Color, Size: b.Size}
}

// BalanceFilter narrows balance listings. Zero values match everything.
type BalanceFilter struct {
	Warehouse string
	ProductID int64
}

func (f BalanceFilter) matches(b Balance) bool {
	if f.Warehouse != "" && b.Warehouse != f.Warehouse {
		return false
	}
	if f.ProductID != 0 && b.ProductID != f.ProductID {
		return false
	}
	return true
}

// PostResult reports what a stock entry did to the ledger.
type PostResult struct {
	RefID     string     `json:"ref_id"`
	Duplicate bool       `json:"duplicate"`
	Movements []Movement `json:"movements"`
}

var (
	// ErrNegativeStock triggered when a movement would result in negative quantity.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidEntry indicates a stock entry missing its reference, product or items.
	ErrInvalidEntry = errors.New("inventory: invalid stock entry")
	// ErrWarehouseRequired indicates an entry without warehouse.
	ErrWarehouseRequired = errors.New("inventory: warehouse required")
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
)
