package production

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
)

// ============================================================================
// ORDER STATUS
// ============================================================================

// OrderStatus represents the stage a production order (OP) is in.
type OrderStatus string

const (
	StatusCutting        OrderStatus = "CUTTING"         // Planned grid cut, not yet shipped
	StatusSubcontracting OrderStatus = "SUBCONTRACTING"  // At least one shipment open with a partner
	StatusQualityControl OrderStatus = "QUALITY_CONTROL" // Everything returned, awaiting revision
	StatusPacking        OrderStatus = "PACKING"         // Revision finalized, awaiting packing
	StatusCompleted      OrderStatus = "COMPLETED"       // Packed and sent to stock
)

// IsValid checks if the status is known.
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusCutting, StatusSubcontracting, StatusQualityControl, StatusPacking, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanShip reports whether a new shipment may leave in this status.
func (s OrderStatus) CanShip() bool {
	return s == StatusCutting
}

// ============================================================================
// SHIPMENT STATUS
// ============================================================================

// ShipmentStatus represents the lifecycle of a subcontract shipment (OSF).
type ShipmentStatus string

const (
	ShipmentSent    ShipmentStatus = "SENT"    // Open, waiting for returns
	ShipmentPartial ShipmentStatus = "PARTIAL" // Settled with a partial return; balance moved to a child
	ShipmentDone    ShipmentStatus = "DONE"    // Fully returned
)

// AcceptsReturns reports whether returns can be registered against the shipment.
func (s ShipmentStatus) AcceptsReturns() bool {
	return s == ShipmentSent
}

// ============================================================================
// ENTITIES
// ============================================================================

// Order is a production order tracked through the pipeline.
type Order struct {
	ID            int64            `json:"id"`
	LotNumber     string           `json:"lot_number"`
	ProductID     int64            `json:"product_id"`
	QuantityTotal int              `json:"quantity_total"`
	Items         []grid.Item      `json:"items"`
	Status        OrderStatus      `json:"status"`
	Subcontractor string           `json:"subcontractor,omitempty"`
	Internal      bool             `json:"internal"`
	Revision      *RevisionDetails `json:"revision,omitempty"`
	Packing       *PackingDetails  `json:"packing,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Planned returns the planned (cut) grid.
func (o Order) Planned() grid.Grid {
	return grid.FromItems(o.Items)
}

// Axes returns the order's distinct colors and sizes.
func (o Order) Axes() grid.Axes {
	return grid.NewAxes(o.Items)
}

// PackingSource is the grid packing is bounded by: the approved grid when a
// revision exists, the planned grid otherwise.
func (o Order) PackingSource() grid.Grid {
	if o.Revision != nil && o.Revision.ItemsApproved != nil {
		return grid.Clone(o.Revision.ItemsApproved)
	}
	return o.Planned()
}

func (o Order) clone() Order {
	out := o
	out.Items = append([]grid.Item(nil), o.Items...)
	if o.Revision != nil {
		rev := *o.Revision
		rev.ItemsApproved = grid.Clone(o.Revision.ItemsApproved)
		out.Revision = &rev
	}
	if o.Packing != nil {
		pk := *o.Packing
		pk.ItemsPacked = grid.Clone(o.Packing.ItemsPacked)
		out.Packing = &pk
	}
	return out
}

// RevisionDetails captures the quality revision of an order.
type RevisionDetails struct {
	InspectorName string     `json:"inspector_name"`
	ApprovedQty   int        `json:"approved_qty"`
	ReworkQty     int        `json:"rework_qty"`
	RejectedQty   int        `json:"rejected_qty"`
	ItemsApproved grid.Grid  `json:"items_approved"`
	IsFinalized   bool       `json:"is_finalized"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

// PackingDetails captures the packing of an order.
type PackingDetails struct {
	PackingType    string     `json:"packing_type,omitempty"`
	TotalBoxes     int        `json:"total_boxes"`
	TotalPackedQty int        `json:"total_packed_qty"`
	Warehouse      string     `json:"warehouse"`
	PackerName     string     `json:"packer_name"`
	ItemsPacked    grid.Grid  `json:"items_packed"`
	IsFinalized    bool       `json:"is_finalized"`
	PackedDate     *time.Time `json:"packed_date,omitempty"`
}

// Shipment is a subcontract shipment (OSF) tied to one production order.
type Shipment struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	SubcontractorName string          `json:"subcontractor_name"`
	Internal          bool            `json:"internal"`
	SentQuantity      int             `json:"sent_quantity"`
	SentItems         grid.Grid       `json:"sent_items"`
	SentDate          time.Time       `json:"sent_date"`
	ReceivedQuantity  int             `json:"received_quantity"`
	ReceivedItems     grid.Grid       `json:"received_items"`
	Status            ShipmentStatus  `json:"status"`
	ReturnDate        *time.Time      `json:"return_date,omitempty"`
	Conferente        string          `json:"conferente,omitempty"`
	ParentID          *int64          `json:"parent_id,omitempty"`
	ExternalToken     string          `json:"-"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Outstanding is what the partner still owes on this shipment.
func (s Shipment) Outstanding() grid.Grid {
	return grid.Subtract(s.SentItems, s.ReceivedItems)
}

func (s Shipment) clone() Shipment {
	out := s
	out.SentItems = grid.Clone(s.SentItems)
	out.ReceivedItems = grid.Clone(s.ReceivedItems)
	if s.ReturnDate != nil {
		d := *s.ReturnDate
		out.ReturnDate = &d
	}
	if s.ParentID != nil {
		p := *s.ParentID
		out.ParentID = &p
	}
	return out
}

// PaymentRecord is a raw payment ledger row against a shipment.
type PaymentRecord struct {
	ID         int64           `json:"id"`
	ShipmentID int64           `json:"shipment_id"`
	Partner    string          `json:"partner"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paid_at"`
	Note       string          `json:"note,omitempty"`
}

// StockEntry is emitted when packing is finalized (or reversed) and consumed
// by the inventory ledger.
type StockEntry struct {
	RefID     string      `json:"ref_id"`
	OrderID   int64       `json:"order_id"`
	LotNumber string      `json:"lot_number"`
	ProductID int64       `json:"product_id"`
	Items     []grid.Item `json:"items"`
	Warehouse string      `json:"warehouse"`
	Date      time.Time   `json:"date"`
	Reversal  bool        `json:"reversal"`
}

// ============================================================================
// PATCHES
// ============================================================================

// OrderPatch is a merge-write against an order. Nil fields are left as is.
type OrderPatch struct {
	Status        *OrderStatus
	Internal      *bool
	Subcontractor *string
	Revision      *RevisionDetails
	ClearRevision bool
	Packing       *PackingDetails
	ClearPacking  bool
}

// ShipmentPatch is a merge-write against a shipment.
type ShipmentPatch struct {
	Status           *ShipmentStatus
	ReceivedQuantity *int
	ReceivedItems    grid.Grid
	ReturnDate       *time.Time
	Conferente       *string
}

// ============================================================================
// INPUTS & RESULTS
// ============================================================================

// CreateOrderInput describes a new production order.
type CreateOrderInput struct {
	LotNumber     string      `json:"lot_number" validate:"required,max=64"`
	ProductID     int64       `json:"product_id" validate:"required,gt=0"`
	Subcontractor string      `json:"subcontractor" validate:"omitempty,max=200"`
	Items         []grid.Item `json:"items" validate:"required,min=1,dive"`
}

// ShipInput describes a shipment to a subcontractor.
type ShipInput struct {
	Partner   string          `json:"partner" validate:"omitempty,max=200"`
	Internal  bool            `json:"internal"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	SentDate  time.Time       `json:"sent_date"`
}

// RevisionInput describes the finalization of the revision stage.
type RevisionInput struct {
	Approved      grid.Grid `json:"approved"`
	ReworkQty     int       `json:"rework_qty" validate:"gte=0"`
	RejectedQty   int       `json:"rejected_qty" validate:"gte=0"`
	InspectorName string    `json:"inspector_name"`
}

// PackingInput describes the finalization of the packing stage.
type PackingInput struct {
	Packed      grid.Grid `json:"packed"`
	Warehouse   string    `json:"warehouse"`
	PackerName  string    `json:"packer_name"`
	PackingType string    `json:"packing_type" validate:"omitempty,max=64"`
	TotalBoxes  int       `json:"total_boxes" validate:"gte=0"`
}

// ReturnResult is the outcome of a registered return.
type ReturnResult struct {
	Order  Order     `json:"order"`
	Parent Shipment  `json:"shipment"`
	Child  *Shipment `json:"child,omitempty"`
}

// PackingResult is the outcome of a packing finalization. ZeroTotal flags a
// finalization with nothing packed so callers can ask for confirmation.
type PackingResult struct {
	Order      Order      `json:"order"`
	StockEntry StockEntry `json:"stock_entry"`
	ZeroTotal  bool       `json:"zero_total"`
}

// Progress summarises the subcontracting state of an order.
type Progress struct {
	OrderID       int64       `json:"order_id"`
	Status        OrderStatus `json:"status"`
	QuantityTotal int         `json:"quantity_total"`
	Received      int         `json:"received"`
	Outstanding   int         `json:"outstanding"`
	OpenShipment  *Shipment   `json:"open_shipment,omitempty"`
	Shipments     int         `json:"shipments"`
}

func (p OrderPatch) applyTo(o Order) Order {
	out := o.clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Internal != nil {
		out.Internal = *p.Internal
	}
	if p.Subcontractor != nil {
		out.Subcontractor = *p.Subcontractor
	}
	if p.ClearRevision {
		out.Revision = nil
	}
	if p.Revision != nil {
		rev := *p.Revision
		rev.ItemsApproved = grid.Clone(p.Revision.ItemsApproved)
		out.Revision = &rev
	}
	if p.ClearPacking {
		out.Packing = nil
	}
	if p.Packing != nil {
		pk := *p.Packing
		pk.ItemsPacked = grid.Clone(p.Packing.ItemsPacked)
		out.Packing = &pk
	}
	return out
}

func (p ShipmentPatch) applyTo(s Shipment) Shipment {
	out := s.clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.ReceivedQuantity != nil {
		out.ReceivedQuantity = *p.ReceivedQuantity
	}
	if p.ReceivedItems != nil {
		out.ReceivedItems = grid.Clone(p.ReceivedItems)
	}
	if p.ReturnDate != nil {
		d := *p.ReturnDate
		out.ReturnDate = &d
	}
	if p.Conferente != nil {
		out.Conferente = *p.Conferente
	}
	return out
}

// diffOrder builds the patch turning before into after.
func diffOrder(before, after Order) OrderPatch {
	var patch OrderPatch
	if before.Status != after.Status {
		status := after.Status
		patch.Status = &status
	}
	if before.Internal != after.Internal {
		internal := after.Internal
		patch.Internal = &internal
	}
	if before.Subcontractor != after.Subcontractor {
		sub := after.Subcontractor
		patch.Subcontractor = &sub
	}
	if after.Revision == nil {
		patch.ClearRevision = before.Revision != nil
	} else {
		patch.Revision = after.Revision
	}
	if after.Packing == nil {
		patch.ClearPacking = before.Packing != nil
	} else {
		patch.Packing = after.Packing
	}
	return patch
}

// ============================================================================
// FILTERS
// ============================================================================

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status  OrderStatus
	Page    int
	PerPage int
}

// ShipmentFilter narrows shipment listings. Zero values match everything.
type ShipmentFilter struct {
	OrderID int64
	Partner string
	Status  ShipmentStatus
}

func (f ShipmentFilter) matches(s Shipment) bool {
	if f.OrderID != 0 && s.OrderID != f.OrderID {
		return false
	}
	if f.Partner != "" && s.SubcontractorName != f.Partner {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}
