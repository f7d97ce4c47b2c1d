package production

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// InternalPartner is the partner recorded for in-house production runs.
const InternalPartner = "Produção interna"

// The Apply* reducers compute the next state of a transition from the current
// one. They validate everything before building a result and never mutate
// their arguments, so the service can persist the result in one transaction.

// NewOrder validates a planned grid and builds an order in CUTTING.
func NewOrder(in CreateOrderInput, now time.Time) (Order, error) {
	lot := shared.NormalizeName(in.LotNumber)
	if lot == "" {
		return Order{}, ErrLotNumberRequired
	}
	if in.ProductID <= 0 {
		return Order{}, fmt.Errorf("%w: product id", ErrInvalidQuantity)
	}
	if len(in.Items) == 0 {
		return Order{}, ErrEmptyGrid
	}
	seen := make(map[grid.Cell]bool, len(in.Items))
	items := make([]grid.Item, 0, len(in.Items))
	total := 0
	for _, it := range in.Items {
		cell := grid.Cell{Color: shared.NormalizeName(it.Color), Size: shared.NormalizeName(it.Size)}
		if cell.Color == "" || cell.Size == "" {
			return Order{}, fmt.Errorf("%w: color and size are required", ErrUnknownCell)
		}
		if it.Quantity < 0 {
			return Order{}, fmt.Errorf("%w: %s/%s", ErrInvalidQuantity, cell.Color, cell.Size)
		}
		if seen[cell] {
			return Order{}, fmt.Errorf("%w: %s/%s", ErrDuplicateCell, cell.Color, cell.Size)
		}
		seen[cell] = true
		items = append(items, grid.Item{Color: cell.Color, Size: cell.Size, Quantity: it.Quantity})
		total += it.Quantity
	}
	if total == 0 {
		return Order{}, ErrEmptyGrid
	}
	return Order{
		LotNumber:     lot,
		ProductID:     in.ProductID,
		QuantityTotal: total,
		Items:         items,
		Status:        StatusCutting,
		Subcontractor: shared.NormalizeName(in.Subcontractor),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ApplyShip sends the whole planned grid of a cut order to a partner.
// existing lists the shipments already recorded for the order.
func ApplyShip(order Order, existing []Shipment, in ShipInput, now time.Time) (Order, Shipment, error) {
	partner := shared.NormalizeName(in.Partner)
	if partner == "" && in.Internal {
		partner = InternalPartner
	}
	if partner == "" {
		return Order{}, Shipment{}, ErrInvalidPartner
	}
	if !order.Status.CanShip() {
		return Order{}, Shipment{}, fmt.Errorf("%w: cannot ship order in %s", ErrIllegalTransition, order.Status)
	}
	if len(existing) > 0 {
		return Order{}, Shipment{}, ErrAlreadyShipped
	}
	if in.UnitPrice.IsNegative() {
		return Order{}, Shipment{}, fmt.Errorf("%w: unit price", ErrInvalidQuantity)
	}
	sentDate := in.SentDate
	if sentDate.IsZero() {
		sentDate = now
	}

	planned := order.Planned()
	shipment := Shipment{
		OrderID:           order.ID,
		SubcontractorName: partner,
		Internal:          in.Internal,
		SentQuantity:      grid.Total(planned),
		SentItems:         planned,
		SentDate:          sentDate,
		ReceivedItems:     grid.Grid{},
		Status:            ShipmentSent,
		ExternalToken:     uuid.NewString(),
		UnitPrice:         in.UnitPrice,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	next := order.clone()
	next.Status = StatusSubcontracting
	next.Internal = in.Internal
	next.Subcontractor = partner
	next.UpdatedAt = now
	return next, shipment, nil
}

// ApplyCancelShipment removes a shipment nobody has returned anything against.
// others are the order's remaining shipments once target is gone.
func ApplyCancelShipment(order Order, target Shipment, others []Shipment, now time.Time) (Order, error) {
	if target.ParentID != nil {
		return Order{}, fmt.Errorf("%w: split balances cannot be cancelled", ErrIllegalTransition)
	}
	if target.ReceivedQuantity > 0 || target.ReturnDate != nil || target.Status != ShipmentSent {
		return Order{}, ErrReturnsAlreadyRegistered
	}
	if order.Status != StatusSubcontracting && order.Status != StatusCutting {
		return Order{}, fmt.Errorf("%w: cannot cancel shipment of order in %s", ErrIllegalTransition, order.Status)
	}
	next := order.clone()
	if len(others) == 0 {
		next.Status = StatusCutting
		next.Internal = false
		next.Subcontractor = ""
	}
	next.UpdatedAt = now
	return next, nil
}

// ApplyOpenRevision moves a fully returned order into quality control and
// opens an unfinalized revision record. Already opened revisions only pick up
// the inspector.
func ApplyOpenRevision(order Order, shipments []Shipment, inspector string, now time.Time) (Order, error) {
	inspector = shared.NormalizeName(inspector)
	next := order.clone()
	switch order.Status {
	case StatusQualityControl:
	case StatusCutting, StatusSubcontracting:
		if !subcontractingResolved(order, shipments) {
			return Order{}, fmt.Errorf("%w: order still has pieces with partners", ErrIllegalTransition)
		}
		next.Status = StatusQualityControl
	default:
		return Order{}, fmt.Errorf("%w: cannot open revision in %s", ErrIllegalTransition, order.Status)
	}
	if next.Revision == nil {
		next.Revision = &RevisionDetails{StartDate: now, ItemsApproved: grid.Grid{}}
	}
	if inspector != "" && !next.Revision.IsFinalized {
		next.Revision.InspectorName = inspector
	}
	next.UpdatedAt = now
	return next, nil
}

// ApplyRevision finalizes quality control and moves the order to packing.
func ApplyRevision(order Order, in RevisionInput, now time.Time) (Order, error) {
	if order.Status != StatusQualityControl {
		return Order{}, fmt.Errorf("%w: cannot finalize revision in %s", ErrIllegalTransition, order.Status)
	}
	inspector := shared.NormalizeName(in.InspectorName)
	if inspector == "" {
		return Order{}, ErrInspectorRequired
	}
	if in.ReworkQty < 0 || in.RejectedQty < 0 {
		return Order{}, fmt.Errorf("%w: rework and rejected counts", ErrInvalidQuantity)
	}
	if err := checkCells(order, in.Approved, order.Planned()); err != nil {
		return Order{}, err
	}
	if err := grid.ValidateStageTotal(in.Approved, []int{in.ReworkQty, in.RejectedQty}, order.QuantityTotal); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrTotalExceeded, err)
	}

	start := now
	if order.Revision != nil && !order.Revision.StartDate.IsZero() {
		start = order.Revision.StartDate
	}
	end := now
	next := order.clone()
	next.Revision = &RevisionDetails{
		InspectorName: inspector,
		ApprovedQty:   grid.Total(in.Approved),
		ReworkQty:     in.ReworkQty,
		RejectedQty:   in.RejectedQty,
		ItemsApproved: grid.Clone(in.Approved),
		IsFinalized:   true,
		StartDate:     start,
		EndDate:       &end,
	}
	next.Status = StatusPacking
	next.UpdatedAt = now
	return next, nil
}

// ApplyRevertRevision discards the revision and sends the order back to
// subcontracting (or cutting for in-house runs). changed is false when the
// order was already before quality control.
func ApplyRevertRevision(order Order, now time.Time) (next Order, changed bool, err error) {
	switch order.Status {
	case StatusCutting, StatusSubcontracting:
		return order.clone(), false, nil
	case StatusQualityControl:
	default:
		return Order{}, false, fmt.Errorf("%w: revert packing before reverting revision", ErrIllegalTransition)
	}
	next = order.clone()
	next.Revision = nil
	next.Status = StatusSubcontracting
	if order.Internal {
		next.Status = StatusCutting
	}
	next.UpdatedAt = now
	return next, true, nil
}

// ApplyPacking finalizes packing, completes the order and builds the stock
// entry for the packed grid.
func ApplyPacking(order Order, in PackingInput, now time.Time) (Order, StockEntry, error) {
	if order.Status != StatusPacking {
		return Order{}, StockEntry{}, fmt.Errorf("%w: cannot finalize packing in %s", ErrIllegalTransition, order.Status)
	}
	warehouse := shared.NormalizeName(in.Warehouse)
	if warehouse == "" {
		return Order{}, StockEntry{}, ErrWarehouseRequired
	}
	packer := shared.NormalizeName(in.PackerName)
	if packer == "" {
		return Order{}, StockEntry{}, ErrPackerRequired
	}
	if in.TotalBoxes < 0 {
		return Order{}, StockEntry{}, fmt.Errorf("%w: total boxes", ErrInvalidQuantity)
	}
	if err := checkCells(order, in.Packed, order.PackingSource()); err != nil {
		return Order{}, StockEntry{}, err
	}

	packedAt := now
	next := order.clone()
	next.Packing = &PackingDetails{
		PackingType:    in.PackingType,
		TotalBoxes:     in.TotalBoxes,
		TotalPackedQty: grid.Total(in.Packed),
		Warehouse:      warehouse,
		PackerName:     packer,
		ItemsPacked:    grid.Clone(in.Packed),
		IsFinalized:    true,
		PackedDate:     &packedAt,
	}
	next.Status = StatusCompleted
	next.UpdatedAt = now
	return next, newStockEntry(next, in.Packed, warehouse, false, now), nil
}

// ApplyRevertPacking returns the order to quality control, leaving the
// revision untouched. Reverting a completed order yields the reversing stock
// entry for what was packed.
func ApplyRevertPacking(order Order, now time.Time) (Order, *StockEntry, error) {
	switch order.Status {
	case StatusPacking, StatusCompleted:
	default:
		return Order{}, nil, fmt.Errorf("%w: cannot revert packing in %s", ErrIllegalTransition, order.Status)
	}
	var reversal *StockEntry
	if order.Status == StatusCompleted && order.Packing != nil && order.Packing.IsFinalized {
		entry := newStockEntry(order, order.Packing.ItemsPacked, order.Packing.Warehouse, true, now)
		reversal = &entry
	}
	next := order.clone()
	next.Packing = nil
	next.Status = StatusQualityControl
	next.UpdatedAt = now
	return next, reversal, nil
}

// checkCells bounds every cell of g by source and refuses cells outside the
// order's color/size axes.
func checkCells(order Order, g, source grid.Grid) error {
	axes := order.Axes()
	for _, c := range g.Cells() {
		if !axes.Contains(c) {
			return fmt.Errorf("%w: %s/%s", ErrUnknownCell, c.Color, c.Size)
		}
	}
	return wrapGridError(grid.ValidateGrid(g, source))
}

func wrapGridError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, grid.ErrNegativeQuantity):
		return fmt.Errorf("%w: %w", ErrInvalidQuantity, err)
	case errors.Is(err, grid.ErrQuantityExceeded):
		return fmt.Errorf("%w: %w", ErrGridExceedsSource, err)
	case errors.Is(err, grid.ErrTotalExceeded):
		return fmt.Errorf("%w: %w", ErrTotalExceeded, err)
	default:
		return err
	}
}

// subcontractingResolved reports whether every shipped piece came back and no
// shipment is still open.
func subcontractingResolved(order Order, shipments []Shipment) bool {
	if len(shipments) == 0 {
		return false
	}
	received := 0
	for _, s := range shipments {
		if s.Status == ShipmentSent {
			return false
		}
		received += s.ReceivedQuantity
	}
	return received >= order.QuantityTotal
}

func newStockEntry(order Order, items grid.Grid, warehouse string, reversal bool, now time.Time) StockEntry {
	kind := "in"
	if reversal {
		kind = "reversal"
	}
	ref := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("stock:%d:%s:%d", order.ID, kind, now.UnixNano())))
	return StockEntry{
		RefID:     ref.String(),
		OrderID:   order.ID,
		LotNumber: order.LotNumber,
		ProductID: order.ProductID,
		Items:     nonZeroItems(items),
		Warehouse: warehouse,
		Date:      now,
		Reversal:  reversal,
	}
}

func nonZeroItems(g grid.Grid) []grid.Item {
	items := make([]grid.Item, 0, len(g))
	for _, it := range g.Items() {
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	return items
}
