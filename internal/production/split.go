package production

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// ReturnPlan is the write set of a registered return.
type ReturnPlan struct {
	Order        Order
	OrderChanged bool
	Parent       Shipment
	Patch        ShipmentPatch
	Child        *Shipment
}

// ApplyReturn registers a return wave against target. The return is bounded
// per cell by the shipment's outstanding grid; a short return settles the
// parent as PARTIAL and opens a child shipment for the remainder. shipments
// holds every shipment of the order, target included.
func ApplyReturn(order Order, shipments []Shipment, target Shipment, returned grid.Grid, conferente string, now time.Time) (ReturnPlan, error) {
	conferente = shared.NormalizeName(conferente)
	if conferente == "" {
		return ReturnPlan{}, ErrEmptyConferente
	}
	if !target.Status.AcceptsReturns() {
		return ReturnPlan{}, fmt.Errorf("%w: shipment %d is %s", ErrShipmentClosed, target.ID, target.Status)
	}
	if order.Status != StatusSubcontracting {
		return ReturnPlan{}, fmt.Errorf("%w: cannot register returns in %s", ErrIllegalTransition, order.Status)
	}
	outstanding := target.Outstanding()
	if err := checkCells(order, returned, outstanding); err != nil {
		return ReturnPlan{}, err
	}

	receivedTotal := grid.Total(returned)
	remainder := grid.Subtract(outstanding, returned)

	parent := target.clone()
	returnedAt := now
	parent.ReceivedItems = grid.Add(target.ReceivedItems, returned)
	parent.ReceivedQuantity = target.ReceivedQuantity + receivedTotal
	parent.ReturnDate = &returnedAt
	parent.Conferente = conferente
	parent.UpdatedAt = now
	parent.Status = ShipmentDone

	var child *Shipment
	if !grid.IsZero(remainder) {
		parent.Status = ShipmentPartial
		parentID := target.ID
		child = &Shipment{
			OrderID:           target.OrderID,
			SubcontractorName: target.SubcontractorName,
			Internal:          target.Internal,
			SentQuantity:      grid.Total(remainder),
			SentItems:         remainder,
			SentDate:          now,
			ReceivedItems:     grid.Grid{},
			Status:            ShipmentSent,
			ParentID:          &parentID,
			ExternalToken:     uuid.NewString(),
			UnitPrice:         target.UnitPrice,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	status := parent.Status
	received := parent.ReceivedItems
	plan := ReturnPlan{
		Order:  order.clone(),
		Parent: parent,
		Patch: ShipmentPatch{
			Status:           &status,
			ReceivedQuantity: &parent.ReceivedQuantity,
			ReceivedItems:    received,
			ReturnDate:       parent.ReturnDate,
			Conferente:       &parent.Conferente,
		},
		Child: child,
	}

	// The order advances once everything came back and nothing is left open.
	cumulative := 0
	open := child != nil
	for _, s := range shipments {
		if s.ID == target.ID {
			cumulative += parent.ReceivedQuantity
			continue
		}
		cumulative += s.ReceivedQuantity
		if s.Status == ShipmentSent {
			open = true
		}
	}
	if !open && cumulative >= order.QuantityTotal {
		plan.Order.Status = StatusQualityControl
		plan.Order.UpdatedAt = now
		plan.OrderChanged = true
	}
	return plan, nil
}

// ShipmentChain returns the split chain containing id, ordered from the
// original shipment to the latest balance.
func ShipmentChain(shipments []Shipment, id int64) ([]Shipment, error) {
	byID := make(map[int64]Shipment, len(shipments))
	children := make(map[int64][]Shipment)
	for _, s := range shipments {
		byID[s.ID] = s
		if s.ParentID != nil {
			children[*s.ParentID] = append(children[*s.ParentID], s)
		}
	}
	current, ok := byID[id]
	if !ok {
		return nil, ErrShipmentNotFound
	}
	seen := map[int64]bool{current.ID: true}
	for current.ParentID != nil {
		parent, ok := byID[*current.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		current = parent
	}

	chain := []Shipment{current}
	visited := map[int64]bool{current.ID: true}
	for {
		next := children[current.ID]
		if len(next) == 0 {
			break
		}
		sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
		current = next[0]
		if visited[current.ID] {
			break
		}
		visited[current.ID] = true
		chain = append(chain, current)
	}
	return chain, nil
}
