package production

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
)

func cutOrder() Order {
	return Order{
		ID:            1,
		LotNumber:     "LOT-1",
		ProductID:     7,
		QuantityTotal: 15,
		Items: []grid.Item{
			{Color: "Blue", Size: "M", Quantity: 10},
			{Color: "Blue", Size: "L", Quantity: 5},
		},
		Status: StatusCutting,
	}
}

func TestApplyShipDoesNotMutateInput(t *testing.T) {
	order := cutOrder()
	next, shipment, err := ApplyShip(order, nil, ShipInput{Partner: " Confecção  X "}, testNow)
	require.NoError(t, err)
	require.Equal(t, StatusCutting, order.Status)
	require.Equal(t, StatusSubcontracting, next.Status)
	require.Equal(t, "Confecção X", shipment.SubcontractorName)
	require.Equal(t, testNow, shipment.SentDate)
	require.Equal(t, 15, grid.Total(shipment.SentItems))

	shipment.SentItems[grid.Cell{Color: "Blue", Size: "M"}] = 0
	require.Equal(t, 10, order.Items[0].Quantity)
}

func TestApplyReturnDoesNotMutateTarget(t *testing.T) {
	order, shipment, err := ApplyShip(cutOrder(), nil, ShipInput{Partner: "X"}, testNow)
	require.NoError(t, err)
	shipment.ID = 5

	plan, err := ApplyReturn(order, []Shipment{shipment}, shipment, blue(6, 5), "João", testNow)
	require.NoError(t, err)
	require.Zero(t, shipment.ReceivedQuantity)
	require.True(t, grid.IsZero(shipment.ReceivedItems))
	require.Equal(t, 11, *plan.Patch.ReceivedQuantity)
	require.Equal(t, ShipmentPartial, *plan.Patch.Status)
	require.False(t, plan.OrderChanged)
}

func TestApplyReturnWaitsForOtherOpenShipments(t *testing.T) {
	order, first, err := ApplyShip(cutOrder(), nil, ShipInput{Partner: "X"}, testNow)
	require.NoError(t, err)
	first.ID = 1
	parentID := int64(1)
	second := Shipment{ID: 2, OrderID: order.ID, Status: ShipmentSent, ParentID: &parentID, SentItems: blue(1, 0)}

	plan, err := ApplyReturn(order, []Shipment{first, second}, first, blue(10, 5), "João", testNow)
	require.NoError(t, err)
	require.Equal(t, ShipmentDone, plan.Parent.Status)
	require.False(t, plan.OrderChanged, "an open shipment keeps the order in subcontracting")
}

func TestApplyRevertRevision(t *testing.T) {
	order := cutOrder()
	order.Status = StatusQualityControl
	order.Revision = &RevisionDetails{InspectorName: "Ana"}

	next, changed, err := ApplyRevertRevision(order, testNow)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StatusSubcontracting, next.Status)
	require.Nil(t, next.Revision)
	require.NotNil(t, order.Revision)

	again, changed, err := ApplyRevertRevision(next, testNow)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, next.Status, again.Status)

	order.Internal = true
	next, _, err = ApplyRevertRevision(order, testNow)
	require.NoError(t, err)
	require.Equal(t, StatusCutting, next.Status)

	for _, status := range []OrderStatus{StatusPacking, StatusCompleted} {
		order.Status = status
		_, _, err = ApplyRevertRevision(order, testNow)
		require.ErrorIs(t, err, ErrIllegalTransition, status)
	}
}

func TestApplyRevertPackingFromCompletedBuildsReversal(t *testing.T) {
	order := cutOrder()
	order.Status = StatusPacking
	order.Revision = &RevisionDetails{ItemsApproved: blue(10, 5), IsFinalized: true}

	completed, entry, err := ApplyPacking(order, PackingInput{Packed: blue(3, 0), Warehouse: "W", PackerName: "P"}, testNow)
	require.NoError(t, err)
	require.Equal(t, []grid.Item{{Color: "Blue", Size: "M", Quantity: 3}}, entry.Items)

	back, reversal, err := ApplyRevertPacking(completed, testNow.Add(1))
	require.NoError(t, err)
	require.Equal(t, StatusQualityControl, back.Status)
	require.NotNil(t, reversal)
	require.True(t, reversal.Reversal)
	require.Equal(t, entry.Items, reversal.Items)
	require.Equal(t, "W", reversal.Warehouse)

	_, _, err = ApplyRevertPacking(back, testNow)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestPackingFallsBackToPlannedGrid(t *testing.T) {
	order := cutOrder()
	order.Status = StatusPacking

	_, _, err := ApplyPacking(order, PackingInput{Packed: blue(10, 5), Warehouse: "W", PackerName: "P"}, testNow)
	require.NoError(t, err)
	_, _, err = ApplyPacking(order, PackingInput{Packed: blue(10, 6), Warehouse: "W", PackerName: "P"}, testNow)
	require.ErrorIs(t, err, ErrGridExceedsSource)
}

func TestOpenRevisionRequiresResolvedShipments(t *testing.T) {
	order := cutOrder()
	order.Status = StatusSubcontracting
	open := Shipment{ID: 1, Status: ShipmentSent}

	_, err := ApplyOpenRevision(order, []Shipment{open}, "Ana", testNow)
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = ApplyOpenRevision(order, nil, "Ana", testNow)
	require.ErrorIs(t, err, ErrIllegalTransition)

	done := Shipment{ID: 1, Status: ShipmentDone, ReceivedQuantity: 15}
	next, err := ApplyOpenRevision(order, []Shipment{done}, "Ana", testNow)
	require.NoError(t, err)
	require.Equal(t, StatusQualityControl, next.Status)
	require.Equal(t, "Ana", next.Revision.InspectorName)
}

func TestShipmentChain(t *testing.T) {
	one, two := int64(1), int64(2)
	shipments := []Shipment{
		{ID: 3, ParentID: &two},
		{ID: 1},
		{ID: 2, ParentID: &one},
		{ID: 9},
	}
	for _, id := range []int64{1, 2, 3} {
		chain, err := ShipmentChain(shipments, id)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		require.Equal(t, []int64{1, 2, 3}, []int64{chain[0].ID, chain[1].ID, chain[2].ID})
	}
	chain, err := ShipmentChain(shipments, 9)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	_, err = ShipmentChain(shipments, 42)
	require.ErrorIs(t, err, ErrShipmentNotFound)
}

func TestClassify(t *testing.T) {
	require.Equal(t, ErrorClass(""), Classify(nil))
	require.Equal(t, ClassValidation, Classify(fmt.Errorf("x: %w", ErrTotalExceeded)))
	require.Equal(t, ClassRequiredField, Classify(ErrPackerRequired))
	require.Equal(t, ClassIllegalTransition, Classify(ErrReturnsAlreadyRegistered))
	require.Equal(t, ClassNotFound, Classify(ErrOrderNotFound))
	require.Equal(t, ClassInternal, Classify(errors.New("boom")))
}

func TestDiffOrderOnlyCarriesChanges(t *testing.T) {
	order := cutOrder()
	require.Equal(t, OrderPatch{}, diffOrder(order, order))

	next := order.clone()
	next.Status = StatusSubcontracting
	patch := diffOrder(order, next)
	require.NotNil(t, patch.Status)
	require.Nil(t, patch.Internal)
	require.Equal(t, next, patch.applyTo(order))
}
