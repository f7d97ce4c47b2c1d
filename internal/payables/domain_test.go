package payables

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-garment/internal/production"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func returned(id, orderID int64, partner string, qty int, price string, at time.Time) production.Shipment {
	return production.Shipment{
		ID:                id,
		OrderID:           orderID,
		SubcontractorName: partner,
		SentQuantity:      qty,
		ReceivedQuantity:  qty,
		Status:            production.ShipmentDone,
		ReturnDate:        &at,
		UnitPrice:         decimal.RequireFromString(price),
	}
}

func payment(shipmentID int64, amount string) production.PaymentRecord {
	return production.PaymentRecord{ShipmentID: shipmentID, Amount: decimal.RequireFromString(amount)}
}

func TestDeriveOverdueByOneDay(t *testing.T) {
	shipments := []production.Shipment{returned(1, 10, "Confecção X", 15, "2.00", day(2024, 3, 10, 17))}
	orders := map[int64]production.Order{10: {ID: 10, LotNumber: "LOT-010"}}

	items := Derive(shipments, orders, nil, day(2024, 3, 12, 9))
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, day(2024, 3, 11, 0), item.DueDate)
	assert.Equal(t, StatusPending, item.Status)
	assert.True(t, item.IsOverdue)
	assert.Equal(t, 1, item.DaysOverdue)
	assert.Equal(t, "LOT-010", item.LotNumber)
	assert.True(t, item.Total.Equal(decimal.RequireFromString("30")))
}

func TestDeriveNotOverdueOnDueDate(t *testing.T) {
	shipments := []production.Shipment{returned(1, 10, "X", 1, "1", day(2024, 3, 10, 23))}

	items := Derive(shipments, nil, nil, day(2024, 3, 11, 23))
	require.Len(t, items, 1)
	assert.False(t, items[0].IsOverdue)
	assert.Zero(t, items[0].DaysOverdue)
}

func TestDeriveSettlementStatus(t *testing.T) {
	at := day(2024, 3, 1, 12)
	shipments := []production.Shipment{
		returned(1, 10, "A", 10, "3.00", at),
		returned(2, 10, "A", 10, "3.00", at),
		returned(3, 10, "A", 10, "3.00", at),
	}
	payments := []production.PaymentRecord{
		payment(2, "10"),
		payment(3, "20"),
		payment(3, "9.995"),
	}

	items := Derive(shipments, nil, payments, day(2024, 3, 1, 12))
	require.Len(t, items, 3)
	assert.Equal(t, StatusPending, items[0].Status)
	assert.Equal(t, StatusPartial, items[1].Status)
	assert.True(t, items[1].Balance.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, StatusPaid, items[2].Status)

	items = Derive(shipments, nil, payments, day(2024, 4, 1, 0))
	assert.True(t, items[0].IsOverdue)
	assert.True(t, items[1].IsOverdue)
	assert.False(t, items[2].IsOverdue, "paid payables never go overdue")
}

func TestDeriveSkipsOpenAndInternalShipments(t *testing.T) {
	at := day(2024, 3, 1, 12)
	internal := returned(2, 10, "Produção interna", 5, "0", at)
	internal.Internal = true
	shipments := []production.Shipment{
		{ID: 1, OrderID: 10, SubcontractorName: "A", SentQuantity: 5, Status: production.ShipmentSent},
		internal,
		returned(3, 10, "A", 5, "1", at),
	}

	items := Derive(shipments, nil, nil, at)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].ShipmentID)
}

func TestDeriveOrdersByDueDate(t *testing.T) {
	shipments := []production.Shipment{
		returned(1, 10, "A", 1, "1", day(2024, 3, 5, 8)),
		returned(2, 10, "A", 1, "1", day(2024, 3, 2, 8)),
		returned(3, 10, "B", 1, "1", day(2024, 3, 5, 7)),
	}

	items := Derive(shipments, nil, nil, day(2024, 3, 1, 0))
	require.Len(t, items, 3)
	assert.Equal(t, []int64{2, 1, 3}, []int64{items[0].ShipmentID, items[1].ShipmentID, items[2].ShipmentID})
}

func TestSummarize(t *testing.T) {
	shipments := []production.Shipment{
		returned(1, 10, "Beta", 10, "1.50", day(2024, 3, 1, 8)),
		returned(2, 11, "Alpha", 4, "2.00", day(2024, 3, 1, 8)),
		returned(3, 12, "Beta", 2, "1.50", day(2024, 3, 20, 8)),
	}
	items := Derive(shipments, nil, []production.PaymentRecord{payment(1, "5")}, day(2024, 3, 10, 0))

	summary := Summarize(items)
	require.Len(t, summary, 2)
	assert.Equal(t, "Alpha", summary[0].Partner)
	beta := summary[1]
	assert.Equal(t, 2, beta.Items)
	assert.True(t, beta.Total.Equal(decimal.RequireFromString("18")))
	assert.True(t, beta.Paid.Equal(decimal.RequireFromString("5")))
	assert.True(t, beta.Balance.Equal(decimal.RequireFromString("13")))
	assert.Equal(t, 1, beta.OverdueCount)
	assert.True(t, beta.Overdue.Equal(decimal.RequireFromString("10")))
}

func TestFilterApply(t *testing.T) {
	items := []PayableItem{
		{ShipmentID: 1, Partner: "Confecção X", Status: StatusPending, IsOverdue: true},
		{ShipmentID: 2, Partner: "Other", Status: StatusPaid},
	}

	assert.Len(t, Filter{Partner: "confecção x"}.Apply(items), 1)
	assert.Len(t, Filter{Status: StatusPaid}.Apply(items), 1)
	assert.Len(t, Filter{OverdueOnly: true}.Apply(items), 1)
	assert.Len(t, Filter{}.Apply(items), 2)
}
