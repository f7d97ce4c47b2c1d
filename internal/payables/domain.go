package payables

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-garment/internal/production"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// PaymentStatus is the settlement state of a payable.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusPartial PaymentStatus = "PARTIAL"
	StatusPaid    PaymentStatus = "PAID"
)

// IsValid checks if the status is known.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPartial, StatusPaid:
		return true
	default:
		return false
	}
}

// Epsilon is the balance under which a payable counts as settled.
var Epsilon = decimal.New(1, -2)

var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	ErrNotPayable    = errors.New("shipment has no payable")
	ErrInvalidStatus = errors.New("unknown payable status")
)

// PayableItem is the amount owed to a partner for one executed shipment.
// It is derived on read and never stored.
type PayableItem struct {
	ShipmentID    int64           `json:"shipment_id"`
	OrderID       int64           `json:"order_id"`
	LotNumber     string          `json:"lot_number,omitempty"`
	Partner       string          `json:"partner"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ExecutionDate time.Time       `json:"execution_date"`
	DueDate       time.Time       `json:"due_date"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Balance       decimal.Decimal `json:"balance"`
	Status        PaymentStatus   `json:"status"`
	IsOverdue     bool            `json:"is_overdue"`
	DaysOverdue   int             `json:"days_overdue"`
}

// PartnerSummary aggregates payables per partner.
type PartnerSummary struct {
	Partner      string          `json:"partner"`
	Items        int             `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Balance      decimal.Decimal `json:"balance"`
	Overdue      decimal.Decimal `json:"overdue"`
	OverdueCount int             `json:"overdue_count"`
}

// Filter narrows a payable listing.
type Filter struct {
	Partner     string
	Status      PaymentStatus
	OverdueOnly bool
}

func (f Filter) matches(item PayableItem) bool {
	if f.Partner != "" && !strings.EqualFold(item.Partner, f.Partner) {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.OverdueOnly && !item.IsOverdue {
		return false
	}
	return true
}

// Apply returns the items matching f.
func (f Filter) Apply(items []PayableItem) []PayableItem {
	out := make([]PayableItem, 0, len(items))
	for _, item := range items {
		if f.matches(item) {
			out = append(out, item)
		}
	}
	return out
}

// Derive projects payables from executed shipments and the payment ledger.
// Internal production and shipments without a registered return are skipped.
// orders may be nil; it only supplies lot numbers.
func Derive(shipments []production.Shipment, orders map[int64]production.Order, payments []production.PaymentRecord, today time.Time) []PayableItem {
	paid := make(map[int64]decimal.Decimal)
	for _, p := range payments {
		paid[p.ShipmentID] = paid[p.ShipmentID].Add(p.Amount)
	}
	day := truncateDay(today)

	items := make([]PayableItem, 0, len(shipments))
	for _, s := range shipments {
		if s.Internal || s.ReceivedQuantity <= 0 || s.ReturnDate == nil {
			continue
		}
		item := PayableItem{
			ShipmentID:    s.ID,
			OrderID:       s.OrderID,
			Partner:       shared.NormalizeName(s.SubcontractorName),
			Quantity:      s.ReceivedQuantity,
			UnitPrice:     s.UnitPrice,
			ExecutionDate: *s.ReturnDate,
			DueDate:       DueDate(*s.ReturnDate),
			Total:         s.UnitPrice.Mul(decimal.NewFromInt(int64(s.ReceivedQuantity))),
			AmountPaid:    paid[s.ID],
		}
		if order, ok := orders[s.OrderID]; ok {
			item.LotNumber = order.LotNumber
		}
		item.Balance = item.Total.Sub(item.AmountPaid)
		item.Status = settlement(item.Balance, item.AmountPaid)
		if item.Status != StatusPaid && item.DueDate.Before(day) {
			item.IsOverdue = true
			item.DaysOverdue = int(day.Sub(item.DueDate).Hours() / 24)
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DueDate.Equal(items[j].DueDate) {
			return items[i].DueDate.Before(items[j].DueDate)
		}
		return items[i].ShipmentID < items[j].ShipmentID
	})
	return items
}

// DueDate is the calendar day after execution.
func DueDate(executed time.Time) time.Time {
	return truncateDay(executed).AddDate(0, 0, 1)
}

func settlement(balance, paid decimal.Decimal) PaymentStatus {
	switch {
	case balance.LessThanOrEqual(Epsilon):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Summarize groups items by partner, ordered by partner name.
func Summarize(items []PayableItem) []PartnerSummary {
	byPartner := make(map[string]*PartnerSummary)
	for _, item := range items {
		sum, ok := byPartner[item.Partner]
		if !ok {
			sum = &PartnerSummary{Partner: item.Partner}
			byPartner[item.Partner] = sum
		}
		sum.Items++
		sum.Total = sum.Total.Add(item.Total)
		sum.Paid = sum.Paid.Add(item.AmountPaid)
		sum.Balance = sum.Balance.Add(item.Balance)
		if item.IsOverdue {
			sum.OverdueCount++
			sum.Overdue = sum.Overdue.Add(item.Balance)
		}
	}
	out := make([]PartnerSummary, 0, len(byPartner))
	for _, sum := range byPartner {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partner < out[j].Partner })
	return out
}
