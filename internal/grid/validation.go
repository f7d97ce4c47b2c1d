package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrQuantityExceeded indicates a cell reports more than its source cell.
	ErrQuantityExceeded = errors.New("grid: quantity exceeds source")
	// ErrTotalExceeded indicates a stage total plus exceptions exceeds the cap.
	ErrTotalExceeded = errors.New("grid: stage total exceeds cap")
	// ErrNegativeQuantity indicates a negative cell quantity.
	ErrNegativeQuantity = errors.New("grid: quantity must be >= 0")
)

// QuantityExceededError carries the offending cell of a per-cell violation.
type QuantityExceededError struct {
	Cell     Cell
	Quantity int
	Source   int
}

func (e *QuantityExceededError) Error() string {
	if e.Cell == (Cell{}) {
		return fmt.Sprintf("grid: quantity %d exceeds source %d", e.Quantity, e.Source)
	}
	return fmt.Sprintf("grid: %s/%s quantity %d exceeds source %d", e.Cell.Color, e.Cell.Size, e.Quantity, e.Source)
}

func (e *QuantityExceededError) Unwrap() error { return ErrQuantityExceeded }

// TotalExceededError carries the amounts of a stage-total violation.
type TotalExceededError struct {
	Total int
	Cap   int
}

func (e *TotalExceededError) Error() string {
	return fmt.Sprintf("grid: stage total %d exceeds %d", e.Total, e.Cap)
}

func (e *TotalExceededError) Unwrap() error { return ErrTotalExceeded }

// ValidateCell bounds a reported quantity by its source quantity.
func ValidateCell(newQty, sourceQty int) error {
	if newQty < 0 {
		return ErrNegativeQuantity
	}
	if newQty > sourceQty {
		return &QuantityExceededError{Quantity: newQty, Source: sourceQty}
	}
	return nil
}

// ValidateGrid checks every cell of g against source and returns the first
// violation in cell order. Cells missing from source have a source of zero.
func ValidateGrid(g, source Grid) error {
	for _, c := range g.Cells() {
		if err := ValidateCell(g[c], source[c]); err != nil {
			var exceeded *QuantityExceededError
			if errors.As(err, &exceeded) {
				exceeded.Cell = c
				return exceeded
			}
			return fmt.Errorf("%s/%s: %w", c.Color, c.Size, err)
		}
	}
	return nil
}

// ValidateStageTotal fails when the grid total plus the exception counters
// (rework, rejected) exceeds capacity. It is only meant for finalization:
// drafts may transiently exceed the total while being entered.
func ValidateStageTotal(g Grid, exceptions []int, capacity int) error {
	total := Total(g)
	for _, e := range exceptions {
		if e < 0 {
			return ErrNegativeQuantity
		}
		total += e
	}
	if total > capacity {
		return &TotalExceededError{Total: total, Cap: capacity}
	}
	return nil
}
