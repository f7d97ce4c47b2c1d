package grid

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCell(t *testing.T) {
	require.NoError(t, ValidateCell(5, 5))
	require.NoError(t, ValidateCell(0, 0))
	require.ErrorIs(t, ValidateCell(6, 5), ErrQuantityExceeded)
	require.ErrorIs(t, ValidateCell(-1, 5), ErrNegativeQuantity)
}

func TestValidateGridReportsOffendingCell(t *testing.T) {
	source := FromItems([]Item{{Color: "Blue", Size: "M", Quantity: 10}, {Color: "Blue", Size: "L", Quantity: 5}})
	reported := Set(source, "Blue", "M", 11)

	err := ValidateGrid(reported, source)
	require.ErrorIs(t, err, ErrQuantityExceeded)
	var exceeded *QuantityExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, Cell{Color: "Blue", Size: "M"}, exceeded.Cell)
	assert.Equal(t, 11, exceeded.Quantity)
	assert.Equal(t, 10, exceeded.Source)
}

func TestValidateGridUnknownCell(t *testing.T) {
	source := FromItems([]Item{{Color: "Blue", Size: "M", Quantity: 10}})
	require.ErrorIs(t, ValidateGrid(Set(source, "Red", "M", 1), source), ErrQuantityExceeded)
	require.NoError(t, ValidateGrid(Set(source, "Red", "M", 0), source))
}

func TestSetThenValidateAgreesWithCellBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	colors := []string{"Blue", "Red"}
	sizes := []string{"S", "M", "L"}
	for i := 0; i < 200; i++ {
		source := Grid{}
		reported := Grid{}
		within := true
		for _, c := range colors {
			for _, s := range sizes {
				src := rng.Intn(6)
				source = Set(source, c, s, src)
				qty := rng.Intn(8)
				reported = Set(reported, c, s, qty)
				if qty > src {
					within = false
				}
			}
		}
		err := ValidateGrid(reported, source)
		if within {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, ErrQuantityExceeded)
		}
	}
}

func TestValidateStageTotalBoundary(t *testing.T) {
	approved := FromItems([]Item{{Color: "Blue", Size: "M", Quantity: 8}, {Color: "Blue", Size: "L", Quantity: 4}})

	require.NoError(t, ValidateStageTotal(approved, []int{2, 1}, 15))

	err := ValidateStageTotal(approved, []int{2, 2}, 15)
	require.ErrorIs(t, err, ErrTotalExceeded)
	var exceeded *TotalExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 16, exceeded.Total)
	assert.Equal(t, 15, exceeded.Cap)

	require.ErrorIs(t, ValidateStageTotal(approved, []int{-1}, 15), ErrNegativeQuantity)
}
