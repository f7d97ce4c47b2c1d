// Package grid models the color x size quantity breakdown shared by every
// production stage.
package grid

import (
	"encoding/json"
	"sort"
)

// Cell identifies one color/size position of a grid.
type Cell struct {
	Color string
	Size  string
}

// Item is the flat list form of a grid cell, as stored on production orders.
type Item struct {
	Color    string `json:"color" validate:"required"`
	Size     string `json:"size" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// Grid maps cells to non-negative quantities. A missing cell reads as zero.
// Grids are treated as values: helpers in this package never mutate their
// arguments.
type Grid map[Cell]int

// FromItems builds a grid from an item list. Repeated cells are summed.
func FromItems(items []Item) Grid {
	g := make(Grid, len(items))
	for _, it := range items {
		g[Cell{Color: it.Color, Size: it.Size}] += it.Quantity
	}
	return g
}

// Items returns the grid as an item list ordered by color then size.
func (g Grid) Items() []Item {
	cells := g.Cells()
	out := make([]Item, 0, len(cells))
	for _, c := range cells {
		out = append(out, Item{Color: c.Color, Size: c.Size, Quantity: g[c]})
	}
	return out
}

// Cells lists the populated cells in deterministic order.
func (g Grid) Cells() []Cell {
	cells := make([]Cell, 0, len(g))
	for c := range g {
		cells = append(cells, c)
	}
	sortCells(cells)
	return cells
}

// Quantity returns the quantity of a cell, or 0 when absent.
func Quantity(g Grid, color, size string) int {
	if g == nil {
		return 0
	}
	return g[Cell{Color: color, Size: size}]
}

// Set returns a copy of g with the cell updated. The input is left untouched;
// callers persist the returned grid.
func Set(g Grid, color, size string, qty int) Grid {
	out := Clone(g)
	out[Cell{Color: color, Size: size}] = qty
	return out
}

// RowTotal sums every size of a color.
func RowTotal(g Grid, color string) int {
	total := 0
	for c, q := range g {
		if c.Color == color {
			total += q
		}
	}
	return total
}

// Total sums every cell.
func Total(g Grid) int {
	total := 0
	for _, q := range g {
		total += q
	}
	return total
}

// Clone copies a grid. A nil grid clones to an empty one.
func Clone(g Grid) Grid {
	out := make(Grid, len(g))
	for c, q := range g {
		out[c] = q
	}
	return out
}

// Add sums two grids cell by cell.
func Add(a, b Grid) Grid {
	out := Clone(a)
	for c, q := range b {
		out[c] += q
	}
	return out
}

// Subtract returns a-b per cell, floored at zero. Cells of b that are absent
// from a are ignored.
func Subtract(a, b Grid) Grid {
	out := make(Grid, len(a))
	for c, q := range a {
		rest := q - b[c]
		if rest < 0 {
			rest = 0
		}
		out[c] = rest
	}
	return out
}

// IsZero reports whether every cell is zero.
func IsZero(g Grid) bool {
	for _, q := range g {
		if q != 0 {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the grid as {"color": {"size": qty}}.
func (g Grid) MarshalJSON() ([]byte, error) {
	nested := make(map[string]map[string]int)
	for c, q := range g {
		row, ok := nested[c.Color]
		if !ok {
			row = make(map[string]int)
			nested[c.Color] = row
		}
		row[c.Size] = q
	}
	return json.Marshal(nested)
}

// UnmarshalJSON decodes the nested color/size form.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var nested map[string]map[string]int
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	out := make(Grid)
	for color, row := range nested {
		for size, q := range row {
			out[Cell{Color: color, Size: size}] = q
		}
	}
	*g = out
	return nil
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Color != cells[j].Color {
			return cells[i].Color < cells[j].Color
		}
		return cells[i].Size < cells[j].Size
	})
}
