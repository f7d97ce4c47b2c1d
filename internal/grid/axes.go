package grid

import "sort"

// Axes holds the distinct colors and sizes of an order, derived once from its
// planned item list and reused by every stage.
type Axes struct {
	Colors []string
	Sizes  []string
}

// NewAxes derives the axes from items. Colors keep first-seen order, sizes are
// sorted lexicographically.
func NewAxes(items []Item) Axes {
	var axes Axes
	seenColor := make(map[string]struct{})
	seenSize := make(map[string]struct{})
	for _, it := range items {
		if _, ok := seenColor[it.Color]; !ok {
			seenColor[it.Color] = struct{}{}
			axes.Colors = append(axes.Colors, it.Color)
		}
		if _, ok := seenSize[it.Size]; !ok {
			seenSize[it.Size] = struct{}{}
			axes.Sizes = append(axes.Sizes, it.Size)
		}
	}
	sort.Strings(axes.Sizes)
	return axes
}

// Contains reports whether both the color and the size belong to the axes.
func (a Axes) Contains(c Cell) bool {
	return contains(a.Colors, c.Color) && contains(a.Sizes, c.Size)
}

// Cells enumerates every color/size combination row by row.
func (a Axes) Cells() []Cell {
	out := make([]Cell, 0, len(a.Colors)*len(a.Sizes))
	for _, color := range a.Colors {
		for _, size := range a.Sizes {
			out = append(out, Cell{Color: color, Size: size})
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
