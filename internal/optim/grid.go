package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pitchsim/internal/dynamo"
)

// Grid is the result of a sweep. Both matrices have shape (len(C), len(K)).
type Grid struct {
	K            []float64
	C            []float64
	Overshoot    *mat.Dense
	SettlingTime *mat.Dense
}

// Cell is one point of a Grid.
type Cell struct {
	Row          int     `json:"row"`
	Col          int     `json:"col"`
	K            float64 `json:"k"`
	C            float64 `json:"c"`
	Overshoot    float64 `json:"overshoot"`
	SettlingTime float64 `json:"settling_time"`
}

func (g *Grid) At(row, col int) Cell {
	return Cell{
		Row:          row,
		Col:          col,
		K:            g.K[col],
		C:            g.C[row],
		Overshoot:    g.Overshoot.At(row, col),
		SettlingTime: g.SettlingTime.At(row, col),
	}
}

// Best is the cell with the shortest settling time among those with
// overshoot at most osMax. Ties go to the first cell in row-major order.
// ok is false when no cell qualifies.
func (g *Grid) Best(osMax float64) (best Cell, ok bool) {
	rows, cols := g.Overshoot.Dims()
	bestTs := math.Inf(1)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if g.Overshoot.At(i, j) > osMax {
				continue
			}
			if ts := g.SettlingTime.At(i, j); ts < bestTs {
				bestTs = ts
				best, ok = g.At(i, j), true
			}
		}
	}
	return best, ok
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, dynamo.Invalid("linspace needs at least one point, got %d", n)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, dynamo.Invalid("linspace bounds must be finite, got [%g, %g]", lo, hi)
	}
	if n == 1 {
		return []float64{lo}, nil
	}
	v := floats.Span(make([]float64, n), lo, hi)
	v[n-1] = hi
	return v, nil
}
