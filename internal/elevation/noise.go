package elevation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ProcessNoiseModel grows cell uncertainty over time so stale knowledge
// decays toward "unknown". The growth is a constant per-cycle increment.
// TODO: scale the increment with displacement since the previous update
// instead of a fixed per-cycle constant.
type ProcessNoiseModel struct {
	Delta       float64 // added to every initialized variance per cycle
	MinVariance float64
	MaxVariance float64
}

// Grow adds the configured increment to every initialized variance channel
// and clamps the results into [MinVariance, MaxVariance]. Unobserved cells
// (NaN) are left untouched. A non-nil error means the grid state is
// malformed and the caller must abandon the current batch; the grid is not
// partially modified in that case.
func (p *ProcessNoiseModel) Grow(g *Grid) error {
	if err := g.validate(); err != nil {
		return fmt.Errorf("process noise growth: %w", err)
	}

	for _, channel := range [][]float64{g.Variance, g.VarianceX, g.VarianceY} {
		floats.AddConst(p.Delta, channel)
		clampVariances(channel, p.MinVariance, p.MaxVariance)
	}
	return nil
}

// clampVariances clamps every initialized entry into [lo, hi], preserving
// NaN for unobserved cells.
func clampVariances(vs []float64, lo, hi float64) {
	for i, v := range vs {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			vs[i] = lo
		} else if v > hi {
			vs[i] = hi
		}
	}
}
