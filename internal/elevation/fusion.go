package elevation

import (
	"fmt"
	"math"

	"github.com/gstavrinos/elevation-mapping/internal/config"
)

// VariancePolicy selects how the per-axis variance channels are computed
// during an update.
type VariancePolicy int

const (
	// VariancePolicyCoupled reproduces the reference behaviour: varianceX
	// and varianceY are computed from the already-updated main variance,
	// making them depend on the update order of the channels.
	VariancePolicyCoupled VariancePolicy = iota

	// VariancePolicyIndependent computes all three channels from the same
	// pre-update snapshot, treating them as independent per-axis
	// uncertainties.
	VariancePolicyIndependent
)

// ParseVariancePolicy converts a configuration string to a VariancePolicy.
func ParseVariancePolicy(s string) (VariancePolicy, error) {
	switch s {
	case config.VariancePolicyCoupled:
		return VariancePolicyCoupled, nil
	case config.VariancePolicyIndependent:
		return VariancePolicyIndependent, nil
	}
	return 0, fmt.Errorf("unknown variance policy %q", s)
}

func (p VariancePolicy) String() string {
	switch p {
	case VariancePolicyCoupled:
		return config.VariancePolicyCoupled
	case VariancePolicyIndependent:
		return config.VariancePolicyIndependent
	}
	return fmt.Sprintf("VariancePolicy(%d)", int(p))
}

// Measurement is one observation to fuse into a cell.
type Measurement struct {
	Elevation float64
	Color     uint32
}

// FusionEngine applies the recursive Bayesian update of a single observation
// into one cell. The rule is a 1D Kalman update assuming independent,
// zero-mean Gaussian noise with a known, constant measurement variance; it
// does not model spatial correlation between cells.
type FusionEngine struct {
	MeasurementVariance float64
	Policy              VariancePolicy
}

// Fuse merges a measurement into the cell at idx.
//
// An unobserved cell (NaN elevation) is cold-started: the first sample is
// trusted fully and every variance channel is set to the measurement
// variance. Otherwise the elevation is the inverse-variance weighted mean of
// the prior estimate and the measurement, and the variances shrink
// accordingly. The color is always overwritten with the latest observation.
func (f *FusionEngine) Fuse(g *Grid, idx CellIndex, m Measurement) {
	i := g.Idx(idx.Row, idx.Col)
	r := f.MeasurementVariance

	if math.IsNaN(g.Elevation[i]) {
		g.Elevation[i] = m.Elevation
		g.Variance[i] = r
		g.VarianceX[i] = r
		g.VarianceY[i] = r
		g.Color[i] = m.Color
		return
	}

	variance := g.Variance[i]
	g.Elevation[i] = (variance*m.Elevation + r*g.Elevation[i]) / (variance + r)
	g.Variance[i] = (r * variance) / (r + variance)

	switch f.Policy {
	case VariancePolicyIndependent:
		g.VarianceX[i] = (r * g.VarianceX[i]) / (r + g.VarianceX[i])
		g.VarianceY[i] = (r * g.VarianceY[i]) / (r + g.VarianceY[i])
	default:
		// Coupled: feed the already-updated main variance through the
		// same formula, as the reference does.
		g.VarianceX[i] = (r * g.Variance[i]) / (r + g.Variance[i])
		g.VarianceY[i] = (r * g.Variance[i]) / (r + g.Variance[i])
	}

	g.Color[i] = m.Color
}
