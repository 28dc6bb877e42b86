package elevation

import (
	"fmt"
	"math"
	"sync"
)

// Grid is the dense elevation map store. Five equal-sized row-major channels
// describe each cell: the elevation estimate, three variance channels, and
// the last observed color. NaN elevation marks a cell that has never been
// observed since the last reset; its variances are NaN and its color 0.
//
// All five channels are resized together; their lengths are identical at all
// times.
type Grid struct {
	Rows int
	Cols int

	LengthX    float64 // meters
	LengthY    float64 // meters
	Resolution float64 // meters per cell

	Elevation []float64
	Variance  []float64
	VarianceX []float64
	VarianceY []float64
	Color     []uint32

	// mu guards the channel data against concurrent snapshot reads. All
	// mutation happens on the mapper's dispatch goroutine.
	mu sync.RWMutex
}

// NewGrid allocates a grid for the given side lengths and resolution and
// resets all cells to unobserved.
func NewGrid(lengthX, lengthY, resolution float64) *Grid {
	g := &Grid{Resolution: resolution}
	g.Resize(lengthX, lengthY)
	g.Reset()
	return g
}

// Resize reallocates all five channels for the given side lengths. Cell
// contents after a resize are undefined until Reset is called.
func (g *Grid) Resize(lengthX, lengthY float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.LengthX = lengthX
	g.LengthY = lengthY
	g.Rows = int(lengthX / g.Resolution)
	g.Cols = int(lengthY / g.Resolution)

	n := g.Rows * g.Cols
	g.Elevation = make([]float64, n)
	g.Variance = make([]float64, n)
	g.VarianceX = make([]float64, n)
	g.VarianceY = make([]float64, n)
	g.Color = make([]uint32, n)
}

// Reset marks every cell unobserved: float channels to NaN, color to 0.
func (g *Grid) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	nan := math.NaN()
	for i := range g.Elevation {
		g.Elevation[i] = nan
		g.Variance[i] = nan
		g.VarianceX[i] = nan
		g.VarianceY[i] = nan
		g.Color[i] = 0
	}
}

// Idx returns the flat row-major index for a cell.
func (g *Grid) Idx(row, col int) int {
	return row*g.Cols + col
}

// CellCount returns the number of cells per channel.
func (g *Grid) CellCount() int {
	return g.Rows * g.Cols
}

// validate checks the channel-dimension invariant. A mismatch means the grid
// state has been corrupted; callers must abandon the current batch.
func (g *Grid) validate() error {
	n := g.Rows * g.Cols
	if len(g.Elevation) != n || len(g.Variance) != n ||
		len(g.VarianceX) != n || len(g.VarianceY) != n || len(g.Color) != n {
		return fmt.Errorf("grid channel length mismatch: want %d, have elevation=%d variance=%d varianceX=%d varianceY=%d color=%d",
			n, len(g.Elevation), len(g.Variance), len(g.VarianceX), len(g.VarianceY), len(g.Color))
	}
	return nil
}
