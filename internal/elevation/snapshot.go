package elevation

import "time"

// MapSnapshot is the immutable map message handed to downstream consumers:
// the grid geometry plus a copy of all five channels in row-major order.
// Note: the float channels may contain NaN (unobserved cells), so snapshots
// are never fed to encoding/json directly; the publish package defines the
// wire encoding.
type MapSnapshot struct {
	Stamp      time.Time
	FrameID    string
	Resolution float64
	LengthX    float64
	LengthY    float64
	Rows       int
	Cols       int

	Elevation []float64
	Variance  []float64
	VarianceX []float64
	VarianceY []float64
	Color     []uint32
}

// Snapshot copies the current grid state into a MapSnapshot. Safe to call
// from any goroutine.
func (g *Grid) Snapshot(stamp time.Time, frameID string) *MapSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := &MapSnapshot{
		Stamp:      stamp,
		FrameID:    frameID,
		Resolution: g.Resolution,
		LengthX:    g.LengthX,
		LengthY:    g.LengthY,
		Rows:       g.Rows,
		Cols:       g.Cols,
		Elevation:  make([]float64, len(g.Elevation)),
		Variance:   make([]float64, len(g.Variance)),
		VarianceX:  make([]float64, len(g.VarianceX)),
		VarianceY:  make([]float64, len(g.VarianceY)),
		Color:      make([]uint32, len(g.Color)),
	}
	copy(s.Elevation, g.Elevation)
	copy(s.Variance, g.Variance)
	copy(s.VarianceX, g.VarianceX)
	copy(s.VarianceY, g.VarianceY)
	copy(s.Color, g.Color)
	return s
}
