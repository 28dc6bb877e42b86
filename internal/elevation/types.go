package elevation

import "time"

// Point is a single sensor observation: a 3D position with an RGB color
// sample. It is deliberately decoupled from any transport representation.
type Point struct {
	X float64
	Y float64
	Z float64
	R uint8
	G uint8
	B uint8
}

// PointBatch is one batch from the point stream, tagged with the coordinate
// frame the points are expressed in and the acquisition timestamp.
type PointBatch struct {
	FrameID string
	Stamp   time.Time
	Points  []Point
}

// PackColor packs an RGB triple into the 24-bit color representation stored
// per cell (0x00RRGGBB).
func PackColor(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// UnpackColor splits a packed 24-bit cell color back into RGB.
func UnpackColor(c uint32) (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}
