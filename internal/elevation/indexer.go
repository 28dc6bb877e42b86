package elevation

// CellIndex addresses one cell of the grid.
type CellIndex struct {
	Row int
	Col int
}

// IndexForPosition maps a 2D position in the map frame to a cell index. The
// grid is centered on the frame origin; positions outside
// [-LengthX/2, LengthX/2) x [-LengthY/2, LengthY/2) report ok=false.
// Out-of-bounds positions are routine for points near the sensor's range
// limit, not faults.
func (g *Grid) IndexForPosition(x, y float64) (CellIndex, bool) {
	halfX := g.LengthX / 2
	halfY := g.LengthY / 2
	if x < -halfX || x >= halfX || y < -halfY || y >= halfY {
		return CellIndex{}, false
	}

	row := int((x + halfX) / g.Resolution)
	col := int((y + halfY) / g.Resolution)
	// The side length need not be an exact multiple of the resolution: a
	// position in the trailing partial cell is outside the grid.
	if row >= g.Rows || col >= g.Cols {
		return CellIndex{}, false
	}
	return CellIndex{Row: row, Col: col}, true
}

// PositionForIndex returns the center position of a cell in the map frame.
func (g *Grid) PositionForIndex(idx CellIndex) (x, y float64) {
	x = -g.LengthX/2 + (float64(idx.Row)+0.5)*g.Resolution
	y = -g.LengthY/2 + (float64(idx.Col)+0.5)*g.Resolution
	return x, y
}
