package tile

import "fmt"

// LevelTable maps a viewport zoom index to a pyramid tile level.
// Index 0 is the most zoomed-out viewport.
type LevelTable []int

// NewLevelTable builds the table for a map with the given zoom-in and
// zoom-out ranges. Zoom indices past the zoom-out range clamp to level 0.
func NewLevelTable(zoomIn, zoomOut int) LevelTable {
	table := make(LevelTable, 0, zoomIn+zoomOut+1)
	for i := zoomOut; i >= -zoomIn; i-- {
		table = append(table, max(i, 0))
	}
	return table
}

// Level returns the tile level for the viewport zoom.
func (t LevelTable) Level(zoom int) (int, error) {
	if zoom < 0 || zoom >= len(t) {
		return 0, fmt.Errorf("%w: zoom %d not in [0, %d]", ErrZoomOutOfRange, zoom, len(t)-1)
	}
	return t[zoom], nil
}
