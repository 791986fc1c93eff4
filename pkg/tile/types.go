package tile

// Output format constants
const (
	FormatPNG = iota
	FormatJPEG
	FormatTIFF
)

// Stitch modes
const (
	// ModeViewed draws only the tiles found in the registry.
	ModeViewed = "viewed"
	// ModeCorner draws every cell of the bounding box, discovered or not.
	ModeCorner = "corner"
)

// Provider is a validated map provider descriptor.
type Provider struct {
	CurrentZoom int
	ZoomIn      int
	ZoomOut     int
	TileSize    int
	MapPrefix   string
	WorldName   string
	TilesDir    string
	Extension   string
	Registry    Registry
}

// Entry is one item of a tile registry.
type Entry struct {
	Key  string
	Path string
}

// Registry maps opaque tile keys to file paths, in insertion order.
type Registry []Entry

// Record is a tile selected for drawing. X and Y are grid positions,
// that is raw file coordinates divided by 2^Level.
type Record struct {
	Path  string
	X, Y  int
	Level int
	World string
	Map   string
}

// BoundingBox is the grid extent covered by a set of records.
// The zero value is the box (0,0,0,0).
type BoundingBox struct {
	MinX, MaxX, MinY, MaxY int
}

// Extend widens the box so it contains (x, y).
func (b *BoundingBox) Extend(x, y int) {
	if x < b.MinX {
		b.MinX = x
	}
	if x > b.MaxX {
		b.MaxX = x
	}
	if y < b.MinY {
		b.MinY = y
	}
	if y > b.MaxY {
		b.MaxY = y
	}
}

// Contains reports whether (x, y) lies inside the box, edges included.
func (b BoundingBox) Contains(x, y int) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Cells returns the number of grid cells in the box, edges included.
func (b BoundingBox) Cells() int {
	return (b.MaxX - b.MinX + 1) * (b.MaxY - b.MinY + 1)
}

// FailedTile represents a single failed tile load
type FailedTile struct {
	Path  string
	Error string
}
