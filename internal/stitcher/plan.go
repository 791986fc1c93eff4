package stitcher

import (
	"fmt"
	"image"
	"math"

	"github.com/kiesman99/dynstitch/pkg/tile"
)

// Plan describes what an export will draw. It is derived from a provider
// and never modified after construction.
type Plan struct {
	Mode     string
	Zoom     int
	Level    int
	Scale    int // raw file coordinate step between adjacent tiles, 2^Level
	TileSize int

	Box     tile.BoundingBox
	Records []tile.Record

	Width  int
	Height int
}

// NewPlan translates the provider zoom into a tile level, scans the
// registry and, in corner mode, replaces the scanned tiles by the full grid
// of their bounding box. maxPixels bounds the corner grid before it is
// built: at most maxPixels/tileSize² cells are synthesized. A value <= 0
// means DefaultMaxPixels.
func NewPlan(p *tile.Provider, mode string, maxPixels int64) (*Plan, error) {
	switch mode {
	case "":
		mode = tile.ModeViewed
	case tile.ModeViewed, tile.ModeCorner:
	default:
		return nil, fmt.Errorf("unknown mode %q (want %s or %s)", mode, tile.ModeViewed, tile.ModeCorner)
	}
	if p.TileSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", tile.ErrZeroTileSize, p.TileSize)
	}

	level, err := tile.NewLevelTable(p.ZoomIn, p.ZoomOut).Level(p.CurrentZoom)
	if err != nil {
		return nil, err
	}

	records, box, err := Scan(p.Registry, Filter{Level: level, World: p.WorldName, Map: p.MapPrefix})
	if err != nil {
		return nil, err
	}

	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	ts := int64(p.TileSize)
	spanX, spanY := int64(box.MaxX)-int64(box.MinX), int64(box.MaxY)-int64(box.MinY)
	if spanX < 0 || spanY < 0 || !fits(spanX, ts, math.MaxInt) || !fits(spanY, ts, math.MaxInt) {
		return nil, fmt.Errorf("%w: bounds x:[%d,%d] y:[%d,%d]", ErrTooLarge, box.MinX, box.MaxX, box.MinY, box.MaxY)
	}

	if mode == tile.ModeCorner {
		var cellLimit int64
		if fits(ts, ts, maxPixels) {
			cellLimit = maxPixels / (ts * ts)
		}
		if spanX >= cellLimit || spanY >= cellLimit || !fits(spanX+1, spanY+1, cellLimit) {
			return nil, fmt.Errorf("%w: corner grid of %dx%d tiles exceeds %d tiles",
				ErrTooLarge, uint64(spanX)+1, uint64(spanY)+1, cellLimit)
		}
		records = Reconstruct(box, GridSpec{
			TilesDir:  p.TilesDir,
			World:     p.WorldName,
			Map:       p.MapPrefix,
			Level:     level,
			Extension: p.Extension,
		})
	}

	return &Plan{
		Mode:     mode,
		Zoom:     p.CurrentZoom,
		Level:    level,
		Scale:    1 << level,
		TileSize: p.TileSize,
		Box:      box,
		Records:  records,
		Width:    int(spanX * ts),
		Height:   int(spanY * ts),
	}, nil
}

// fits reports whether a*b <= limit for non-negative a and b.
func fits(a, b, limit int64) bool {
	return a == 0 || b <= limit/a
}

// RemapY mirrors a grid row inside [MinY, MaxY]. Tile rows grow upward
// while raster rows grow downward.
func (p *Plan) RemapY(y int) int {
	return p.Box.MinY + p.Box.MaxY - y
}

// DrawOffset returns the raster position of the top-left corner of r.
func (p *Plan) DrawOffset(r tile.Record) image.Point {
	return image.Pt(
		(r.X-p.Box.MinX)*p.TileSize,
		(p.RemapY(r.Y)-p.Box.MinY)*p.TileSize,
	)
}
