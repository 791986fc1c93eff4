package stitcher

import (
	"github.com/kiesman99/dynstitch/pkg/tile"
)

// GridSpec locates synthesized tiles in the cache layout
// <TilesDir><World>/<Map>/<folder>/<name>.
type GridSpec struct {
	TilesDir  string
	World     string
	Map       string
	Level     int
	Extension string
}

// Reconstruct synthesizes one record for every cell of box, edges
// included, whether or not the tile was ever rendered. Cells are emitted
// column by column: X ascending, then Y ascending.
func Reconstruct(box tile.BoundingBox, g GridSpec) []tile.Record {
	scale := 1 << g.Level
	records := make([]tile.Record, 0, box.Cells())

	for x := box.MinX; x <= box.MaxX; x++ {
		for y := box.MinY; y <= box.MaxY; y++ {
			name := tile.Name{Level: g.Level, X: x * scale, Y: y * scale}
			records = append(records, tile.Record{
				Path:  g.TilesDir + g.World + "/" + g.Map + "/" + name.Folder() + "/" + name.FileName(g.Extension),
				X:     x,
				Y:     y,
				Level: g.Level,
				World: g.World,
				Map:   g.Map,
			})
		}
	}

	return records
}
