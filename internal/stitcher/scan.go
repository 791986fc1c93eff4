package stitcher

import (
	"github.com/kiesman99/dynstitch/pkg/tile"
)

// Filter selects the registry tiles belonging to one world, map and level.
type Filter struct {
	Level int
	World string
	Map   string
}

// Scan parses every registry path and keeps the tiles matching f, in
// registry order. The returned box covers every accepted tile and is
// (0,0,0,0) when none is accepted. A single malformed path or file name
// fails the whole scan.
func Scan(reg tile.Registry, f Filter) ([]tile.Record, tile.BoundingBox, error) {
	var (
		records []tile.Record
		box     tile.BoundingBox
	)
	scale := 1 << f.Level

	for _, e := range reg {
		info, err := tile.ParsePath(e.Path)
		if err != nil {
			return nil, tile.BoundingBox{}, err
		}
		name, err := tile.ParseName(info.File)
		if err != nil {
			return nil, tile.BoundingBox{}, err
		}

		if name.Level != f.Level || info.World != f.World || info.Map != f.Map {
			continue
		}

		x := tile.FloorDiv(name.X, scale)
		y := tile.FloorDiv(name.Y, scale)
		box.Extend(x, y)

		records = append(records, tile.Record{
			Path:  e.Path,
			X:     x,
			Y:     y,
			Level: name.Level,
			World: info.World,
			Map:   info.Map,
		})
	}

	return records, box, nil
}
