package tile

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Descriptor is a map provider document as exported by a Dynmap web
// viewer. Every field is optional at the decoding level so that missing
// ones can be reported by Validate.
type Descriptor struct {
	Map             *MapState    `yaml:"map,omitempty" json:"map,omitempty"`
	MapType         *MapType     `yaml:"maptype,omitempty" json:"maptype,omitempty"`
	Options         *SiteOptions `yaml:"options,omitempty" json:"options,omitempty"`
	RegisteredTiles *Registry    `yaml:"registeredTiles,omitempty" json:"registeredTiles,omitempty"`
	World           *World       `yaml:"world,omitempty" json:"world,omitempty"`
}

type MapState struct {
	Zoom *int `yaml:"zoom,omitempty" json:"zoom,omitempty"`
}

type MapType struct {
	Options *MapOptions `yaml:"options,omitempty" json:"options,omitempty"`
}

type MapOptions struct {
	MapZoomIn  *int    `yaml:"mapzoomin,omitempty" json:"mapzoomin,omitempty"`
	MapZoomOut *int    `yaml:"mapzoomout,omitempty" json:"mapzoomout,omitempty"`
	Prefix     *string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	TileSize   *int    `yaml:"tileSize,omitempty" json:"tileSize,omitempty"`
	// Extension is appended to synthesized tile names, e.g. "png".
	Extension string `yaml:"extension,omitempty" json:"extension,omitempty"`
}

type SiteOptions struct {
	URL *SiteURLs `yaml:"url,omitempty" json:"url,omitempty"`
}

type SiteURLs struct {
	Tiles *string `yaml:"tiles,omitempty" json:"tiles,omitempty"`
}

type World struct {
	Name *string `yaml:"name,omitempty" json:"name,omitempty"`
}

// LoadDescriptor decodes a YAML or JSON descriptor document.
func LoadDescriptor(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		if err == io.EOF {
			return &d, nil
		}
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	return &d, nil
}

// Validate checks that every field the export needs is present and
// returns the flattened provider. All fields are checked before any
// value is used.
func (d *Descriptor) Validate() (*Provider, error) {
	if d == nil {
		return nil, &PreconditionError{Path: "descriptor"}
	}

	var opts *MapOptions
	if d.MapType != nil {
		opts = d.MapType.Options
	}
	var tilesDir *string
	if d.Options != nil && d.Options.URL != nil {
		tilesDir = d.Options.URL.Tiles
	}
	var world *string
	if d.World != nil {
		world = d.World.Name
	}

	checks := []struct {
		path    string
		present bool
	}{
		{"maptype.options", opts != nil},
		{"maptype.options.mapzoomin", opts != nil && opts.MapZoomIn != nil},
		{"maptype.options.mapzoomout", opts != nil && opts.MapZoomOut != nil},
		{"maptype.options.prefix", opts != nil && opts.Prefix != nil},
		{"maptype.options.tileSize", opts != nil && opts.TileSize != nil},
		{"options.url.tiles", tilesDir != nil},
		{"registeredTiles", d.RegisteredTiles != nil},
		{"world.name", world != nil},
	}
	for _, c := range checks {
		if !c.present {
			return nil, &PreconditionError{Path: c.path}
		}
	}

	if *opts.MapZoomIn < 0 {
		return nil, &PreconditionError{Path: "maptype.options.mapzoomin", Reason: "must not be negative"}
	}
	if *opts.MapZoomOut < 0 {
		return nil, &PreconditionError{Path: "maptype.options.mapzoomout", Reason: "must not be negative"}
	}
	if *opts.TileSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrZeroTileSize, *opts.TileSize)
	}

	p := &Provider{
		ZoomIn:    *opts.MapZoomIn,
		ZoomOut:   *opts.MapZoomOut,
		TileSize:  *opts.TileSize,
		MapPrefix: *opts.Prefix,
		WorldName: *world,
		TilesDir:  *tilesDir,
		Extension: opts.Extension,
		Registry:  *d.RegisteredTiles,
	}
	if d.Map != nil && d.Map.Zoom != nil {
		p.CurrentZoom = *d.Map.Zoom
	}
	return p, nil
}
