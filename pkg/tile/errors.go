package tile

import (
	"errors"
	"fmt"
)

var (
	ErrPrecondition   = errors.New("tile: missing descriptor field")
	ErrZeroTileSize   = errors.New("tile: tile size must be positive")
	ErrZoomOutOfRange = errors.New("tile: zoom out of range")
	ErrMalformedPath  = errors.New("tile: malformed tile path")
	ErrMalformedName  = errors.New("tile: malformed tile file name")
	ErrUnknownFormat  = errors.New("tile: unknown image format")
)

// PreconditionError names the descriptor field that is missing or invalid.
type PreconditionError struct {
	Path   string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("descriptor field %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("descriptor is missing %s", e.Path)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// PathError reports a registry path with too few segments.
type PathError struct {
	Path     string
	Segments int
}

func (e *PathError) Error() string {
	return fmt.Sprintf("tile path %q has %d segments, need at least %d", e.Path, e.Segments, minPathSegments)
}

func (e *PathError) Unwrap() error { return ErrMalformedPath }

// NameError reports a tile file name that does not carry exactly two coordinates.
type NameError struct {
	Name   string
	Coords int
}

func (e *NameError) Error() string {
	return fmt.Sprintf("tile file name %q has %d coordinates, need 2", e.Name, e.Coords)
}

func (e *NameError) Unwrap() error { return ErrMalformedName }
