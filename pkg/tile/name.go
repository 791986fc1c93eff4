package tile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Tile file names follow the grammar
//
//	name   = [ levelPrefix "_" ] coord "_" coord [ "." ext ]
//	levelPrefix = "z"{level}
//	coord  = [ "-" ] digit { digit }
//
// where the number of leading z characters is the tile level. Parsing is
// lenient in the same way the tile caches are: the level is the length of
// the first run of z anywhere in the name, and the coordinates are the
// signed integers found in it, of which there must be exactly two.
var (
	levelRunRe = regexp.MustCompile(`z+`)
	coordRe    = regexp.MustCompile(`-?[0-9]+`)
)

// LevelMarker is the character repeated once per tile level in file names.
const LevelMarker = "z"

// FolderSize is the number of raw file coordinates grouped into one folder.
const FolderSize = 32

const minPathSegments = 5

// Name is a parsed tile file name. X and Y are raw file coordinates.
type Name struct {
	Level int
	X, Y  int
}

// ParseName parses a tile file name such as "zzz_-96_32.png".
func ParseName(name string) (Name, error) {
	var n Name
	if run := levelRunRe.FindString(name); run != "" {
		n.Level = len(run)
	}

	coords := coordRe.FindAllString(name, -1)
	if len(coords) != 2 {
		return Name{}, &NameError{Name: name, Coords: len(coords)}
	}

	var err error
	if n.X, err = strconv.Atoi(coords[0]); err != nil {
		return Name{}, fmt.Errorf("%w: %q: %v", ErrMalformedName, name, err)
	}
	if n.Y, err = strconv.Atoi(coords[1]); err != nil {
		return Name{}, fmt.Errorf("%w: %q: %v", ErrMalformedName, name, err)
	}
	return n, nil
}

// String formats the name without an extension.
func (n Name) String() string {
	var sb strings.Builder
	if n.Level > 0 {
		sb.WriteString(strings.Repeat(LevelMarker, n.Level))
		sb.WriteByte('_')
	}
	fmt.Fprintf(&sb, "%d_%d", n.X, n.Y)
	return sb.String()
}

// FileName formats the name with ext appended, if any.
func (n Name) FileName(ext string) string {
	if ext == "" {
		return n.String()
	}
	return n.String() + "." + strings.TrimPrefix(ext, ".")
}

// Folder returns the bucket folder holding the tile, e.g. "-1_0".
func (n Name) Folder() string {
	return fmt.Sprintf("%d_%d", FloorDiv(n.X, FolderSize), FloorDiv(n.Y, FolderSize))
}

// PathInfo holds the segments of a registry path that identify a tile.
type PathInfo struct {
	World  string
	Map    string
	Folder string
	File   string
}

// ParsePath splits a registry path such as "tiles/world/flat/0_0/zzz_0_0.png".
func ParsePath(path string) (PathInfo, error) {
	parts := strings.Split(path, "/")
	n := len(parts)
	if n < minPathSegments {
		return PathInfo{}, &PathError{Path: path, Segments: n}
	}
	return PathInfo{
		World:  parts[n-4],
		Map:    parts[n-3],
		Folder: parts[n-2],
		File:   parts[n-1],
	}, nil
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
