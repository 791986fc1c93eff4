package stitcher

import (
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kiesman99/dynstitch/pkg/tile"
)

func TestReconstruct(t *testing.T) {
	box := tile.BoundingBox{MinX: -1, MaxX: 1, MinY: 0, MaxY: 1}
	records := Reconstruct(box, GridSpec{TilesDir: "tiles/", World: "world", Map: "flat", Level: 1, Extension: "png"})

	if got, want := len(records), box.Cells(); got != want {
		t.Fatalf("len(records) = %d, want %d", got, want)
	}

	seen := make(map[[2]int]bool)
	for _, r := range records {
		pos := [2]int{r.X, r.Y}
		if seen[pos] {
			t.Errorf("position %v emitted twice", pos)
		}
		seen[pos] = true
		if !box.Contains(r.X, r.Y) {
			t.Errorf("record %+v outside box", r)
		}
	}

	var paths []string
	for _, r := range records {
		paths = append(paths, r.Path)
	}
	want := []string{
		"tiles/world/flat/-1_0/z_-2_0.png",
		"tiles/world/flat/-1_0/z_-2_2.png",
		"tiles/world/flat/0_0/z_0_0.png",
		"tiles/world/flat/0_0/z_0_2.png",
		"tiles/world/flat/0_0/z_2_0.png",
		"tiles/world/flat/0_0/z_2_2.png",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstructRoundTripsThroughScan(t *testing.T) {
	box := tile.BoundingBox{MinX: -40, MaxX: -38, MinY: 31, MaxY: 33}
	records := Reconstruct(box, GridSpec{TilesDir: "up/tiles/", World: "w", Map: "t", Level: 3})

	var reg tile.Registry
	for _, r := range records {
		reg = append(reg, tile.Entry{Key: r.Path, Path: r.Path})
	}
	scanned, _, err := Scan(reg, Filter{Level: 3, World: "w", Map: "t"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if diff := cmp.Diff(records, scanned); diff != "" {
		t.Errorf("scan of reconstructed grid mismatch (-want +got):\n%s", diff)
	}
}

func testProvider(paths ...string) *tile.Provider {
	return &tile.Provider{
		TileSize:  4,
		MapPrefix: "flat",
		WorldName: "world",
		TilesDir:  "tiles/",
		Extension: "png",
		Registry:  registry(paths...),
	}
}

func TestNewPlan(t *testing.T) {
	p := testProvider(
		"tiles/world/flat/0_0/0_0.png",
		"tiles/world/flat/0_0/3_1.png",
		"tiles/world/flat/-1_-1/-2_-1.png",
	)

	viewed, err := NewPlan(p, "", 0)
	if err != nil {
		t.Fatalf("NewPlan(viewed) failed: %v", err)
	}
	if viewed.Mode != tile.ModeViewed || len(viewed.Records) != 3 {
		t.Errorf("viewed plan = %s with %d records", viewed.Mode, len(viewed.Records))
	}
	if viewed.Width != 5*4 || viewed.Height != 2*4 {
		t.Errorf("raster = %dx%d, want 20x8", viewed.Width, viewed.Height)
	}

	corner, err := NewPlan(p, tile.ModeCorner, 0)
	if err != nil {
		t.Fatalf("NewPlan(corner) failed: %v", err)
	}
	if got, want := len(corner.Records), 6*3; got != want {
		t.Errorf("corner plan has %d records, want %d", got, want)
	}
	if corner.Box != viewed.Box || corner.Width != viewed.Width {
		t.Errorf("corner plan box %+v differs from viewed %+v", corner.Box, viewed.Box)
	}
}

func TestNewPlanErrors(t *testing.T) {
	p := testProvider("tiles/world/flat/0_0/0_0.png")
	if _, err := NewPlan(p, "diagonal", 0); err == nil {
		t.Errorf("NewPlan accepted an unknown mode")
	}

	p.CurrentZoom = 1
	if _, err := NewPlan(p, "", 0); !errors.Is(err, tile.ErrZoomOutOfRange) {
		t.Errorf("NewPlan error = %v, want ErrZoomOutOfRange", err)
	}

	p.CurrentZoom = 0
	p.TileSize = 0
	if _, err := NewPlan(p, "", 0); !errors.Is(err, tile.ErrZeroTileSize) {
		t.Errorf("NewPlan error = %v, want ErrZeroTileSize", err)
	}
}

func TestNewPlanZoomSelectsLevel(t *testing.T) {
	p := testProvider(
		"tiles/world/flat/0_0/0_0.png",
		"tiles/world/flat/0_0/z_2_2.png",
		"tiles/world/flat/0_0/zz_4_0.png",
	)
	p.ZoomIn = 1
	p.ZoomOut = 2

	for zoom, want := range map[int]int{0: 2, 1: 1, 2: 0, 3: 0} {
		p.CurrentZoom = zoom
		plan, err := NewPlan(p, "", 0)
		if err != nil {
			t.Fatalf("NewPlan(zoom %d) failed: %v", zoom, err)
		}
		if plan.Level != want || plan.Scale != 1<<want {
			t.Errorf("zoom %d: level %d scale %d, want level %d", zoom, plan.Level, plan.Scale, want)
		}
		if len(plan.Records) != 1 || plan.Records[0].Level != want {
			t.Errorf("zoom %d: records %+v", zoom, plan.Records)
		}
	}
}

func TestRemapY(t *testing.T) {
	plan := &Plan{Box: tile.BoundingBox{MinX: -3, MaxX: 2, MinY: -2, MaxY: 5}, TileSize: 8}

	for y := plan.Box.MinY; y <= plan.Box.MaxY; y++ {
		r := plan.RemapY(y)
		if r < plan.Box.MinY || r > plan.Box.MaxY {
			t.Errorf("RemapY(%d) = %d outside [%d,%d]", y, r, plan.Box.MinY, plan.Box.MaxY)
		}
		if back := plan.RemapY(r); back != y {
			t.Errorf("RemapY(RemapY(%d)) = %d", y, back)
		}
	}

	tests := []struct {
		x, y int
		want image.Point
	}{
		{-3, 5, image.Pt(0, 0)},
		{-3, -2, image.Pt(0, 56)},
		{2, 5, image.Pt(40, 0)},
		{0, 1, image.Pt(24, 32)},
	}
	for _, tt := range tests {
		if got := plan.DrawOffset(tile.Record{X: tt.x, Y: tt.y}); got != tt.want {
			t.Errorf("DrawOffset(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestNewPlanBoundsCornerGrid(t *testing.T) {
	// A 4x2 tile grid of 4px tiles is 8 cells of 16 pixels each.
	p := testProvider(
		"tiles/world/flat/0_0/0_0.png",
		"tiles/world/flat/0_0/3_1.png",
	)

	plan, err := NewPlan(p, tile.ModeCorner, 8*16)
	if err != nil {
		t.Fatalf("NewPlan at the limit failed: %v", err)
	}
	if len(plan.Records) != 8 {
		t.Errorf("corner plan has %d records, want 8", len(plan.Records))
	}

	if _, err := NewPlan(p, tile.ModeCorner, 7*16); !errors.Is(err, ErrTooLarge) {
		t.Errorf("NewPlan error = %v, want ErrTooLarge", err)
	}
	if _, err := NewPlan(p, tile.ModeViewed, 7*16); err != nil {
		t.Errorf("viewed plan over the corner limit failed: %v", err)
	}

	p.TileSize = 1 << 20
	if _, err := NewPlan(p, tile.ModeCorner, 0); !errors.Is(err, ErrTooLarge) {
		t.Errorf("NewPlan with oversized tiles error = %v, want ErrTooLarge", err)
	}
}

func TestNewPlanOverflowingBounds(t *testing.T) {
	p := testProvider(
		"tiles/world/flat/0_0/-9000000000000000000_0.png",
		"tiles/world/flat/0_0/9000000000000000000_0.png",
	)
	for _, mode := range []string{tile.ModeViewed, tile.ModeCorner} {
		if _, err := NewPlan(p, mode, 0); !errors.Is(err, ErrTooLarge) {
			t.Errorf("NewPlan(%s) error = %v, want ErrTooLarge", mode, err)
		}
	}
}
