package tile_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kiesman99/dynstitch/pkg/tile"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		want tile.Name
	}{
		{"0_0.png", tile.Name{Level: 0, X: 0, Y: 0}},
		{"zzz_0_0.png", tile.Name{Level: 3, X: 0, Y: 0}},
		{"zz_-64_32.webp", tile.Name{Level: 2, X: -64, Y: 32}},
		{"z_-2_-6.jpg", tile.Name{Level: 1, X: -2, Y: -6}},
		{"-31_7", tile.Name{Level: 0, X: -31, Y: 7}},
	}

	for _, tt := range tests {
		got, err := tile.ParseName(tt.name)
		if err != nil {
			t.Errorf("ParseName(%q) failed: %v", tt.name, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseName(%q) mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestParseNameMalformed(t *testing.T) {
	for _, name := range []string{"zzz.png", "zz_4.png", "1_2_3.png", "tile128_1_2.png"} {
		_, err := tile.ParseName(name)
		if !errors.Is(err, tile.ErrMalformedName) {
			t.Errorf("ParseName(%q) error = %v, want ErrMalformedName", name, err)
		}
		var ne *tile.NameError
		if !errors.As(err, &ne) || ne.Name != name {
			t.Errorf("ParseName(%q) error = %#v, want *NameError", name, err)
		}
	}
}

func TestNameFormat(t *testing.T) {
	tests := []struct {
		name   tile.Name
		ext    string
		file   string
		folder string
	}{
		{tile.Name{Level: 0, X: 0, Y: 0}, "", "0_0", "0_0"},
		{tile.Name{Level: 2, X: -64, Y: 32}, "", "zz_-64_32", "-2_1"},
		{tile.Name{Level: 1, X: -2, Y: 30}, "png", "z_-2_30.png", "-1_0"},
		{tile.Name{Level: 3, X: 96, Y: -8}, ".jpg", "zzz_96_-8.jpg", "3_-1"},
	}

	for _, tt := range tests {
		if got := tt.name.FileName(tt.ext); got != tt.file {
			t.Errorf("%+v.FileName(%q) = %q, want %q", tt.name, tt.ext, got, tt.file)
		}
		if got := tt.name.Folder(); got != tt.folder {
			t.Errorf("%+v.Folder() = %q, want %q", tt.name, got, tt.folder)
		}
	}
}

func TestNameRoundTrip(t *testing.T) {
	for level := 0; level < 5; level++ {
		for _, xy := range [][2]int{{0, 0}, {-3, 5}, {17, -1}} {
			n := tile.Name{Level: level, X: xy[0] << level, Y: xy[1] << level}
			got, err := tile.ParseName(n.FileName("png"))
			if err != nil {
				t.Fatalf("ParseName(%q) failed: %v", n.FileName("png"), err)
			}
			if got != n {
				t.Errorf("round trip of %+v = %+v", n, got)
			}
		}
	}
}

func TestParsePath(t *testing.T) {
	got, err := tile.ParsePath("tiles/world/flat/0_0/zzz_0_0.png")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	want := tile.PathInfo{World: "world", Map: "flat", Folder: "0_0", File: "zzz_0_0.png"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParsePath mismatch (-want +got):\n%s", diff)
	}

	_, err = tile.ParsePath("world/flat/0_0/zzz_0_0.png")
	if !errors.Is(err, tile.ErrMalformedPath) {
		t.Errorf("ParsePath(4 segments) error = %v, want ErrMalformedPath", err)
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{0, 32, 0},
		{31, 32, 0},
		{32, 32, 1},
		{-1, 32, -1},
		{-32, 32, -1},
		{-33, 32, -2},
		{-8, 4, -2},
	}
	for _, tt := range tests {
		if got := tile.FloorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("FloorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
