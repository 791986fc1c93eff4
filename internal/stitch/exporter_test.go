package stitch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/dynstitch/internal/gate"
	"github.com/kiesman99/dynstitch/internal/stitcher"
	"github.com/kiesman99/dynstitch/pkg/tile"
)

func setup(t *testing.T) (afero.Fs, *tile.Provider) {
	t.Helper()
	fs := afero.NewMemMapFs()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	p := &tile.Provider{
		TileSize:  4,
		MapPrefix: "flat",
		WorldName: "world",
		TilesDir:  "tiles/",
	}
	for _, name := range []string{"0_0.png", "1_1.png", "2_2.png"} {
		rel := "tiles/world/flat/0_0/" + name
		require.NoError(t, afero.WriteFile(fs, "/web/"+rel, buf.Bytes(), 0644))
		p.Registry = append(p.Registry, tile.Entry{Key: name, Path: rel})
	}
	return fs, p
}

func newExporter(fs afero.Fs, opts *Options, stdin string) (*Exporter, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	st := stitcher.New(tile.NewFileFetcher(fs, "/web"))
	opts.NoColor = true
	return NewExporter(st, opts, fs, strings.NewReader(stdin), &stdout, &stderr), &stdout, &stderr
}

func TestRunConfirmedWritesFile(t *testing.T) {
	fs, p := setup(t)
	e, stdout, stderr := newExporter(fs, &Options{
		Output:   "/out/world.png",
		Timeout:  time.Minute,
		Interval: time.Second,
		Stitch:   stitcher.Options{Fill: color.Black},
	}, "maybe\ny\n")

	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, stitcher.Completed, res.Outcome)
	assert.Equal(t, 3, res.Drawn)
	assert.Zero(t, stdout.Len())

	data, err := afero.ReadFile(fs, "/out/world.png")
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, 8, cfg.Height)

	out := stderr.String()
	assert.Contains(t, out, "==Tiles: 3")
	assert.Contains(t, out, "==Raster Size: 8x8")
	assert.Contains(t, out, "file:///out/world.png")
}

func TestRunCancelled(t *testing.T) {
	fs, p := setup(t)
	e, _, stderr := newExporter(fs, &Options{Output: "/out/world.png", Timeout: time.Minute}, "n\n")

	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, stitcher.Cancelled, res.Outcome)
	assert.Contains(t, stderr.String(), stitcher.Cancelled.Message())

	exists, err := afero.Exists(fs, "/out/world.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunTimesOut(t *testing.T) {
	fs, p := setup(t)
	e, _, stderr := newExporter(fs, &Options{
		Output:   "/out/world.png",
		Timeout:  20 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	}, "")

	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, stitcher.TimedOut, res.Outcome)
	assert.Contains(t, stderr.String(), "Type 'y' within")
	assert.Contains(t, stderr.String(), "auto-cancelled")
}

func TestRunAutoStartToStdout(t *testing.T) {
	fs, p := setup(t)
	limit := 1
	e, stdout, stderr := newExporter(fs, &Options{
		Stitch: stitcher.Options{AutoStart: true, MaxTiles: &limit, Format: tile.FormatJPEG},
	}, "")

	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Drawn)
	assert.NotContains(t, stderr.String(), "Type 'y'")

	_, format, err := image.DecodeConfig(bytes.NewReader(stdout.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestRunCalcOnly(t *testing.T) {
	fs, p := setup(t)
	e, stdout, stderr := newExporter(fs, &Options{Stitch: stitcher.Options{CalcOnly: true}}, "")

	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, stitcher.Calculated, res.Outcome)
	assert.Zero(t, stdout.Len())
	assert.Contains(t, stderr.String(), "==Tile Level: 0")
}

func TestRunFails(t *testing.T) {
	fs, p := setup(t)
	p.Registry = append(p.Registry, tile.Entry{Key: "bad", Path: "bad.png"})
	e, _, stderr := newExporter(fs, &Options{Stitch: stitcher.Options{AutoStart: true}}, "")

	_, err := e.Run(context.Background(), p)
	require.ErrorIs(t, err, tile.ErrMalformedPath)
	assert.Contains(t, stderr.String(), "Export failed")
}

func TestReadDecisionStopsWithGate(t *testing.T) {
	stdin, w := io.Pipe()
	defer w.Close()

	e := NewExporter(nil, &Options{}, afero.NewMemMapFs(), stdin, io.Discard, io.Discard)
	g := gate.New(time.Minute)

	done := make(chan struct{})
	go func() {
		e.readDecision(g)
		close(done)
	}()

	// Nothing is ever typed; resolving the gate must still release the reader.
	require.True(t, g.Cancel())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readDecision still running after the gate resolved")
	}
}

func TestReadDecisionConfirms(t *testing.T) {
	e := NewExporter(nil, &Options{}, afero.NewMemMapFs(), strings.NewReader("what\nYES\n"), io.Discard, io.Discard)
	g := gate.New(time.Minute)

	e.readDecision(g)
	assert.Equal(t, gate.Confirmed, g.Decision())
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, io.ErrClosedPipe
}

func TestRunSurvivesProgressWriteErrors(t *testing.T) {
	var logs bytes.Buffer
	defer log.SetOutput(log.Writer())
	log.SetOutput(&logs)

	fs, p := setup(t)
	stderr := &failingWriter{}
	var stdout bytes.Buffer
	e := NewExporter(stitcher.New(tile.NewFileFetcher(fs, "/web")),
		&Options{NoColor: true, Stitch: stitcher.Options{AutoStart: true}},
		fs, strings.NewReader(""), &stdout, stderr)

	res, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, stitcher.Completed, res.Outcome)
	assert.NotZero(t, stdout.Len())
	assert.NotZero(t, stderr.writes)
	if logs.Len() > 0 {
		assert.Contains(t, logs.String(), "Error updating progress")
	}
}
