package stitcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"

	"github.com/sourcegraph/conc/stream"
	"go.uber.org/multierr"
	"golang.org/x/image/draw"

	"github.com/kiesman99/dynstitch/internal/gate"
	"github.com/kiesman99/dynstitch/pkg/tile"
)

// DefaultMaxPixels bounds the output raster to 10000x10000.
const DefaultMaxPixels = 10000 * 10000

var (
	ErrTooLarge  = errors.New("requested image size too large")
	ErrZeroSized = errors.New("requested image has zero area")
)

// Outcome describes how an export that did not fail ended.
type Outcome int

const (
	Completed Outcome = iota
	Empty
	Calculated
	Cancelled
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Empty:
		return "empty"
	case Calculated:
		return "calculated"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Message is a human readable summary of the outcome.
func (o Outcome) Message() string {
	switch o {
	case Completed:
		return "export completed"
	case Empty:
		return "tile list is empty, nothing to export"
	case Calculated:
		return "calculation only, nothing drawn"
	case Cancelled:
		return "export was cancelled"
	case TimedOut:
		return "export was auto-cancelled after the confirmation timeout"
	}
	return ""
}

// Awaiter is the confirmation gate consulted before drawing.
type Awaiter interface {
	Await(ctx context.Context) gate.Decision
}

// Options contains the export parameters
type Options struct {
	Mode      string
	CalcOnly  bool
	AutoStart bool
	Fill      color.Color
	// MaxTiles caps the number of tiles drawn. Nil means no cap.
	MaxTiles *int
	Format   int
	// Workers > 1 fetches tiles concurrently; drawing stays in list order.
	Workers   int
	MaxPixels int64
	Gate      Awaiter
	Progress  func(done, total int)
}

// Result contains the export result
type Result struct {
	Outcome     Outcome
	Plan        *Plan
	Image       []byte
	Format      int
	Drawn       int
	FailedTiles []tile.FailedTile
	// FetchErr aggregates the per-tile load failures, which do not fail the export.
	FetchErr error
}

// Option configures a Stitcher.
type Option func(*Stitcher)

// WithLogger sets the logger used for per-tile failures and plan summaries.
func WithLogger(l *log.Logger) Option {
	return func(s *Stitcher) { s.logger = l }
}

// Stitcher performs exports
type Stitcher struct {
	fetcher tile.Fetcher
	logger  *log.Logger
}

// New creates a new stitcher loading tiles with fetcher
func New(fetcher tile.Fetcher, opts ...Option) *Stitcher {
	s := &Stitcher{
		fetcher: fetcher,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stitch runs an export. A nil error means the export did not fail, which
// includes the empty, calculation-only, cancelled and timed-out outcomes.
func (s *Stitcher) Stitch(ctx context.Context, p *tile.Provider, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	plan, err := NewPlan(p, opts.Mode, maxPixels)
	if err != nil {
		return nil, err
	}

	s.logger.Printf("zoom %d -> tile level %d, scale %d, tile size %d", plan.Zoom, plan.Level, plan.Scale, plan.TileSize)
	s.logger.Printf("bounds x:[%d,%d] y:[%d,%d]", plan.Box.MinX, plan.Box.MaxX, plan.Box.MinY, plan.Box.MaxY)
	s.logger.Printf("tiles: %d, raster size: %dx%d", len(plan.Records), plan.Width, plan.Height)

	result := &Result{Plan: plan, Format: opts.Format}

	if len(plan.Records) == 0 {
		result.Outcome = Empty
		return result, nil
	}

	if opts.CalcOnly {
		result.Outcome = Calculated
		return result, nil
	}

	if !fits(int64(plan.Width), int64(plan.Height), maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, plan.Width, plan.Height)
	}
	if plan.Width == 0 || plan.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrZeroSized, plan.Width, plan.Height)
	}

	if !opts.AutoStart {
		g := opts.Gate
		if g == nil {
			g = gate.New(gate.DefaultTimeout)
		}
		switch d := g.Await(ctx); d {
		case gate.Confirmed, gate.AutoConfirmed:
		case gate.TimedOut:
			result.Outcome = TimedOut
			return result, nil
		default:
			result.Outcome = Cancelled
			return result, nil
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, plan.Width, plan.Height))
	fill := opts.Fill
	if fill == nil {
		fill = color.Black
	}
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	records := plan.Records
	if opts.MaxTiles != nil && *opts.MaxTiles < len(records) {
		records = records[:max(*opts.MaxTiles, 0)]
	}

	s.logger.Printf("drawing %d tiles", len(records))
	s.drawTiles(ctx, canvas, plan, records, opts, result)

	var output bytes.Buffer
	if err := tile.Encode(&output, canvas, opts.Format); err != nil {
		return nil, fmt.Errorf("failed to encode output image: %w", err)
	}

	result.Image = output.Bytes()
	result.Outcome = Completed
	return result, nil
}

// drawTiles loads and draws records in list order. With several workers
// loads overlap, but draws are still applied one at a time in list order.
func (s *Stitcher) drawTiles(ctx context.Context, canvas *image.RGBA, plan *Plan, records []tile.Record, opts *Options, result *Result) {
	total := len(records)
	done := 0

	apply := func(r tile.Record, img image.Image, err error) {
		if err != nil {
			s.logger.Printf("Can't load tile %s: %v", r.Path, err)
			result.FailedTiles = append(result.FailedTiles, tile.FailedTile{Path: r.Path, Error: err.Error()})
			result.FetchErr = multierr.Append(result.FetchErr, fmt.Errorf("%s: %w", r.Path, err))
		} else {
			s.copyTile(canvas, img, plan.DrawOffset(r))
			result.Drawn++
		}
		done++
		if opts.Progress != nil {
			opts.Progress(done, total)
		}
	}

	if opts.Workers <= 1 {
		for _, r := range records {
			img, err := s.fetcher.Fetch(ctx, r.Path)
			apply(r, img, err)
		}
		return
	}

	st := stream.New().WithMaxGoroutines(opts.Workers)
	for _, r := range records {
		st.Go(func() stream.Callback {
			img, err := s.fetcher.Fetch(ctx, r.Path)
			return func() { apply(r, img, err) }
		})
	}
	st.Wait()
}

// copyTile draws a tile over the canvas with its top-left corner at pt.
func (s *Stitcher) copyTile(canvas *image.RGBA, img image.Image, pt image.Point) {
	b := img.Bounds()
	dst := image.Rectangle{Min: pt, Max: pt.Add(b.Size())}
	draw.Draw(canvas, dst, img, b.Min, draw.Over)
}
