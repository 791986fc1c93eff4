// Package stitch runs exports from the command line: it asks for
// confirmation on the terminal, shows progress and writes the image out.
package stitch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/kiesman99/dynstitch/internal/gate"
	"github.com/kiesman99/dynstitch/internal/stitcher"
	"github.com/kiesman99/dynstitch/pkg/tile"
)

// Options contains the command line export configuration
type Options struct {
	// Output is the output file. Empty means standard output.
	Output  string
	Timeout time.Duration
	// Interval between confirmation reminders.
	Interval time.Duration
	NoColor  bool
	Stitch   stitcher.Options
}

// Exporter handles one command line export
type Exporter struct {
	stitcher *stitcher.Stitcher
	options  *Options

	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewExporter creates a new exporter writing files to fs.
func NewExporter(st *stitcher.Stitcher, opts *Options, fs afero.Fs, stdin io.Reader, stdout, stderr io.Writer) *Exporter {
	return &Exporter{
		stitcher: st,
		options:  opts,
		fs:       fs,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}
}

// Run exports the provider's current view.
func (e *Exporter) Run(ctx context.Context, p *tile.Provider) (*stitcher.Result, error) {
	opts := e.options.Stitch

	if !opts.AutoStart && !opts.CalcOnly {
		g := gate.New(e.options.Timeout,
			gate.WithInterval(e.options.Interval),
			gate.WithReminder(func(remaining time.Duration) {
				e.printf("[yellow]Type 'y' within %d seconds to confirm the export, or 'n' to cancel.\n",
					int(remaining.Round(time.Second)/time.Second))
			}))
		opts.Gate = g
		defer g.Close()
		go e.readDecision(g)
	}

	var bar *progressbar.ProgressBar
	opts.Progress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(e.stderr),
				progressbar.OptionSetDescription("drawing"),
				progressbar.OptionShowCount(),
			)
		}
		if err := bar.Set(done); err != nil {
			log.Printf("Error updating progress: %v", err)
		}
		if done == total {
			if err := bar.Finish(); err != nil {
				log.Printf("Error updating progress: %v", err)
			}
			fmt.Fprintln(e.stderr)
		}
	}

	result, err := e.stitcher.Stitch(ctx, p, &opts)
	if err != nil {
		e.printf("[red]Export failed: %v\n", err)
		return nil, err
	}

	plan := result.Plan
	fmt.Fprintf(e.stderr, "==Tile Level: %d (zoom %d, mode %s)\n", plan.Level, plan.Zoom, plan.Mode)
	fmt.Fprintf(e.stderr, "==Tiles: %d\n", len(plan.Records))
	fmt.Fprintf(e.stderr, "==Raster Size: %dx%d\n", plan.Width, plan.Height)

	switch result.Outcome {
	case stitcher.Completed:
		ref, err := e.write(result.Image)
		if err != nil {
			e.printf("[red]Export failed: %v\n", err)
			return nil, err
		}
		if len(result.FailedTiles) > 0 {
			e.printf("[yellow]%d tiles could not be loaded and were left blank\n", len(result.FailedTiles))
		}
		e.printf("[green]Export completed, %d tiles drawn: %s\n", result.Drawn, ref)
	case stitcher.Cancelled, stitcher.TimedOut, stitcher.Empty:
		e.printf("[yellow]%s\n", result.Outcome.Message())
	default:
		e.printf("%s\n", result.Outcome.Message())
	}

	return result, nil
}

// readDecision turns y/n answers on stdin into gate signals until the
// gate resolves. It returns as soon as the gate resolves; the line reader
// behind it exits on the next line or at end of input.
func (e *Exporter) readDecision(g *gate.Gate) {
	if e.stdin == nil {
		return
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(e.stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-g.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-g.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				g.Confirm()
			case "n", "no":
				g.Cancel()
			}
		}
	}
}

// write stores the image and returns a reference to it.
func (e *Exporter) write(data []byte) (string, error) {
	if e.options.Output == "" {
		if _, err := e.stdout.Write(data); err != nil {
			return "", err
		}
		return "stdout", nil
	}

	if dir := filepath.Dir(e.options.Output); dir != "." {
		if err := e.fs.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	if err := afero.WriteFile(e.fs, e.options.Output, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", e.options.Output, err)
	}

	abs, err := filepath.Abs(e.options.Output)
	if err != nil {
		abs = e.options.Output
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func (e *Exporter) printf(format string, args ...interface{}) {
	c := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: e.options.NoColor,
		Reset:   true,
	}
	fmt.Fprintf(e.stderr, c.Color(format), args...)
}

// StdoutIsTerminal reports whether standard output is a terminal.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
