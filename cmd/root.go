package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/dynstitch/internal/gate"
	"github.com/kiesman99/dynstitch/internal/stitch"
	"github.com/kiesman99/dynstitch/internal/stitcher"
	"github.com/kiesman99/dynstitch/pkg/tile"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dynstitch",
	Short: "Export the current view of a Dynmap tile cache as one image",
	Long: `dynstitch rebuilds a single image of a Dynmap view from its tile cache.

It reads a provider descriptor (the map options, current zoom and the registry
of rendered tiles, as YAML or JSON), selects the tiles of the active world, map
and tile level, and stitches them into one PNG, JPEG or TIFF image. Tiles are
read from a local copy of the web root or downloaded from the map server.

Examples:
  # Stitch the tiles seen in the viewer, reading them from a local web root
  dynstitch -d view.json --root /srv/dynmap/web -o world.png

  # Fill the whole bounding box, downloading tiles from the live map
  dynstitch -d view.json --mode corner --base-url https://map.example.org/ -o world.png

  # Only print the tile count and raster size
  dynstitch -d view.json --calc-only

  # Build the registry from the cached files instead of the descriptor
  dynstitch -d view.yaml --root /srv/dynmap/web --discover --zoom 2 -y -o world.png

  # Start HTTP server
  dynstitch serve --port 8080`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without a descriptor there is nothing to export
		if viper.GetString("descriptor") == "" {
			return cmd.Help()
		}
		return runExport(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dynstitch.yaml)")

	// Input options
	rootCmd.Flags().StringP("descriptor", "d", "", "provider descriptor file (YAML or JSON)")
	rootCmd.Flags().Int("zoom", -1, "viewport zoom (default: map.zoom from the descriptor)")
	rootCmd.Flags().Bool("discover", false, "build the tile registry by walking the tiles directory under --root")

	// Tile source options
	rootCmd.Flags().String("root", ".", "local web root the tile paths are relative to")
	rootCmd.Flags().String("base-url", "", "map server URL the tile paths are relative to (overrides --root)")
	rootCmd.Flags().String("user-agent", "dynstitch/1.0.0", "HTTP User-Agent header")
	rootCmd.Flags().Int("workers", 1, "number of concurrent tile loads")

	// Export options
	rootCmd.Flags().String("mode", tile.ModeViewed, "tile selection (viewed|corner)")
	rootCmd.Flags().String("fill", "#000000", "background color")
	rootCmd.Flags().Int("max-tiles", -1, "draw at most this many tiles (-1: no limit)")
	rootCmd.Flags().Bool("calc-only", false, "only compute tile count and raster size")
	rootCmd.Flags().BoolP("yes", "y", false, "start without asking for confirmation")
	rootCmd.Flags().Int("timeout", int(gate.DefaultTimeout/time.Second), "seconds to wait for confirmation")

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.Flags().StringP("format", "f", "png", "output format (png|jpeg|tiff)")
	rootCmd.Flags().Bool("no-color", false, "disable colored messages")

	for _, name := range []string{
		"descriptor", "zoom", "discover",
		"root", "base-url", "user-agent", "workers",
		"mode", "fill", "max-tiles", "calc-only", "yes", "timeout",
		"output", "format", "no-color",
	} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".dynstitch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dynstitch")
	}

	viper.SetEnvPrefix("dynstitch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()

	provider, err := loadProvider(fs)
	if err != nil {
		return err
	}

	format, err := tile.ParseFormat(viper.GetString("format"))
	if err != nil {
		return err
	}

	fill, err := tile.ParseColor(viper.GetString("fill"))
	if err != nil {
		return err
	}

	opts := &stitch.Options{
		Output:  viper.GetString("output"),
		Timeout: time.Duration(viper.GetInt("timeout")) * time.Second,
		NoColor: viper.GetBool("no-color"),
		Stitch: stitcher.Options{
			Mode:      viper.GetString("mode"),
			CalcOnly:  viper.GetBool("calc-only"),
			AutoStart: viper.GetBool("yes"),
			Fill:      fill,
			Format:    format,
			Workers:   viper.GetInt("workers"),
		},
	}
	if n := viper.GetInt("max-tiles"); n >= 0 {
		opts.Stitch.MaxTiles = &n
	}

	// Check if output is to terminal
	if opts.Output == "" && !opts.Stitch.CalcOnly && stitch.StdoutIsTerminal() {
		return fmt.Errorf("didn't specify output file and standard output is a terminal")
	}

	var fetcher tile.Fetcher
	if baseURL := viper.GetString("base-url"); baseURL != "" {
		fetcher = tile.NewHTTPFetcher(baseURL, viper.GetString("user-agent"))
	} else {
		fetcher = tile.NewFileFetcher(fs, viper.GetString("root"))
	}

	logger := log.New(cmd.ErrOrStderr(), "", 0)
	st := stitcher.New(fetcher, stitcher.WithLogger(logger))

	exporter := stitch.NewExporter(st, opts, fs, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	_, err = exporter.Run(cmd.Context(), provider)
	return err
}

// loadProvider reads and validates the descriptor, applying the zoom and
// registry overrides from the command line.
func loadProvider(fs afero.Fs) (*tile.Provider, error) {
	path := viper.GetString("descriptor")
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	desc, err := tile.LoadDescriptor(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if zoom := viper.GetInt("zoom"); zoom >= 0 {
		if desc.Map == nil {
			desc.Map = &tile.MapState{}
		}
		desc.Map.Zoom = &zoom
	}

	if viper.GetBool("discover") && desc.Options != nil && desc.Options.URL != nil && desc.Options.URL.Tiles != nil {
		reg, err := tile.DiscoverRegistry(fs, viper.GetString("root"), *desc.Options.URL.Tiles)
		if err != nil {
			return nil, err
		}
		desc.RegisteredTiles = &reg
	}

	return desc.Validate()
}
