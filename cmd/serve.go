package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/dynstitch/internal/server"
	"github.com/kiesman99/dynstitch/pkg/tile"
)

const version = "1.0.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for map exports",
	Long: `Start an HTTP server that runs exports as background jobs.

A job waits for confirmation unless auto_start is set: POST to
/api/v1/exports/{id}/confirm or /cancel before the timeout runs out.
The finished image is served at /api/v1/exports/{id}/image.

Examples:
  # Serve exports of a local web root on the default port 8080
  dynstitch serve --root /srv/dynmap/web

  # Download tiles from the live map server
  dynstitch serve --base-url https://map.example.org/ --port 3000

  # Start server with custom bind address
  dynstitch serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 60*time.Second, "request timeout")
	serveCmd.Flags().String("root", ".", "local web root the tile paths are relative to")
	serveCmd.Flags().String("base-url", "", "map server URL the tile paths are relative to (overrides --root)")
	serveCmd.Flags().String("user-agent", "dynstitch/"+version, "HTTP User-Agent header")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.root", serveCmd.Flags().Lookup("root"))
	viper.BindPFlag("server.base-url", serveCmd.Flags().Lookup("base-url"))
	viper.BindPFlag("server.user-agent", serveCmd.Flags().Lookup("user-agent"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	var fetcher tile.Fetcher
	if baseURL := viper.GetString("server.base-url"); baseURL != "" {
		fetcher = tile.NewHTTPFetcher(baseURL, viper.GetString("server.user-agent"))
	} else {
		fetcher = tile.NewFileFetcher(afero.NewOsFs(), viper.GetString("server.root"))
	}

	// Create Chi router
	r := chi.NewRouter()

	// Add middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	// CORS middleware for API access
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Create server implementation
	apiServer := server.NewServer(version, fetcher,
		server.WithBasePath("/api/v1"),
		server.WithLogger(log.New(cmd.ErrOrStderr(), "export: ", log.LstdFlags)))
	defer apiServer.Close()

	// Mount API routes at /api/v1
	r.Mount("/api/v1", apiServer.Routes())

	// Legacy health endpoint (without /api/v1 prefix for backward compatibility)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		// Redirect to the API health endpoint
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		<-cmd.Context().Done()

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		apiServer.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting dynstitch server on %s\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Export endpoint: http://%s/api/v1/exports\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
