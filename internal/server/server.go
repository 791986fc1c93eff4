package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/kiesman99/dynstitch/internal/gate"
	"github.com/kiesman99/dynstitch/internal/stitcher"
	"github.com/kiesman99/dynstitch/pkg/tile"
)

// ExportRequest is the body of POST /exports
type ExportRequest struct {
	Descriptor *tile.Descriptor `json:"descriptor"`
	Options    ExportOptions    `json:"options"`
}

// ExportOptions mirrors the command line export options
type ExportOptions struct {
	AutoStart bool   `json:"auto_start,omitempty"`
	CalcOnly  bool   `json:"calc_only,omitempty"`
	FillColor string `json:"fill_color,omitempty"`
	MaxTiles  *int   `json:"max_tiles,omitempty"`
	Mode      string `json:"mode,omitempty"`
	// Timeout is the confirmation timeout in seconds.
	Timeout *int   `json:"timeout,omitempty"`
	Format  string `json:"format,omitempty"`
	Workers int    `json:"workers,omitempty"`
}

// PlanSummary describes what an export draws
type PlanSummary struct {
	Mode     string `json:"mode"`
	Zoom     int    `json:"zoom"`
	Level    int    `json:"level"`
	TileSize int    `json:"tile_size"`
	Tiles    int    `json:"tiles"`
	MinX     int    `json:"min_x"`
	MaxX     int    `json:"max_x"`
	MinY     int    `json:"min_y"`
	MaxY     int    `json:"max_y"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// FailedTile is a tile that could not be loaded
type FailedTile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ExportResponse is the state of an export job
type ExportResponse struct {
	ID               string       `json:"id"`
	Status           string       `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	RemainingSeconds *int         `json:"remaining_seconds,omitempty"`
	Outcome          string       `json:"outcome,omitempty"`
	Message          string       `json:"message,omitempty"`
	Plan             *PlanSummary `json:"plan,omitempty"`
	Drawn            int          `json:"drawn"`
	Total            int          `json:"total"`
	FailedTiles      []FailedTile `json:"failed_tiles,omitempty"`
	ImageURL         string       `json:"image_url,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Field     string                 `json:"field,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger passed to every export.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithBasePath sets the path the routes are mounted at, used in image URLs.
func WithBasePath(p string) Option {
	return func(s *Server) { s.basePath = p }
}

// WithGateInterval sets the confirmation countdown step.
func WithGateInterval(d time.Duration) Option {
	return func(s *Server) { s.gateInterval = d }
}

// Server runs exports as background jobs
type Server struct {
	startTime    time.Time
	version      string
	fetcher      tile.Fetcher
	logger       *log.Logger
	basePath     string
	gateInterval time.Duration

	jobs   *jobStore
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new server loading tiles with fetcher
func NewServer(version string, fetcher tile.Fetcher, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		startTime:    time.Now(),
		version:      version,
		fetcher:      fetcher,
		logger:       log.New(io.Discard, "", 0),
		basePath:     "/api/v1",
		gateInterval: gate.DefaultInterval,
		jobs:         newJobStore(),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close cancels every pending confirmation and running export.
func (s *Server) Close() {
	s.cancel()
}

// Routes returns the API handler, to be mounted at the base path.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Route("/exports", func(r chi.Router) {
		r.Post("/", s.CreateExport)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetExport)
			r.Delete("/", s.DeleteExport)
			r.Post("/confirm", s.ConfirmExport)
			r.Post("/cancel", s.CancelExport)
			r.Get("/image", s.GetExportImage)
		})
	})
	return r
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// CreateExport validates the descriptor and starts an export job
func (s *Server) CreateExport(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", requestID, nil)
		return
	}

	provider, err := req.Descriptor.Validate()
	if err != nil {
		s.writeValidationErrorResponse(w, err, requestID)
		return
	}

	opts, err := s.convertToStitcherOptions(&req.Options)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			err.Error(), requestID, nil)
		return
	}

	timeout := gate.DefaultTimeout
	if req.Options.Timeout != nil {
		timeout = time.Duration(*req.Options.Timeout) * time.Second
	}

	j := newJob(gate.Auto())
	if !opts.AutoStart {
		j.gate = gate.New(timeout, gate.WithInterval(s.gateInterval), gate.WithReminder(j.remind))
	}
	opts.Gate = j.gate
	opts.Progress = j.progress
	s.jobs.add(j)

	go s.run(j, provider, opts)

	w.Header().Set("Location", s.exportURL(j.id))
	s.writeJSON(w, http.StatusAccepted, s.describe(j))
}

// run executes the export. The job context is the server's, not the
// request's, so the export outlives the POST.
func (s *Server) run(j *job, p *tile.Provider, opts *stitcher.Options) {
	st := stitcher.New(s.fetcher, stitcher.WithLogger(s.logger))
	result, err := st.Stitch(s.ctx, p, opts)
	// Jobs that end before reaching the gate must stop accepting signals.
	j.gate.Close()
	if err != nil {
		s.logger.Printf("export %s failed: %v", j.id, err)
	} else {
		s.logger.Printf("export %s: %s", j.id, result.Outcome.Message())
	}
	j.finish(result, err)
}

// GetExport returns the job state. With ?wait=true it blocks until the
// job finished or the request is cancelled.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var wait bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("Invalid format for parameter wait: %s", err), requestIDFrom(r), nil)
		return
	}
	if wait {
		j.wait(r.Context())
	}

	s.writeJSON(w, http.StatusOK, s.describe(j))
}

// DeleteExport cancels a pending job and forgets it
func (s *Server) DeleteExport(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}
	j.gate.Cancel()
	s.jobs.remove(j.id)
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmExport delivers the confirm signal to a pending gate
func (s *Server) ConfirmExport(w http.ResponseWriter, r *http.Request) {
	s.signal(w, r, (*gate.Gate).Confirm)
}

// CancelExport delivers the cancel signal to a pending gate
func (s *Server) CancelExport(w http.ResponseWriter, r *http.Request) {
	s.signal(w, r, (*gate.Gate).Cancel)
}

func (s *Server) signal(w http.ResponseWriter, r *http.Request, send func(*gate.Gate) bool) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !send(j.gate) {
		s.writeErrorResponse(w, http.StatusConflict, "GATE_RESOLVED",
			"Export is not waiting for confirmation", requestIDFrom(r), map[string]interface{}{
				"decision": j.gate.Decision().String(),
			})
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(j))
}

// GetExportImage returns the encoded image of a completed export
func (s *Server) GetExportImage(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var download bool
	if err := runtime.BindQueryParameter("form", true, false, "download", r.URL.Query(), &download); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("Invalid format for parameter download: %s", err), requestIDFrom(r), nil)
		return
	}

	j.mu.Lock()
	result := j.result
	j.mu.Unlock()

	if result == nil || result.Outcome != stitcher.Completed {
		s.writeErrorResponse(w, http.StatusNotFound, "NO_IMAGE",
			"Export has no image", requestIDFrom(r), map[string]interface{}{
				"status": j.status(),
			})
		return
	}

	w.Header().Set("Content-Type", tile.ContentType(result.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Image)))
	if download {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", j.id.String()+extension(result.Format)))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Image); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// lookup binds the {id} path parameter and finds its job.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*job, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("Invalid format for parameter id: %s", err), requestIDFrom(r), nil)
		return nil, false
	}

	j, ok := s.jobs.get(id)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND",
			"Export not found", requestIDFrom(r), nil)
		return nil, false
	}
	return j, true
}

// convertToStitcherOptions converts API options to internal stitcher options
func (s *Server) convertToStitcherOptions(o *ExportOptions) (*stitcher.Options, error) {
	opts := &stitcher.Options{
		Mode:      o.Mode,
		CalcOnly:  o.CalcOnly,
		AutoStart: o.AutoStart,
		MaxTiles:  o.MaxTiles,
		Workers:   o.Workers,
	}

	switch o.Mode {
	case "", tile.ModeViewed, tile.ModeCorner:
	default:
		return nil, fmt.Errorf("mode must be %q or %q", tile.ModeViewed, tile.ModeCorner)
	}

	if o.MaxTiles != nil && *o.MaxTiles < 0 {
		return nil, fmt.Errorf("max_tiles must not be negative")
	}
	if o.Timeout != nil && *o.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}

	fill := o.FillColor
	if fill == "" {
		fill = "#000000"
	}
	c, err := tile.ParseColor(fill)
	if err != nil {
		return nil, err
	}
	opts.Fill = c

	if opts.Format, err = tile.ParseFormat(o.Format); err != nil {
		return nil, err
	}

	return opts, nil
}

func (s *Server) describe(j *job) ExportResponse {
	resp := ExportResponse{
		ID:        j.id.String(),
		Status:    j.status(),
		CreatedAt: j.created,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	resp.Drawn = j.drawn
	resp.Total = j.total
	if resp.Status == StatusPendingConfirmation {
		secs := int(j.remaining / time.Second)
		resp.RemainingSeconds = &secs
	}

	if j.err != nil {
		resp.Message = j.err.Error()
	}
	if r := j.result; r != nil {
		resp.Outcome = r.Outcome.String()
		resp.Message = r.Outcome.Message()
		resp.Drawn = r.Drawn
		if p := r.Plan; p != nil {
			resp.Plan = &PlanSummary{
				Mode:     p.Mode,
				Zoom:     p.Zoom,
				Level:    p.Level,
				TileSize: p.TileSize,
				Tiles:    len(p.Records),
				MinX:     p.Box.MinX,
				MaxX:     p.Box.MaxX,
				MinY:     p.Box.MinY,
				MaxY:     p.Box.MaxY,
				Width:    p.Width,
				Height:   p.Height,
			}
		}
		for _, ft := range r.FailedTiles {
			resp.FailedTiles = append(resp.FailedTiles, FailedTile{Path: ft.Path, Error: ft.Error})
		}
		if r.Outcome == stitcher.Completed {
			resp.ImageURL = s.exportURL(j.id) + "/image"
		}
	}
	return resp
}

func (s *Server) exportURL(id uuid.UUID) string {
	return s.basePath + "/exports/" + id.String()
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message, requestID string, details map[string]interface{}) {
	s.writeJSON(w, statusCode, ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	})
}

// writeValidationErrorResponse reports a descriptor that failed validation
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, err error, requestID string) {
	response := ErrorResponse{
		Error:     "VALIDATION_ERROR",
		Message:   err.Error(),
		RequestID: requestID,
	}
	var pe *tile.PreconditionError
	if errors.As(err, &pe) {
		response.Field = pe.Path
	}
	s.writeJSON(w, http.StatusUnprocessableEntity, response)
}

func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return generateRequestID()
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}

func extension(format int) string {
	switch format {
	case tile.FormatJPEG:
		return ".jpg"
	case tile.FormatTIFF:
		return ".tif"
	}
	return ".png"
}
