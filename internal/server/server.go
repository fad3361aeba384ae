// Package server exposes the flame graph renderer over HTTP. Profiles
// are uploaded, rendered to SVG, persisted to object storage and
// indexed in the database for later retrieval.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flamegen/internal/pipeline"
	"github.com/flamegen/internal/repository"
	"github.com/flamegen/internal/storage"
	apperrors "github.com/flamegen/pkg/errors"
	"github.com/flamegen/pkg/utils"
)

// Upload size limit for profile files.
const maxUploadBytes = 64 << 20

// Server represents the flame graph HTTP server.
type Server struct {
	port     int
	repo     repository.GraphRepository
	store    storage.Store
	defaults *pipeline.Options
	db       *gorm.DB
	logger   utils.Logger
	server   *http.Server
}

// NewServer creates a new flame graph server. defaults seeds the render
// options each request may override; db may be nil, the health endpoint
// then skips the database check.
func NewServer(port int, repo repository.GraphRepository, store storage.Store, defaults *pipeline.Options, db *gorm.DB, logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	if defaults == nil {
		defaults = pipeline.DefaultOptions()
	}
	return &Server{
		port:     port,
		repo:     repo,
		store:    store,
		defaults: defaults,
		db:       db,
		logger:   logger,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/graphs", s.handleListGraphs)
	mux.HandleFunc("/api/graphs/", s.handleGetGraph)
	mux.HandleFunc("/healthz", s.handleHealth)

	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("Starting flame graph server at http://localhost:%d", s.port)

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// renderResponse is the JSON body returned by POST /api/render.
type renderResponse struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	TotalBefore int64  `json:"total_before"`
	TotalAfter  int64  `json:"total_after,omitempty"`
	MaxDepth    int    `json:"max_depth"`
	URL         string `json:"url"`
}

// graphResponse is the JSON representation of a stored graph.
type graphResponse struct {
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"`
	TotalBefore int64     `json:"total_before"`
	TotalAfter  int64     `json:"total_after,omitempty"`
	MaxDepth    int       `json:"max_depth"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// applyRenderParams overlays non-empty title/width values onto opts.
// It reports false after writing a 400 response for a bad width.
func (s *Server) applyRenderParams(w http.ResponseWriter, opts *pipeline.Options, title, widthStr string) bool {
	if title != "" {
		opts.Title = title
	}
	if widthStr != "" {
		width, err := strconv.Atoi(widthStr)
		if err != nil || width <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid width: "+widthStr)
			return false
		}
		opts.Width = width
	}
	return true
}

// handleRender renders an uploaded profile and stores the result.
//
// Multipart form fields: "profile" for a single profile, or "before"
// and "after" for a differential; optional "title" and "width". A
// non-multipart body is treated as a single profile. Both body shapes
// honor "title" and "width" from the query string; multipart form
// fields take precedence over the query.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	opts := &pipeline.Options{
		Title:  s.defaults.Title,
		Width:  s.defaults.Width,
		Logger: s.logger,
	}
	if !s.applyRenderParams(w, opts, r.URL.Query().Get("title"), r.URL.Query().Get("width")) {
		return
	}

	var before, after io.Reader
	var inputName, afterName string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}

		if !s.applyRenderParams(w, opts, r.FormValue("title"), r.FormValue("width")) {
			return
		}

		b, bName, err := formFile(r, "before")
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if b != nil {
			defer b.Close()
			a, aName, err := formFile(r, "after")
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if a == nil {
				s.writeError(w, http.StatusBadRequest, "differential render requires both before and after files")
				return
			}
			defer a.Close()
			before, after = b, a
			inputName, afterName = bName, aName
		} else {
			p, pName, err := formFile(r, "profile")
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if p == nil {
				s.writeError(w, http.StatusBadRequest, "missing profile file")
				return
			}
			defer p.Close()
			before = p
			inputName = pName
		}
	} else {
		before = r.Body
		inputName = "request body"
	}

	gen := pipeline.New(opts)

	var svg bytes.Buffer
	var summary *pipeline.Summary
	var err error
	if after != nil {
		summary, err = gen.GenerateDiff(ctx, inputName, before, afterName, after, &svg)
	} else {
		summary, err = gen.Generate(ctx, inputName, before, &svg)
	}
	if err != nil {
		s.logger.Error("Render failed: %v", err)
		s.writeError(w, statusForError(err), apperrors.GetErrorMessage(err))
		return
	}

	id := uuid.NewString()
	key := id + ".svg"

	if err := s.store.Put(ctx, key, &svg); err != nil {
		s.logger.Error("Failed to store SVG: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to store rendered graph")
		return
	}

	record := &repository.FlameGraphRecord{
		UUID:        id,
		Title:       opts.Title,
		Kind:        summary.Kind,
		TotalBefore: summary.TotalBefore,
		TotalAfter:  summary.TotalAfter,
		MaxDepth:    summary.MaxDepth,
		StorageKey:  key,
	}
	if err := s.repo.Save(ctx, record); err != nil {
		s.logger.Error("Failed to save graph record: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save graph record")
		return
	}

	s.logger.Info("Rendered %s graph %s (%d samples, depth %d)",
		summary.Kind, id, summary.TotalBefore, summary.MaxDepth)

	s.writeJSON(w, http.StatusCreated, &renderResponse{
		UUID:        id,
		Title:       opts.Title,
		Kind:        summary.Kind,
		TotalBefore: summary.TotalBefore,
		TotalAfter:  summary.TotalAfter,
		MaxDepth:    summary.MaxDepth,
		URL:         "/api/graphs/" + key,
	})
}

// handleListGraphs returns the most recent graphs, newest first.
func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit: "+limitStr)
			return
		}
		limit = n
	}

	records, err := s.repo.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list graphs: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list graphs")
		return
	}

	graphs := make([]*graphResponse, len(records))
	for i, rec := range records {
		graphs[i] = toGraphResponse(rec)
	}

	s.writeJSON(w, http.StatusOK, graphs)
}

// handleGetGraph serves a stored graph. A ".svg" suffix returns the SVG
// document itself; otherwise the metadata record is returned as JSON.
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/graphs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "graph not found")
		return
	}

	wantSVG := strings.HasSuffix(id, ".svg")
	id = strings.TrimSuffix(id, ".svg")

	record, err := s.repo.GetByUUID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "graph not found: "+id)
			return
		}
		s.logger.Error("Failed to get graph %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, "failed to get graph")
		return
	}

	if !wantSVG {
		s.writeJSON(w, http.StatusOK, toGraphResponse(record))
		return
	}

	rc, err := s.store.Get(r.Context(), record.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.writeError(w, http.StatusNotFound, "graph document not found: "+id)
			return
		}
		s.logger.Error("Failed to read graph %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, "failed to read graph")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("Failed to write graph %s: %v", id, err)
	}
}

// handleHealth reports service and database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := repository.HealthCheck(ctx, s.db); err != nil {
			s.logger.Error("Health check failed: %v", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toGraphResponse(rec *repository.FlameGraphRecord) *graphResponse {
	return &graphResponse{
		UUID:        rec.UUID,
		Title:       rec.Title,
		Kind:        rec.Kind,
		TotalBefore: rec.TotalBefore,
		TotalAfter:  rec.TotalAfter,
		MaxDepth:    rec.MaxDepth,
		URL:         "/api/graphs/" + rec.StorageKey,
		CreatedAt:   rec.CreatedAt,
	}
}

// formFile opens a named multipart file. A missing field is not an
// error; the caller decides whether it is required.
func formFile(r *http.Request, field string) (io.ReadCloser, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("invalid %s file: %w", field, err)
	}
	return file, header.Filename, nil
}

// statusForError maps application error codes to HTTP status codes.
func statusForError(err error) int {
	switch apperrors.GetErrorCode(err) {
	case apperrors.CodeEmptyProfile, apperrors.CodeParseError, apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
