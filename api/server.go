// Package api exposes link mining, the task board and the opportunity scorer over HTTP.
package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/linkscout"
	"github.com/docutag/linkscout/db"
	"github.com/docutag/linkscout/lock"
	"github.com/docutag/linkscout/models"
	"github.com/docutag/linkscout/opportunity"
	"github.com/docutag/linkscout/storage"
	"github.com/docutag/linkscout/sweep"
)

// maxBodyBytes caps request bodies, page HTML included
const maxBodyBytes = 10 * 1024 * 1024

// Store is the data access the API needs beyond mining
type Store interface {
	Ping(ctx context.Context) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]models.Task, error)
	GetPage(ctx context.Context, id string) (*models.Page, error)
	SavePageContent(ctx context.Context, pageID, title, text string) error
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
	CronToken   string            // Required in X-Cron-Token by the cron endpoint; empty disables it
	MineOptions linkscout.Options // Defaults for on-demand runs
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
	}
}

// Deps are the collaborators a Server delegates to. Fetcher, Archive, Gatherer and
// Logger are optional.
type Deps struct {
	Store    Store
	Sweeper  *sweep.Sweeper
	Fetcher  *linkscout.Fetcher
	Archive  storage.Archive
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server represents the API server
type Server struct {
	config  Config
	deps    Deps
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.registerRoutes()
	s.handler = otelhttp.NewHandler(s.middleware(s.mux), "linkscout-api")

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // Sweeps over many projects run inline
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/projects/", s.handleProject) // Handles /api/projects/{id}/link-suggestions and /api/projects/{id}/tasks
	s.mux.HandleFunc("/api/pages/", s.handlePage)       // Handles /api/pages/{id}/content and /api/pages/{id}/fetch
	s.mux.HandleFunc("/api/cron/link-scout", s.handleCronLinkScout)
	s.mux.HandleFunc("/api/opportunity/score", s.handleScore)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.config.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Cron-Token")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Skip health checks and scrapes to reduce noise
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"
		start := time.Now()

		next.ServeHTTP(w, r)

		if !quiet {
			s.logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start).String(),
			)
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// handleProject routes /api/projects/{id}/{action}
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitResourcePath(r.URL.Path, "/api/projects/")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "link-suggestions":
		s.handleLinkSuggestions(w, r, id)
	case "tasks":
		s.handleTaskBoard(w, r, id)
	default:
		respondError(w, http.StatusNotFound, "not found")
	}
}

// LinkSuggestionsResponse lists the LINK tasks created by a run
type LinkSuggestionsResponse struct {
	Suggestions []models.SuggestionResult `json:"suggestions"`
}

// handleLinkSuggestions mines one project on demand
func (s *Server) handleLinkSuggestions(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	opts := s.config.MineOptions
	if err := decodeOptionalJSON(r, &opts); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.projectExists(w, r, projectID) {
		return
	}

	results, err := s.deps.Sweeper.MineProject(r.Context(), projectID, opts)
	if errors.Is(err, lock.ErrLocked) {
		respondError(w, http.StatusConflict, "link suggestions are already being generated for this project")
		return
	}
	if err != nil {
		s.logger.Error("link suggestion run failed",
			"project_id", projectID,
			"created", len(results),
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "failed to generate link suggestions")
		return
	}

	respondJSON(w, http.StatusOK, LinkSuggestionsResponse{Suggestions: results})
}

// TaskBoardResponse is a project's task board
type TaskBoardResponse struct {
	ProjectID string               `json:"project_id"`
	Columns   []opportunity.Column `json:"columns"`
}

// handleTaskBoard returns tasks grouped by status and ranked by opportunity score
func (s *Server) handleTaskBoard(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.projectExists(w, r, projectID) {
		return
	}

	tasks, err := s.deps.Store.ListTasks(r.Context(), projectID)
	if err != nil {
		s.logger.Error("failed to list tasks", "project_id", projectID, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, TaskBoardResponse{
		ProjectID: projectID,
		Columns:   opportunity.Board(tasks),
	})
}

// projectExists writes a 404 or 500 response and returns false when the project
// cannot be used
func (s *Server) projectExists(w http.ResponseWriter, r *http.Request, projectID string) bool {
	_, err := s.deps.Store.GetProject(r.Context(), projectID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project not found")
		return false
	}
	if err != nil {
		s.logger.Error("failed to load project", "project_id", projectID, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return false
	}
	return true
}

// CronResponse reports a sweep triggered by the scheduler endpoint
type CronResponse struct {
	OK         bool                  `json:"ok"`
	Results    []sweep.ProjectResult `json:"results"`
	Created    int                   `json:"created"`
	ArchiveKey string                `json:"archive_key,omitempty"`
}

// handleCronLinkScout runs a sweep over all active projects
func (s *Server) handleCronLinkScout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.Header.Get("X-Cron-Token")
	if s.config.CronToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.CronToken)) != 1 {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := s.deps.Sweeper.Run(r.Context())
	if err != nil {
		s.logger.Error("link sweep failed", "error", err)
		respondError(w, http.StatusInternalServerError, "link sweep failed")
		return
	}

	respondJSON(w, http.StatusOK, CronResponse{
		OK:         true,
		Results:    report.Results,
		Created:    report.Created(),
		ArchiveKey: report.ArchiveKey,
	})
}

// ScoreResponse is the scorer's view of one input
type ScoreResponse struct {
	Score          float64  `json:"score"`
	PositionWeight *float64 `json:"position_weight,omitempty"`
}

// handleScore scores an arbitrary opportunity input
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var in opportunity.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp := ScoreResponse{Score: opportunity.Score(in)}
	if in.AveragePosition != nil {
		weight := opportunity.PositionWeight(*in.AveragePosition)
		resp.PositionWeight = &weight
	}

	respondJSON(w, http.StatusOK, resp)
}

// handlePage routes /api/pages/{id}/{action}
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitResourcePath(r.URL.Path, "/api/pages/")
	if !ok {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "content":
		s.handlePageContent(w, r, id)
	case "fetch":
		s.handlePageFetch(w, r, id)
	default:
		respondError(w, http.StatusNotFound, "not found")
	}
}

// PageContentRequest carries page content as HTML or as plain text
type PageContentRequest struct {
	HTML  string `json:"html,omitempty"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

// PageContentResponse describes stored page content
type PageContentResponse struct {
	PageID     string `json:"page_id"`
	Title      string `json:"title,omitempty"`
	TextLength int    `json:"text_length"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// handlePageContent stores the text content of a page
func (s *Server) handlePageContent(w http.ResponseWriter, r *http.Request, pageID string) {
	if r.Method != http.MethodPut {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PageContentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title, text := strings.TrimSpace(req.Title), strings.TrimSpace(req.Text)
	switch {
	case req.HTML != "":
		content, err := linkscout.ExtractContent(strings.NewReader(req.HTML))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid html")
			return
		}
		text = content.Text
		if title == "" {
			title = content.Title
		}
	case text == "":
		respondError(w, http.StatusBadRequest, "html or text is required")
		return
	}

	s.storePageContent(w, r, pageID, title, text, []byte(req.HTML))
}

// handlePageFetch downloads a page from its URL and stores its text content
func (s *Server) handlePageFetch(w http.ResponseWriter, r *http.Request, pageID string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Fetcher == nil {
		respondError(w, http.StatusServiceUnavailable, "page fetching is disabled")
		return
	}

	page, err := s.deps.Store.GetPage(r.Context(), pageID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load page", "page_id", pageID, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	fetched, err := s.deps.Fetcher.Fetch(r.Context(), page.URL)
	if err != nil {
		s.logger.Warn("failed to fetch page", "page_id", pageID, "url", page.URL, "error", err)
		respondError(w, http.StatusBadGateway, "failed to fetch page")
		return
	}

	s.storePageContent(w, r, pageID, fetched.Title, fetched.Text, fetched.HTML)
}

func (s *Server) storePageContent(w http.ResponseWriter, r *http.Request, pageID, title, text string, html []byte) {
	err := s.deps.Store.SavePageContent(r.Context(), pageID, title, text)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to save page content", "page_id", pageID, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := PageContentResponse{PageID: pageID, Title: title, TextLength: len(text)}

	if s.deps.Archive != nil && len(html) > 0 {
		key, err := s.deps.Archive.Save(r.Context(), "content", pageID, html, "text/html; charset=utf-8")
		if err != nil {
			s.logger.Warn("failed to archive page snapshot", "page_id", pageID, "error", err)
		} else {
			resp.ArchiveKey = key
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// splitResourcePath splits "<prefix><id>/<action>" into its id and action
func splitResourcePath(path, prefix string) (id, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// decodeOptionalJSON decodes the request body into v when one is present
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
