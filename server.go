package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server wires the workflows, the store and the HTTP surface the SPA talks
// to. One guard per workflow type; concurrent runs of the same kind are
// rejected, not queued.
type Server struct {
	cfg      Config
	store    EntityStore
	glossary *DeviceGlossary
	invoke   llmInvoker
	notifier *Notifier

	uploadGuard   *workflowGuard
	optimizeGuard *workflowGuard

	// Last session's recommendations. Transient: never persisted.
	recMu           sync.Mutex
	recommendations []Recommendation
}

func NewServer(cfg Config, store EntityStore, glossary *DeviceGlossary, invoke llmInvoker, notifier *Notifier) *Server {
	return &Server{
		cfg:           cfg,
		store:         store,
		glossary:      glossary,
		invoke:        invoke,
		notifier:      notifier,
		uploadGuard:   newWorkflowGuard(),
		optimizeGuard: newWorkflowGuard(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/api/upload", s.handleUpload)
		r.Post("/api/optimize", s.handleOptimize)
		r.Get("/api/dashboard", s.handleDashboard)
		r.Get("/api/records", s.handleRecords)
		r.Get("/api/results", s.handleResults)
		r.Get("/api/recommendations", s.handleRecommendations)
		r.Get("/api/workflows", s.handleWorkflows)
	})

	return r
}

// requireToken is the narrow auth surface: a static bearer token when
// configured, open otherwise. Session internals live with the platform, not
// here.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.APIToken {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(s.cfg.UploadMaxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrNoFileSelected.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}

	ctx, err := s.uploadGuard.TryStart(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	summary, runErr := runUpload(ctx, s.cfg, s.store, s.glossary, s.invoke, header.Filename, content)
	s.uploadGuard.Finish(runErr)
	if runErr != nil {
		writeError(w, uploadStatusCode(runErr), runErr.Error())
		return
	}
	s.notifier.UploadCompleted(header.Filename, summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	ctx, err := s.optimizeGuard.TryStart(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	outcome, runErr := s.runOptimizationSession(ctx)
	s.optimizeGuard.Finish(runErr)
	if runErr != nil {
		writeError(w, optimizeStatusCode(runErr), runErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// runOptimizationSession runs the workflow, stores the session
// recommendations and notifies the configured channel.
func (s *Server) runOptimizationSession(ctx context.Context) (OptimizationOutcome, error) {
	outcome, err := runOptimization(ctx, s.cfg, s.store, s.invoke)
	if err != nil {
		s.notifier.OptimizationFailed(err)
		return OptimizationOutcome{}, err
	}

	s.recMu.Lock()
	s.recommendations = outcome.Recommendations
	s.recMu.Unlock()

	s.notifier.OptimizationSucceeded(outcome)
	return outcome, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, loadDashboard(r.Context(), s.store))
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListEnergyRecords(r.Context(), queryLimit(r, dashboardRecordCap))
	if err != nil {
		writeError(w, http.StatusBadGateway, "loading records failed")
		return
	}
	if records == nil {
		records = []EnergyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListOptimizationResults(r.Context(), queryLimit(r, dashboardResultCap))
	if err != nil {
		writeError(w, http.StatusBadGateway, "loading results failed")
		return
	}
	if results == nil {
		results = []OptimizationResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.recMu.Lock()
	recs := make([]Recommendation, len(s.recommendations))
	copy(recs, s.recommendations)
	s.recMu.Unlock()
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]workflowStatus{
		"upload":   s.uploadGuard.Status(),
		"optimize": s.optimizeGuard.Status(),
	})
}

// Shutdown cancels any in-flight workflow so their timers are released.
func (s *Server) Shutdown() {
	s.uploadGuard.Cancel()
	s.optimizeGuard.Cancel()
}

func uploadStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNoFileSelected):
		return http.StatusBadRequest
	case errors.Is(err, ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func optimizeStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNoDataAvailable):
		return http.StatusBadRequest
	case errors.Is(err, ErrOptimizationTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
