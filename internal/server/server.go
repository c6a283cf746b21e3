// Package server exposes the document question-answering service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"docqa/internal/ingest"
	"docqa/internal/qa"
)

// QA answers questions and serves page content.
type QA interface {
	Ask(ctx context.Context, question string, opts qa.Options) (*qa.Answer, error)
	PageContent(ctx context.Context, source string, page int) ([]string, error)
}

// Ingestor manages the document library behind the ingest endpoints.
type Ingestor interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*ingest.Result, error)
	Delete(ctx context.Context, filename string) error
	Documents() ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Models tracks the active chat model and the installed ones.
type Models interface {
	Model() string
	SetModel(name string)
	BaseURL() string
	Available(ctx context.Context) ([]string, error)
}

// IndexStats exposes the retrieval failure counter for status reporting.
type IndexStats interface {
	IndexErrors() uint64
}

type Server struct {
	qa       QA
	ingestor Ingestor
	models   Models
	stats    IndexStats
	router   *mux.Router
}

func New(qaSvc QA, ingestor Ingestor, models Models, stats IndexStats) *Server {
	s := &Server{qa: qaSvc, ingestor: ingestor, models: models, stats: stats}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(requestLogger)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ask-question", s.handleAskQuestion).Methods(http.MethodPost)
	api.HandleFunc("/exact-page-content", s.handleExactPageContent).Methods(http.MethodPost)
	api.HandleFunc("/raw-page-content", s.handleRawPageContent).Methods(http.MethodPost)
	api.HandleFunc("/available-models", s.handleAvailableModels).Methods(http.MethodGet)
	api.HandleFunc("/select-model", s.handleSelectModel).Methods(http.MethodPost)
	api.HandleFunc("/document-list", s.handleDocumentList).Methods(http.MethodGet)
	api.HandleFunc("/system-status", s.handleSystemStatus).Methods(http.MethodGet)

	ing := api.PathPrefix("/ingest").Subrouter()
	ing.HandleFunc("/upload-document", s.handleUploadDocument).Methods(http.MethodPost)
	ing.HandleFunc("/delete-document", s.handleDeleteDocument).Methods(http.MethodPost)

	s.router = r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
