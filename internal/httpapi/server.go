// Package httpapi serves health checks, Prometheus metrics and a manual run
// trigger.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

// Runner is the summary pipeline triggered by the API.
type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Report, error)
	State() pipeline.State
	LastReport() *pipeline.Report
}

// Pinger checks that the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP endpoint of the bot.
type Server struct {
	addr   string
	runner Runner
	store  Pinger
	logger *slog.Logger
	router *mux.Router

	// runs started with wait=false outlive their request.
	runCtx context.Context
	runs   sync.WaitGroup
}

// New creates a Server listening on addr.
func New(addr string, runner Runner, store Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		addr:   addr,
		runner: runner,
		store:  store,
		logger: logger.With("component", "http"),
		runCtx: context.Background(),
	}

	router := mux.NewRouter()
	router.Use(s.logRequests)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimit(1, 5))
	api.HandleFunc("/runs", s.handleTrigger).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.router = router
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down and waits for triggered runs.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx

	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTP server starting", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server forced to shutdown", "error", err)
	}
	s.runs.Wait()
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrigger starts a run. With wait=true the run executes within the
// request and its report is returned; otherwise it runs in the background.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.runner.State() == pipeline.StateRunning {
		writeJSON(w, http.StatusConflict, map[string]string{"error": errs.ErrRunInProgress.Error()})
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		report, err := s.runner.Run(r.Context(), pipeline.TriggerHTTP)
		switch {
		case errors.Is(err, errs.ErrRunInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case report != nil:
			writeJSON(w, http.StatusOK, report)
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.runner.Run(s.runCtx, pipeline.TriggerHTTP); err != nil {
			s.logger.Warn("Triggered run failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type statusResponse struct {
	State      pipeline.State   `json:"state"`
	LastReport *pipeline.Report `json:"last_report,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:      s.runner.State(),
		LastReport: s.runner.LastReport(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
