package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeonardoBeccarini/binova/internal/logging"
	"github.com/LeonardoBeccarini/binova/internal/observability"
	"github.com/LeonardoBeccarini/binova/internal/store"
)

// Server is the dashboard HTTP surface.
type Server struct {
	svc     *Service
	hub     http.Handler
	health  *Health
	metrics *observability.Collector
	log     logging.Logger

	timeout time.Duration
	refresh time.Duration
}

type ServerConfig struct {
	Timeout       time.Duration // per-request store deadline
	RefreshPeriod time.Duration // page auto-reload
}

func NewServer(svc *Service, hub http.Handler, health *Health, metrics *observability.Collector, log logging.Logger, cfg ServerConfig) *Server {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RefreshPeriod <= 0 {
		cfg.RefreshPeriod = 60 * time.Second
	}
	return &Server{
		svc:     svc,
		hub:     hub,
		health:  health,
		metrics: metrics,
		log:     log,
		timeout: cfg.Timeout,
		refresh: cfg.RefreshPeriod,
	}
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ActionResponse struct {
	Status string `json:"status"`
	Bin    string `json:"bin"`
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(s.log))

	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/bins/{id}/clean", s.handleCleanForm).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/bins", s.handleGetBins).Methods(http.MethodGet)
	api.HandleFunc("/bins/{id}/clean", s.handleCleanAPI).Methods(http.MethodPost)

	if s.hub != nil {
		r.Handle("/ws", s.hub).Methods(http.MethodGet)
	}
	if s.health != nil {
		r.HandleFunc("/healthz", s.health.handleHealth).Methods(http.MethodGet)
		r.HandleFunc("/readyz", s.health.handleReady).Methods(http.MethodGet)
	}
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleGetBins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	vm, err := s.svc.View(ctx)
	if err != nil {
		s.log.Error(ctx, "snapshot read failed", logging.Err(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, vm)
}

func (s *Server) handleCleanAPI(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := s.svc.MarkCleaned(ctx, id); err != nil {
		s.log.Warn(ctx, "mark cleaned failed", logging.String("bin", id), logging.Err(err))
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ActionResponse{Status: "success", Bin: id})
}

// handleCleanForm is the page button: it applies the action and redirects
// back with a flash message.
func (s *Server) handleCleanForm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	q := url.Values{}
	if err := s.svc.MarkCleaned(ctx, id); err != nil {
		s.log.Warn(ctx, "mark cleaned failed", logging.String("bin", id), logging.Err(err))
		q.Set("level", "error")
		q.Set("flash", fmt.Sprintf("Could not mark %s cleaned: %v", id, err))
	} else {
		q.Set("level", "success")
		q.Set("flash", fmt.Sprintf("%s marked cleaned!", id))
	}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// statusFor maps store errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{
		Status:  "error",
		Message: message,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"Error marshaling JSON"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
