// Package api exposes the scheduler over a small JSON HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"practicespace/internal/booking"
	"practicespace/internal/closures"
	"practicespace/internal/conflict"
	"practicespace/internal/eventsync"
	"practicespace/internal/export"
	"practicespace/internal/model"
	"practicespace/internal/pricing"
	"practicespace/internal/recurring"
	"practicespace/internal/slots"
)

// Services are the components behind the endpoints.
type Services struct {
	Slots     *slots.Calculator
	Pricing   *pricing.Engine
	Conflicts *conflict.Scanner
	Bookings  *booking.Service
	Series    *recurring.Generator
	Events    *eventsync.Syncer
	Closures  *closures.Service
	Export    *export.Exporter
	// Location is the venue zone for date parameters.
	Location func() *time.Location
}

type Config struct {
	Port          int
	Keys          []string
	RatePerSecond float64
	Burst         int
}

// HTTPServer serves the scheduler API. Every request needs an X-Api-Key
// header and is rate limited per key.
type HTTPServer struct {
	svc    Services
	keys   map[string]struct{}
	rate   rate.Limit
	burst  int
	server *http.Server
	logger *zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPServer(cfg Config, svc Services, logger *zerolog.Logger) *HTTPServer {
	if svc.Location == nil {
		svc.Location = func() *time.Location { return time.UTC }
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	l := logger.With().Str("component", "api").Logger()
	s := &HTTPServer{
		svc:      svc,
		keys:     make(map[string]struct{}, len(cfg.Keys)),
		rate:     rate.Limit(cfg.RatePerSecond),
		burst:    cfg.Burst,
		logger:   &l,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, k := range cfg.Keys {
		if k != "" {
			s.keys[k] = struct{}{}
		}
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withAuth(s.withRateLimit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/availability/starts", s.handleStartTimes)
	mux.HandleFunc("GET /api/availability/ends", s.handleEndTimes)
	mux.HandleFunc("GET /api/availability/slots", s.handleSlots)
	mux.HandleFunc("GET /api/conflicts", s.handleConflicts)
	mux.HandleFunc("POST /api/cost", s.handleCost)

	mux.HandleFunc("GET /api/reservations", s.handleListReservations)
	mux.HandleFunc("POST /api/reservations", s.handleCreateReservation)
	mux.HandleFunc("GET /api/reservations/{id}", s.handleGetReservation)
	mux.HandleFunc("POST /api/reservations/{id}/{action}", s.handleReservationAction)

	mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	mux.HandleFunc("POST /api/series/generate", s.handleGenerateAll)
	mux.HandleFunc("POST /api/series/{id}/generate", s.handleGenerateSeries)
	mux.HandleFunc("POST /api/series/{id}/cancel", s.handleCancelSeries)

	mux.HandleFunc("PUT /api/events/{id}/block", s.handleSyncEventBlock)
	mux.HandleFunc("DELETE /api/events/{id}/block", s.handleRemoveEventBlock)
	mux.HandleFunc("POST /api/events/{id}/classify", s.handleClassify)
	mux.HandleFunc("POST /api/events/validate-pattern", s.handleValidatePattern)

	mux.HandleFunc("GET /api/closures", s.handleListClosures)
	mux.HandleFunc("POST /api/closures", s.handleCreateClosure)
	mux.HandleFunc("DELETE /api/closures/{id}", s.handleDeleteClosure)

	mux.HandleFunc("GET /api/export/schedule", s.handleExportSchedule)
}

// Handler returns the root handler, middleware included.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("API server started")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	s.logger.Info().Msg("API server stopped")
	return nil
}

func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.keys[r.Header.Get("X-Api-Key")]; !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rate, s.burst)
		s.limiters[key] = l
	}
	return l
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter(r.Header.Get("X-Api-Key")).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Field     string             `json:"field,omitempty"`
	Conflicts *model.ConflictSet `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps scheduler errors to HTTP statuses.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve *model.ValidationError
		nf *model.NotFoundError
		se *model.StateError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: ve.Field})
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		if ce, ok := model.IsConflict(err); ok {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Conflicts: &ce.Conflicts})
			return
		}
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return model.Invalid("", "invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0, model.Invalid(name, "must be a non-negative integer")
	}
	return id, nil
}

// queryDate parses a required YYYY-MM-DD parameter as venue-local midnight.
func (s *HTTPServer) queryDate(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, model.Invalid(name, "is required")
	}
	d, err := time.ParseInLocation(model.DateLayout, v, s.svc.Location())
	if err != nil {
		return time.Time{}, model.Invalid(name, "expected YYYY-MM-DD")
	}
	return d, nil
}

// queryTime parses an RFC 3339 timestamp, or a date meaning local midnight.
func (s *HTTPServer) queryTime(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return s.queryDate(r, name)
}

func queryTimeOfDay(r *http.Request, name string) (*model.TimeOfDay, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := model.ParseTimeOfDay(v)
	if err != nil {
		return nil, model.Invalid(name, "expected HH:MM")
	}
	return &t, nil
}
