package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"hallbook/internal/config"
	"hallbook/internal/metrics"
	"hallbook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether the storage is usable.
type HealthCheck func(ctx context.Context) error

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings *service.BookingService
	halls    *service.HallService
	health   HealthCheck
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	bookings *service.BookingService,
	halls *service.HallService,
	health HealthCheck,
	logger *zerolog.Logger,
) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		halls:    halls,
		health:   health,
		auth:     NewHTTPAuth(cfg),
		logger:   &httpLogger,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.handle(mux, "POST /api/v1/bookings", PermWriteBookings, s.handleCreateBooking)
	s.handle(mux, "GET /api/v1/bookings", PermReadBookings, s.handleListBookings)
	s.handle(mux, "GET /api/v1/bookings/summary", PermReadBookings, s.handleSummary)
	s.handle(mux, "GET /api/v1/bookings/history", PermReadBookings, s.handleHistory)
	s.handle(mux, "GET /api/v1/bookings/search", PermReadBookings, s.handleSearch)
	s.handle(mux, "GET /api/v1/bookings/date/{date}", PermReadBookings, s.handleBookingsOnDate)
	s.handle(mux, "POST /api/v1/bookings/check", PermReadBookings, s.handleCheckBooking)
	s.handle(mux, "GET /api/v1/bookings/export", PermAdminBookings, s.handleExport)
	s.handle(mux, "GET /api/v1/bookings/{id}", PermReadBookings, s.handleGetBooking)
	s.handle(mux, "PUT /api/v1/bookings/{id}", PermAdminBookings, s.handleUpdateBooking)
	s.handle(mux, "DELETE /api/v1/bookings/{id}", PermAdminBookings, s.handleDeleteBooking)
	s.handle(mux, "POST /api/v1/bookings/{id}/approve", PermAdminBookings, s.handleApprove)
	s.handle(mux, "POST /api/v1/bookings/{id}/reject", PermAdminBookings, s.handleReject)
	s.handle(mux, "POST /api/v1/bookings/{id}/cancel", PermAdminBookings, s.handleCancel)
	s.handle(mux, "POST /api/v1/bookings/{id}/cancel-request", PermWriteBookings, s.handleCancelRequest)

	s.handle(mux, "GET /api/v1/day/{date}", PermReadBookings, s.handleDay)
	s.handle(mux, "GET /api/v1/calendar", PermReadBookings, s.handleCalendar)
	s.handle(mux, "GET /api/v1/halls", PermReadBookings, s.handleHalls)
	s.handle(mux, "GET /api/v1/halls/{hall}/date/{date}", PermReadBookings, s.handleBookingsOnDate)
}

// handle registers h behind the permission check; the pattern doubles as
// the metrics endpoint label.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern, perm string, h http.HandlerFunc) {
	mux.Handle(pattern, s.auth.Require(perm, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})))
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ctxKey int

const (
	ctxKeyClient ctxKey = iota
	ctxKeyRequestID
)

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    *keyRing
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, keys: newKeyRing(cfg), limiter: newRateLimiter(cfg.RateLimit)}
}

// Wrap authenticates the caller and applies the rate limit. The
// authenticated client is stored in the request context for Require.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.keys.authEnabled {
			client, err := a.keys.authenticate(
				strings.TrimSpace(r.Header.Get(a.keys.apiKeyName)),
				strings.TrimSpace(r.Header.Get(a.keys.extraName)),
			)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyClient, client))
		}

		if !a.limiter.Allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Require rejects callers lacking perm. Without auth every caller passes.
func (a *HTTPAuth) Require(perm string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if client, ok := clientFromContext(r.Context()); ok && !allowed(client, perm) {
			writeError(w, http.StatusForbidden, errPermissionDenied.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyName)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func clientFromContext(ctx context.Context) (config.APIClientKey, bool) {
	client, ok := ctx.Value(ctxKeyClient).(config.APIClientKey)
	return client, ok
}

// actor names the caller for audit entries.
func actor(r *http.Request) string {
	client, _ := clientFromContext(r.Context())
	return clientName(client)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
