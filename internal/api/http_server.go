package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"prichal/internal/config"
	"prichal/internal/metrics"
	"prichal/internal/models"
	"prichal/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// RefundAuditLister reads the refund audit trail of a booking.
type RefundAuditLister interface {
	ListRefundAudits(ctx context.Context, bookingID string) ([]models.RefundAudit, error)
}

// FailedTaskLister exposes notifications that exhausted their retries.
type FailedTaskLister interface {
	FailedTasks(ctx context.Context) ([]models.NotificationTask, error)
}

// Services is everything the HTTP API calls into.
type Services struct {
	Resources     *service.ResourceService
	Slots         *service.AvailabilityService
	Pricing       *service.PricingService
	Bookings      *service.BookingService
	Inquiries     *service.InquiryService
	Settings      *service.SettingsService
	Audits        RefundAuditLister
	Notifications FailedTaskLister
	Storage       Pinger
	Currency      string
	Location      *time.Location
}

// HTTPServer exposes the booking engine over JSON/HTTP.
type HTTPServer struct {
	cfg     *config.APIConfig
	svc     Services
	router  *mux.Router
	server  *http.Server
	auth    *authenticator
	limiter *RateLimiter
	logger  zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, limiter *RateLimiter, logger *zerolog.Logger) *HTTPServer {
	if limiter == nil {
		limiter = NewRateLimiter(cfg, nil, logger)
	}
	if svc.Currency == "" {
		svc.Currency = "INR"
	}
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		router:  mux.NewRouter(),
		auth:    newAuthenticator(cfg),
		limiter: limiter,
		logger:  zerolog.Nop(),
	}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	}
	srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.router.Use(s.requestIDMiddleware, s.loggingMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware, s.rateLimitMiddleware)

	route := func(method, path, perm string, h http.HandlerFunc) {
		api.Handle(path, s.requirePermission(perm, h)).Methods(method)
	}

	route(http.MethodGet, "/resources", permReadAvailability, s.handleListResources)
	route(http.MethodGet, "/resources/{id}/availability", permReadAvailability, s.handleAvailability)
	route(http.MethodPut, "/resources/{id}/status", permAdmin, s.handleSetResourceStatus)
	route(http.MethodPost, "/quotes", permReadAvailability, s.handleQuote)

	route(http.MethodPost, "/bookings", permWriteBookings, s.handleCreateBooking)
	route(http.MethodGet, "/bookings", permAdmin, s.handleListBookings)
	route(http.MethodGet, "/bookings/{id}", permWriteBookings, s.handleGetBooking)
	route(http.MethodDelete, "/bookings/{id}", permAdmin, s.handleDeleteBooking)
	route(http.MethodPost, "/bookings/{id}/confirm", permPayments, s.handleConfirmBooking)
	route(http.MethodPost, "/bookings/{id}/cancel", permWriteBookings, s.handleCancelBooking)
	route(http.MethodPost, "/bookings/{id}/complete", permAdmin, s.handleCompleteBooking)
	route(http.MethodPost, "/bookings/{id}/no-show", permAdmin, s.handleNoShow)
	route(http.MethodPost, "/bookings/{id}/reschedule", permWriteBookings, s.handleReschedule)
	route(http.MethodPut, "/bookings/{id}/override", permAdmin, s.handleOverride)
	route(http.MethodGet, "/bookings/{id}/refunds", permAdmin, s.handleRefundAudits)

	route(http.MethodPost, "/inquiries", permWriteBookings, s.handleSubmitInquiry)
	route(http.MethodGet, "/inquiries/{id}", permWriteBookings, s.handleGetInquiry)
	route(http.MethodDelete, "/inquiries/{id}", permAdmin, s.handleDeleteInquiry)
	route(http.MethodPost, "/inquiries/{id}/quote", permAdmin, s.handleQuoteInquiry)
	route(http.MethodPost, "/inquiries/{id}/accept", permWriteBookings, s.handleAcceptInquiry)
	route(http.MethodPost, "/inquiries/{id}/reject", permAdmin, s.handleRejectInquiry)
	route(http.MethodPost, "/inquiries/{id}/convert", permAdmin, s.handleConvertInquiry)

	route(http.MethodGet, "/settings", permAdmin, s.handleGetSettings)
	route(http.MethodPut, "/settings", permAdmin, s.handleUpdateSettings)

	route(http.MethodGet, "/notifications/failed", permAdmin, s.handleFailedNotifications)
	route(http.MethodGet, "/reports/bookings", permAdmin, s.handleBookingsReport)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
}

// Handler returns the routed handler with middleware; used by tests and embedding servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
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

type ctxKey int

const (
	ctxClient ctxKey = iota
	ctxRequestID
)

// principal is the authenticated caller of a request.
type principal struct {
	client config.APIClientKey
	actor  models.Actor
	name   string
}

func principalFrom(ctx context.Context) principal {
	if p, ok := ctx.Value(ctxClient).(principal); ok {
		return p
	}
	// Без аутентификации API работает во внутренней сети как администратор
	return principal{actor: models.ActorAdmin, name: "anonymous"}
}

func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, requestID)))
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		metrics.IncHTTP(endpoint)

		requestID, _ := r.Context().Value(ctxRequestID).(string)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.enabled() {
			next.ServeHTTP(w, r)
			return
		}

		apiKeyHeader, extraHeader := s.auth.headerNames()
		client, err := s.auth.authenticate(
			strings.TrimSpace(r.Header.Get(apiKeyHeader)),
			strings.TrimSpace(r.Header.Get(extraHeader)),
		)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}

		p := principal{client: client, actor: actorFor(client), name: client.Name}
		if p.name == "" {
			p.name = string(p.actor)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxClient, p)))
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r.Context(), s.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requirePermission(perm string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth.enabled() {
			p := principalFrom(r.Context())
			if !hasPermission(p.client, perm) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", errPermissionDenied.Error())
				return
			}
		}
		next(w, r)
	})
}

func (s *HTTPServer) clientKey(r *http.Request) string {
	apiKeyHeader, _ := s.auth.headerNames()
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
