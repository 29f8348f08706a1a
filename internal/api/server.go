package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"companion/internal/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Dependencies wires the HTTP surface to the application services.
type Dependencies struct {
	Bookings BookingService
	Users    UserService
	Admins     AdminGate
	Deliveries DeliveryLog
	Exporter   WorkbookWriter
	Health     Pinger
	Auth       *TokenAuth
	Logger     *zerolog.Logger
}

func NewRouter(cfg config.APIConfig, deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Handlers{
		bookings:   deps.Bookings,
		users:      deps.Users,
		admins:     deps.Admins,
		deliveries: deps.Deliveries,
		exporter:   deps.Exporter,
		health:     deps.Health,
		logger:     logger,
	}
	limiter := newRateLimiter(cfg.RateLimit)

	r := chi.NewRouter()
	useBaseMiddleware(r, logger)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Middleware)
		r.Use(limiter.Middleware)

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.listBookings)
			r.Post("/", h.createBooking)
			r.Get("/{id}", h.getBooking)
			r.Post("/{id}/approve", h.transition(deps.Bookings.Approve))
			r.Post("/{id}/reject", h.transition(deps.Bookings.Reject))
			r.Post("/{id}/cancel", h.transition(deps.Bookings.Cancel))
			r.Post("/{id}/complete", h.transition(deps.Bookings.Complete))
		})

		r.Get("/me", h.getProfile)
		r.Put("/me", h.putProfile)
		r.Put("/me/online", h.putOnline)
		r.Get("/notifications", h.listNotifications)
		r.Get("/companions/recommended", h.recommendedCompanions)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/stats", h.adminStats)
			r.Get("/bookings/export", h.adminExport)
			r.Get("/notifications/failed", h.failedDeliveries)
			r.Get("/users/admins", h.listAdmins)
			r.Post("/users/{id}/admin", h.grantAdmin)
			r.Delete("/users/{id}/admin", h.revokeAdmin)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

// useBaseMiddleware installs request ids, access logging and panic recovery.
// accessLog снаружи Recoverer, иначе паника не попадет в лог и метрики как 500.
func useBaseMiddleware(r chi.Router, logger *zerolog.Logger) {
	r.Use(requestIDMiddleware)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
}

// Server owns the listening http.Server.
type Server struct {
	server *http.Server
	logger *zerolog.Logger
}

func NewServer(cfg config.APIHTTPConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
