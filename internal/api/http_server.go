package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tripdesk/internal/config"
	"tripdesk/internal/models"
	"tripdesk/internal/service"

	"github.com/rs/zerolog"
)

type QuoteService interface {
	Quote(ctx context.Context, req service.QuoteRequest) (*service.Quote, error)
	Browse(ctx context.Context, kind models.ProductKind, date *time.Time, salesPartnerID *int64) ([]service.Listing, error)
	Highlights(ctx context.Context, kind models.ProductKind, limit int) ([]service.Highlight, error)
}

type PaymentService interface {
	CreateIntent(ctx context.Context, kind models.ProductKind, caller service.Caller, req service.IntentRequest) (*service.IntentResult, error)
	Refund(ctx context.Context, kind models.ProductKind, caller service.Caller, in service.RefundInput) (*models.Refund, error)
	GetRefund(ctx context.Context, refundID string) (*models.Refund, error)
}

type Reconciler interface {
	Status(ctx context.Context, kind models.ProductKind, caller service.Caller, chargeID string) (*service.ReconcileResult, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, raw []byte, signature string) error
}

type ReportSource interface {
	ListReservations(ctx context.Context, kind models.ProductKind, from, to time.Time) ([]models.ReservationReportRow, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Services are the handlers' collaborators.
type Services struct {
	Quotes     QuoteService
	Payments   PaymentService
	Reconciler Reconciler
	Webhooks   WebhookHandler
	Reports    ReportSource
	Checks     map[string]HealthCheck
}

// HTTPServer exposes the storefront REST API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	auth    *Authenticator
	limiter *rateLimiter
	server  *http.Server
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		auth:    NewAuthenticator(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
		log:     logger.With().Str("component", "http").Logger(),
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the full middleware chain around the routes.
func (s *HTTPServer) Handler() http.Handler {
	return requestMiddleware(&s.log, recoverMiddleware(&s.log, rateLimitMiddleware(s.limiter, s.routes())))
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/v1/catalog/{kind}", s.optionalAuth(s.handleBrowse))
	mux.HandleFunc("GET /api/v1/catalog/{kind}/highlights", s.handleHighlights)
	mux.HandleFunc("GET /api/v1/catalog/{kind}/{id}/quote", s.optionalAuth(s.handleQuote))

	mux.HandleFunc("POST /api/v1/payments/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/v1/payments/refunds/{refund_id}", s.requireAuth(s.handleGetRefund))
	mux.HandleFunc("POST /api/v1/payments/{kind}/intent", s.requireAuth(s.handleIntent))
	mux.HandleFunc("GET /api/v1/payments/{kind}/status/{charge_id}", s.requireAuth(s.handleStatus))
	mux.HandleFunc("POST /api/v1/payments/{kind}/refund", s.requireAuth(s.handleRefund))

	mux.HandleFunc("GET /api/v1/admin/reports/reservations", s.requireAuth(s.handleReservationReport))

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", nil)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if info := infoFrom(r.Context()); info != nil {
			info.pattern = r.Pattern
		}
	})
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
