// Package api provides the local companion HTTP server for the ReminEx
// client.
//
// It exposes the rate cache, the currency preference and product drafts
// over REST so that a browser or another device can drive intake, and
// streams client events over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/config"
	"github.com/reminex/client/internal/currency"
	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/internal/intake"
	"github.com/reminex/client/pkg/models"
)

// Backend is the subset of the REST client the server calls.
type Backend interface {
	intake.Backend
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

// Session holds the signed-in state and the display currency.
type Session interface {
	intake.CurrencySource
	ChangeCurrency(code string) error
	SignedIn() bool
	Token() string
}

// Services are the long-lived client components the server exposes.
// Scanner, Listener and OCR in Intake are shared by every draft.
type Services struct {
	Rates   *currency.Engine
	Session Session
	Backend Backend
	Bus     *events.Bus
	Intake  intake.Deps
	Logger  *zap.Logger
}

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	svc    Services
	logger *zap.Logger
	wsHub  *WSHub
	relay  *relay
	cron   *cron.Cron

	mu     sync.Mutex
	drafts map[string]*intake.Form
}

// NewServer creates a configured API server with all routes and middleware.
// Client events start flowing to WebSocket clients immediately.
func NewServer(cfg *config.Config, svc Services) (*Server, error) {
	if svc.Rates == nil || svc.Session == nil || svc.Backend == nil {
		return nil, errors.New("api: rates, session and backend are required")
	}
	logger := infra.OrNop(svc.Logger).Named("api")

	srv := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		wsHub:  NewWSHub(logger),
		drafts: make(map[string]*intake.Form),
	}
	rl, err := newRelay(svc.Bus, srv.wsHub)
	if err != nil {
		return nil, err
	}
	srv.relay = rl

	if spec := cfg.Rates.RefreshCron; spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, srv.refreshRates); err != nil {
			rl.close()
			return nil, err
		}
		srv.cron = c
	}

	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// Run starts background work: the WebSocket hub and the rate refresh
// schedule. It returns when ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	if s.cron != nil {
		s.cron.Start()
		defer func() { <-s.cron.Stop().Done() }()
	}
	s.wsHub.Run(ctx)
}

// Close drops every draft and detaches from the event bus.
func (s *Server) Close() {
	s.relay.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.drafts {
		f.Close()
		delete(s.drafts, id)
	}
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Close()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	s.logger.Info("shutting down server")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// The WebSocket must not sit behind the request timeout.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Rates and currency
			r.Get("/rates", s.handleRates)
			r.Post("/rates/refresh", s.handleRefreshRates)
			r.Get("/currencies", s.handleCurrencies)
			r.Get("/price", s.handlePrice)
			r.Put("/currency", s.handleSetCurrency)

			// Configuration
			r.Get("/config", s.handleGetConfig)
			r.Get("/config/keys", s.handleGetConfigKeys)

			// Drafts
			r.Post("/drafts", s.handleCreateDraft)
			r.Route("/drafts/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDraft)
				r.Patch("/", s.handlePatchDraft)
				r.Delete("/", s.handleDeleteDraft)
				r.Post("/barcode", s.handleDraftBarcode)
				r.Post("/scan", s.handleDraftScan)
				r.Post("/predict", s.handleDraftPredict)
				r.Post("/voice", s.handleDraftVoice)
				r.Post("/label", s.handleDraftLabel)
				r.Post("/submit", s.handleDraftSubmit)
			})

			// Backend listings
			r.Get("/products", s.handleProducts)
			r.Get("/plans", s.handlePlans)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) refreshRates() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res := s.svc.Rates.Refresh(ctx)
	s.logger.Info("scheduled rate refresh", zap.String("source", string(res.Source)))
}

// ============================================================
// Response helpers
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"` // notice kind for intake failures
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeNotice renders an intake failure. Anything that is not a notice is
// an internal error.
func writeNotice(w http.ResponseWriter, err error) {
	n, ok := intake.AsNotice(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, noticeStatus(n.Kind), APIResponse{
		Success: false,
		Error:   n.Message,
		Kind:    string(n.Kind),
	})
}

func noticeStatus(k intake.NoticeKind) int {
	switch k {
	case intake.KindValidation:
		return http.StatusBadRequest
	case intake.KindCapability:
		return http.StatusNotImplemented
	case intake.KindDegraded:
		return http.StatusUnprocessableEntity
	case intake.KindSession:
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}
