package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/stake_leveling/internal/infrastructure/metrics"
	"github.com/vitos/stake_leveling/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   chi.Router
	server   *http.Server
	registry *usecase.AccountRegistry
	trades   *usecase.TradeService
	hub      *Hub
	logger   *zap.Logger
}

func NewServer(
	port int,
	registry *usecase.AccountRegistry,
	trades *usecase.TradeService,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		router:   chi.NewRouter(),
		registry: registry,
		trades:   trades,
		hub:      hub,
		logger:   logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.instrument)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         60 * 15,
	}))

	// Status
	s.router.Get("/", s.handleStatus)
	s.router.Get("/status", s.handleStatus)

	// Staking
	s.router.Get("/stake", s.handleNextStake)
	s.router.Post("/result", s.handleProcessResult)
	s.router.Get("/accounts", s.handleAccounts)

	s.router.Route("/management", func(r chi.Router) {
		r.Get("/", s.handleGetState)
		r.Post("/reset", s.handleReset)
	})

	// Trades
	s.router.Route("/trades", func(r chi.Router) {
		r.Get("/", s.handleListTrades)
		r.Delete("/", s.handleResetTrades)
		r.Post("/settle", s.handleSettle)
		r.Get("/stats", s.handleTradeStats)
	})

	// Live snapshots
	s.router.Get("/ws/management", s.hub.Handler(s.registry))

	s.router.Handle("/metrics", promhttp.Handler())
}

// instrument counts requests by route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.HttpRequests.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}
