// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	v1 "mindrian/api/v1"
	"mindrian/internal/config"
	"mindrian/internal/gateway/handlers"
	"mindrian/internal/gateway/middleware"
	"mindrian/internal/gateway/websocket"
	"mindrian/pkg/logger"
)

// Deps are the components mounted on the gateway.
type Deps struct {
	API       *v1.RouterDeps
	Retention handlers.Sweeper
	Version   string
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	config      *config.Config
	rateLimiter *middleware.RateLimiter
	apiRouter   *v1.Router

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a new gateway server and registers its routes.
func NewServer(cfg *config.Config, hub *websocket.Hub, deps Deps) *Server {
	router := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		Burst:             cfg.Gateway.RateLimit.Burst,
		Enabled:           cfg.Gateway.RateLimit.Enabled,
		CleanupInterval:   cfg.Gateway.RateLimit.CleanupInterval,
	})

	versionConfig := middleware.DefaultVersionConfig()
	if cfg.Gateway.APIVersion != "" {
		versionConfig.CurrentVersion = cfg.Gateway.APIVersion
	}

	// Recovery -> Logging -> CORS -> RateLimit -> Version
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORSWithOrigins(cfg.Gateway.AllowedOrigins)(
				rateLimiter.RateLimit(
					middleware.Version(versionConfig)(router),
				),
			),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      0, // SSE streams are bounded by the request context
			IdleTimeout:       120 * time.Second,
		},
		router:      router,
		hub:         hub,
		config:      cfg,
		rateLimiter: rateLimiter,
		apiRouter:   v1.NewRouter(deps.API),
	}
	s.setupRoutes(deps)
	return s
}

func (s *Server) setupRoutes(deps Deps) {
	s.router.HandleFunc("/health", handlers.HealthHandler(s.config.Agent.Name, deps.Version)).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	if deps.Retention != nil {
		handlers.NewRetentionHandler(deps.Retention).RegisterRoutes(s.router)
	}

	s.apiRouter.RegisterRoutes(s.router)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	go s.hub.Run()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	s.rateLimiter.Stop()
	s.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
