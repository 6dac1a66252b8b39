// Package server assembles the orchestrator, its stores and the HTTP gateway
// into one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	v1 "mindrian/api/v1"
	"mindrian/internal/backend"
	"mindrian/internal/backend/anthropic"
	"mindrian/internal/config"
	"mindrian/internal/confirm"
	"mindrian/internal/gateway"
	"mindrian/internal/gateway/websocket"
	"mindrian/internal/history"
	"mindrian/internal/orchestrator"
	"mindrian/internal/retention"
	"mindrian/internal/session"
	"mindrian/internal/storage"
	"mindrian/internal/tools"
	"mindrian/internal/tools/workspace"
	"mindrian/pkg/logger"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 10 * time.Second
)

// Server is the in-process mindrian server.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	db          *storage.DB
	sessions    *session.Store
	coord       *confirm.Coordinator
	orch        *orchestrator.Orchestrator
	confirmable *confirm.ToolSet
	hub         *websocket.Hub
	gateway     *gateway.Server
	janitor     *retention.Janitor
	watcher     *config.Watcher
	listener    net.Listener

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	errChan   chan error
}

// ServerConfig holds configuration for the server.
type ServerConfig struct {
	Config *config.Config
	// ConfigPath enables hot reload of log.level and confirmation.tools.
	ConfigPath string
	Version    string
	Logger     zerolog.Logger
	// Backend replaces the Anthropic backend.
	Backend backend.Backend
	// Listener replaces the configured gateway host and port.
	Listener net.Listener
}

// NewServer wires every component. Nothing runs until Start.
func NewServer(sc ServerConfig) (*Server, error) {
	cfg := sc.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	dbPath, err := storagePath(cfg)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   sc.Logger,
		db:       db,
		listener: sc.Listener,
		errChan:  make(chan error, 1),
	}
	if err := s.initialize(sc); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize(sc ServerConfig) error {
	cfg := s.cfg

	s.sessions = session.NewStore(
		session.WithPersister(s.db),
		session.WithQueueSize(cfg.Agent.QueueSize),
	)

	registry := tools.NewRegistry()
	client := workspace.NewClient(workspace.Config{
		BaseURL: cfg.Workspace.BaseURL,
		Timeout: cfg.Workspace.GetTimeout(),
	})
	if err := workspace.Register(registry, client); err != nil {
		return fmt.Errorf("register workspace tools: %w", err)
	}

	be := sc.Backend
	if be == nil {
		ab, err := s.anthropicBackend(registry)
		if err != nil {
			return err
		}
		be = ab
	}

	s.hub = websocket.NewHub()
	s.coord = confirm.NewCoordinator(s.sessions, &confirm.Config{
		Timeout:    cfg.Confirmation.GetTimeout(),
		MaxPending: cfg.Confirmation.MaxPending,
		Notifier:   confirm.NewBroadcastNotifier(s.hub),
		Audit:      confirm.NewStoreAudit(s.db),
	})
	s.hub.SetConfirmationHandler(s.coord.Resolve)

	s.confirmable = confirm.NewToolSet(cfg.Confirmation.Tools...)

	orch, err := orchestrator.New(orchestrator.Config{
		Sessions:    s.sessions,
		Backend:     be,
		Coordinator: s.coord,
		History:     history.New(s.sessions, history.WithResearchBudget(cfg.Delegates.ResearchBudget)),
		Confirmable: s.confirmable,
		Runs:        s.db,
	})
	if err != nil {
		return err
	}
	s.orch = orch

	deps := gateway.Deps{
		API: &v1.RouterDeps{
			Orchestrator: orch,
			Sessions:     s.sessions,
			Coordinator:  s.coord,
			Runs:         s.db,
			Tools:        registry,
			Confirmable:  s.confirmable,
			AgentName:    cfg.Agent.Name,
		},
		Version: sc.Version,
	}

	if cfg.Retention.Enabled {
		janitor, err := retention.New(s.db, retention.Config{
			Schedule: cfg.Retention.Schedule,
			MaxAge:   cfg.Retention.GetMaxAge(),
		})
		if err != nil {
			return err
		}
		s.janitor = janitor
		deps.Retention = janitor
	}

	s.gateway = gateway.NewServer(cfg, s.hub, deps)

	if sc.ConfigPath != "" {
		w, err := config.NewWatcher(sc.ConfigPath)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Config hot reload disabled")
		} else {
			w.OnReload(s.applyConfig)
			s.watcher = w
		}
	}
	return nil
}

func (s *Server) anthropicBackend(registry *tools.Registry) (*anthropic.Backend, error) {
	cfg := s.cfg
	apiKey := cfg.Anthropic.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return anthropic.NewFromAPIKey(apiKey, cfg.Anthropic.BaseURL, anthropic.Config{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		MaxTurns:      cfg.Anthropic.MaxTurns,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Tools:         registry,
		Delegates:     delegates(cfg.Delegates),
		Transcripts:   s.db,
		TranscriptTTL: cfg.Retention.GetMaxAge(),
	})
}

// applyConfig hot-applies the settings that are safe to change live.
func (s *Server) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.Log.Level)
	s.confirmable.Replace(cfg.Confirmation.Tools)
	s.logger.Info().
		Str("log_level", cfg.Log.Level).
		Strs("confirmable_tools", s.confirmable.Names()).
		Msg("Configuration reloaded")
}

// ErrorChan returns the error channel for monitoring server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Start starts background jobs and the gateway, and waits until the gateway
// is accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ln := s.listener
	if ln == nil {
		addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	}

	if s.janitor != nil {
		if err := s.janitor.Start(); err != nil {
			ln.Close()
			return err
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to watch config file")
		}
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	go func() {
		if err := s.gateway.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("Server error")
			s.errChan <- err
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	timeout := time.After(startTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			return errors.New("server start timeout")
		case err := <-s.errChan:
			return fmt.Errorf("server start failed: %w", err)
		case <-ticker.C:
			if s.IsReady() {
				s.logger.Info().
					Str("address", "http://"+s.gateway.Addr().String()).
					Str("agent", s.cfg.Agent.Name).
					Msg("Server started")
				return nil
			}
		}
	}
}

// Stop cancels active runs, denies pending confirmations, drains the
// gateway and closes the database.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping server")

	if s.watcher != nil {
		s.watcher.Stop()
	}

	s.orch.Shutdown()
	s.coord.Close()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var errs []error
	if err := s.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.janitor != nil {
		select {
		case <-s.janitor.Stop().Done():
		case <-ctx.Done():
			s.logger.Warn().Msg("Retention sweep still running at shutdown")
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Server stopped")
	return errors.Join(errs...)
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IsReady reports whether the gateway is accepting connections.
func (s *Server) IsReady() bool {
	return s.IsRunning() && s.gateway.Addr() != nil
}

// Addr returns the gateway address once it is listening.
func (s *Server) Addr() net.Addr {
	return s.gateway.Addr()
}

// GetStartedAt returns when the server started.
func (s *Server) GetStartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

func storagePath(cfg *config.Config) (string, error) {
	path := cfg.Storage.Path
	if path == "" {
		p, err := config.DefaultDataPath()
		if err != nil {
			return "", fmt.Errorf("resolve data path: %w", err)
		}
		path = p
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return path, nil
}
