// Package server wires configuration, storage, the command executor, the
// LLM bridge and the gateway into one runnable unit.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"freqgate/internal/command"
	"freqgate/internal/config"
	"freqgate/internal/dispatch"
	"freqgate/internal/gateway"
	"freqgate/internal/gateway/websocket"
	"freqgate/internal/httpx"
	"freqgate/internal/provider"
	"freqgate/internal/provider/openai"
	"freqgate/internal/storage"
	"freqgate/internal/stream"
	"freqgate/pkg/logger"
)

// Server runs the whole gateway in-process.
type Server struct {
	cfg           *config.Config
	configPath    string
	version       string
	db            *storage.DB
	streams       *stream.Manager
	gatewayServer *gateway.Server

	running bool
	mu      sync.RWMutex
	errChan chan error
}

// ServerConfig holds bootstrap parameters. Host and Port, when set,
// override the values loaded from the config file.
type ServerConfig struct {
	ConfigPath string
	Version    string
	Host       string
	Port       int
}

// NewServer loads configuration and prepares a server instance.
func NewServer(scfg ServerConfig) (*Server, error) {
	cfg, err := config.Load(scfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if scfg.Host != "" {
		cfg.Gateway.Host = scfg.Host
	}
	if scfg.Port > 0 {
		cfg.Gateway.Port = scfg.Port
	}

	return &Server{
		cfg:        cfg,
		configPath: scfg.ConfigPath,
		version:    scfg.Version,
		errChan:    make(chan error, 1),
	}, nil
}

// ErrorChan returns the channel that surfaces fatal server errors.
func (s *Server) ErrorChan() <-chan error {
	return s.errChan
}

// Start assembles the component graph and starts serving. It returns once
// the HTTP listener is up; the listener itself runs in a goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Storage is optional: a missing or broken store degrades the service
	// to passthrough streaming instead of refusing to start.
	var db *storage.DB
	if s.cfg.Storage.Path != "" {
		var err error
		db, err = storage.Open(s.cfg.Storage.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", s.cfg.Storage.Path).
				Msg("Storage unavailable, running degraded (no history, no resume)")
			db = nil
		}
	} else {
		logger.Warn().Msg("No storage path configured, running degraded (no history, no resume)")
	}
	s.db = db

	client := httpx.New(
		httpx.WithMaxAttempts(s.cfg.Retry.MaxAttempts),
		httpx.WithBaseDelay(s.cfg.Retry.BaseDelay),
		httpx.WithTimeout(s.cfg.Retry.Timeout),
	)

	executor := command.NewExecutor(client, s.cfg.Controller)
	bridge := provider.NewBridge(openai.New(s.cfg.LLM), s.cfg.LLM)

	var streamStore stream.Store
	var messageStore dispatch.MessageStore
	if db != nil {
		streamStore = db
		messageStore = db
	}
	streams := stream.NewManager(streamStore, s.cfg.Resume)
	if err := streams.StartJanitor(); err != nil {
		return fmt.Errorf("failed to start stream janitor: %w", err)
	}
	s.streams = streams

	dispatcher := dispatch.New(executor, bridge, streams, messageStore, s.cfg.LLM.HistoryLimit)

	hub := websocket.NewHub()
	s.gatewayServer = gateway.NewServer(s.cfg, hub, db, dispatcher, streams, s.version)

	if s.configPath != "" {
		if watcher, err := gateway.NewWatcher(hub, s.reloadConfig, s.configPath); err != nil {
			logger.Warn().Err(err).Msg("Config watcher unavailable")
		} else if err := watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start config watcher")
		} else {
			s.gatewayServer.SetWatcher(watcher)
		}
	}

	go func() {
		if err := s.gatewayServer.Start(); err != nil {
			s.errChan <- err
		}
	}()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	logger.Info().Str("version", s.version).Msg("Server started")
	return nil
}

// reloadConfig re-reads the config file and applies the settings that can
// change at runtime (currently the log level).
func (s *Server) reloadConfig(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Config reload failed")
		return
	}

	if cfg.Log.Level != s.cfg.Log.Level {
		logger.SetLevel(cfg.Log.Level)
		logger.Info().Str("level", cfg.Log.Level).Msg("Log level updated")
		s.cfg.Log.Level = cfg.Log.Level
	}
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	logger.Info().Msg("Stopping server")

	if s.streams != nil {
		s.streams.StopJanitor()
	}

	if s.gatewayServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.gatewayServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Error during gateway shutdown")
		}
	}

	if s.db != nil {
		s.db.Close()
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// IsRunning reports whether the server has been started.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
