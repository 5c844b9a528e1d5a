// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	v1 "freqgate/api/v1"
	"freqgate/internal/config"
	"freqgate/internal/dispatch"
	"freqgate/internal/gateway/handlers"
	"freqgate/internal/gateway/middleware"
	"freqgate/internal/gateway/websocket"
	"freqgate/internal/storage"
	"freqgate/internal/stream"
	"freqgate/pkg/logger"
)

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	watcher     *Watcher
	config      *config.Config
	db          *storage.DB
	dispatcher  *dispatch.Dispatcher
	streams     *stream.Manager
	rateLimiter *middleware.RateLimiter
	apiRouter   *v1.Router
	version     string
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, hub *websocket.Hub, db *storage.DB, dispatcher *dispatch.Dispatcher, streams *stream.Manager, version string) *Server {
	router := mux.NewRouter()

	rlConfig := middleware.RateLimiterConfig{
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		Burst:             cfg.Gateway.RateLimit.Burst,
		Enabled:           cfg.Gateway.RateLimit.Enabled,
		CleanupInterval:   cfg.Gateway.RateLimit.CleanupInterval,
	}
	if rlConfig.RequestsPerMinute == 0 {
		rlConfig.RequestsPerMinute = 60
	}
	if rlConfig.Burst == 0 {
		rlConfig.Burst = 10
	}
	if rlConfig.CleanupInterval == 0 {
		rlConfig.CleanupInterval = 5 * time.Minute
	}
	rateLimiter := middleware.NewRateLimiter(rlConfig)

	// Middleware chain: Recovery -> Logging -> CORS -> RateLimit
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				rateLimiter.RateLimit(router),
			),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 0, // Disable write timeout for SSE streaming (handled by request context)
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         hub,
		config:      cfg,
		db:          db,
		dispatcher:  dispatcher,
		streams:     streams,
		rateLimiter: rateLimiter,
		version:     version,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes() {
	s.apiRouter = v1.NewRouter(&v1.RouterDeps{
		Dispatcher: s.dispatcher,
		Streams:    s.streams,
		DB:         s.db,
		Config:     s.config,
		Version:    s.version,
	})
	s.apiRouter.RegisterRoutes(s.router)

	// WebSocket endpoint
	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	// Chat messages arriving over WebSocket go through the same dispatcher
	// as HTTP turns; chunks are serialized as WSMessages.
	s.hub.SetChatHandler(s.handleWebSocketChat)
}

// handleWebSocketChat runs a chat turn and serializes its chunks for a
// WebSocket client.
func (s *Server) handleWebSocketChat(chatID, message, model string) (<-chan []byte, error) {
	if s.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher not available")
	}

	chunks, err := s.dispatcher.Handle(context.Background(), dispatch.Turn{
		ChatID: chatID,
		Text:   message,
		Model:  model,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		for chunk := range chunks {
			msg := websocket.WSMessage{
				Type:  websocket.TypeChunk,
				Chat:  chatID,
				Seq:   chunk.Seq,
				Delta: chunk.Delta,
				Final: chunk.Final,
			}
			if chunk.Err != "" {
				msg.Type = websocket.TypeError
				msg.Message = chunk.Err
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			out <- data
		}
	}()

	return out, nil
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	handlers.InitStartTime()

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)
	s.httpServer.Addr = addr

	go s.hub.Run()

	logger.Info().
		Str("addr", addr).
		Bool("degraded", s.streams != nil && s.streams.Degraded()).
		Msg("Starting gateway server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}

// SetWatcher sets the config file watcher for hot reload.
func (s *Server) SetWatcher(w *Watcher) {
	s.watcher = w
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}
