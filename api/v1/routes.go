package v1

import (
	"net/http"

	"github.com/gorilla/mux"

	"freqgate/internal/config"
	"freqgate/internal/dispatch"
	"freqgate/internal/gateway/handlers"
	"freqgate/internal/storage"
	"freqgate/internal/stream"
)

// RouterDeps holds dependencies for the v1 API router.
type RouterDeps struct {
	Dispatcher *dispatch.Dispatcher
	Streams    *stream.Manager
	DB         *storage.DB // nil in degraded mode
	Config     *config.Config
	Version    string
}

// Router wraps v1 API dependencies.
type Router struct {
	dispatcher *dispatch.Dispatcher
	streams    *stream.Manager
	db         *storage.DB
	config     *config.Config
	version    string
}

// NewRouter creates a new v1 API router.
func NewRouter(deps *RouterDeps) *Router {
	if deps == nil {
		deps = &RouterDeps{}
	}
	return &Router{
		dispatcher: deps.Dispatcher,
		streams:    deps.Streams,
		db:         deps.DB,
		config:     deps.Config,
		version:    deps.Version,
	}
}

// RegisterRoutes registers all v1 API routes.
func (r *Router) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Health
	degraded := r.streams != nil && r.streams.Degraded()
	v1.HandleFunc("/health", handlers.HealthHandler(r.version, degraded)).Methods(http.MethodGet)

	// Chat
	v1.HandleFunc("/chat", r.HandleChat).Methods(http.MethodPost)
	v1.HandleFunc("/chat/stream", r.HandleChatStream).Methods(http.MethodPost)
	v1.HandleFunc("/chat/resume", r.HandleChatResume).Methods(http.MethodGet)

	// History
	v1.HandleFunc("/chats/{id}/messages", r.HandleGetMessages).Methods(http.MethodGet)

	// Models
	v1.HandleFunc("/models", r.HandleListModels).Methods(http.MethodGet)
}
