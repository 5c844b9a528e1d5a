// Package v1 provides API v1 data types and handlers.
package v1

// Error codes for API responses.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGenerationError    = "GENERATION_ERROR"
)

// ChatRequest represents a chat turn request.
type ChatRequest struct {
	ChatID  string `json:"chat_id,omitempty"` // Optional, auto-created if empty
	Message string `json:"message"`           // Required
	Model   string `json:"model,omitempty"`   // Optional logical model selector
}

// ChatResponse represents a collected (non-streaming) chat response.
type ChatResponse struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

// ChatStreamEvent represents one SSE frame of a streamed answer.
type ChatStreamEvent struct {
	Type   string `json:"type"` // "content", "done", "error"
	Seq    int    `json:"seq,omitempty"`
	Delta  string `json:"delta,omitempty"`
	ChatID string `json:"chat_id,omitempty"` // set on the done frame
	Error  string `json:"error,omitempty"`
}

// MessageView is one persisted chat message.
type MessageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ModelsResponse lists the configured model selectors.
type ModelsResponse struct {
	Default string            `json:"default"`
	Models  map[string]string `json:"models,omitempty"`
}
