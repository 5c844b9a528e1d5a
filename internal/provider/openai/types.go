// Package openai implements the Backend interface for any OpenAI-compatible
// chat completions API (hosted gateways and local servers alike).
package openai

import "time"

// Default configuration values.
const (
	DefaultEndpoint  = "http://localhost:8000/v1"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 5 * time.Minute
)

// --- OpenAI-compatible wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

type chatErrorResponse struct {
	Error *chatErrorInfo `json:"error,omitempty"`
}

// chatStreamChunk represents a streaming response chunk (SSE).
type chatStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []chatStreamChoice `json:"choices"`
	Error   *chatErrorInfo     `json:"error,omitempty"`
}

type chatStreamChoice struct {
	Index        int             `json:"index"`
	Delta        chatStreamDelta `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type chatStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
