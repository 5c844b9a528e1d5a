package provider

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatEvent represents a streaming chat event.
type ChatEvent struct {
	Type         string `json:"type"` // content, done, error
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"` // stop, length
	Error        error  `json:"-"`
}

// Event types.
const (
	EventTypeContent = "content"
	EventTypeDone    = "done"
	EventTypeError   = "error"
)

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
