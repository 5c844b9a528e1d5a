package provider

import "fmt"

// ErrorCode classifies backend failures.
type ErrorCode string

const (
	ErrCodeAuthFailed         ErrorCode = "AUTH_FAILED"         // Invalid or expired credentials
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"        // Too many requests
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // Backend temporarily unavailable
	ErrCodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"     // Requested model not found
	ErrCodeNetworkError       ErrorCode = "NETWORK_ERROR"       // Network connectivity issues
	ErrCodeTimeout            ErrorCode = "TIMEOUT"             // Request timeout
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"     // Malformed request
	ErrCodeUnknown            ErrorCode = "UNKNOWN"             // Unclassified error
)

// GenerationError reports a failure that happened before any output chunk
// was produced. Callers can surface it as a whole-turn failure; once chunks
// have started flowing, failures travel in-band instead.
type GenerationError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Backend   string    `json:"backend"`
	Retryable bool      `json:"retryable"`
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Backend, e.Code, e.Message)
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(code ErrorCode, message, backend string, retryable bool) *GenerationError {
	return &GenerationError{
		Code:      code,
		Message:   message,
		Backend:   backend,
		Retryable: retryable,
	}
}
