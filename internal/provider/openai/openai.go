package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"freqgate/internal/config"
	"freqgate/internal/provider"
	"freqgate/pkg/logger"
)

// Compile-time interface check.
var _ provider.Backend = (*Client)(nil)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey    string
	endpoint  string
	maxTokens int

	// streamClient has NO overall timeout: http.Client.Timeout includes
	// response body read time, which kills long-running SSE streams.
	// Transport-level timeouts cover connection setup and first headers.
	streamClient *http.Client
}

// New creates a Client from LLM configuration.
func New(cfg config.LLMConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	// Strip trailing /v1 to avoid path duplication (/v1/v1/chat/completions)
	normalized := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	normalized = strings.TrimSuffix(normalized, "/v1")

	return &Client{
		apiKey:    cfg.APIKey,
		endpoint:  normalized,
		maxTokens: DefaultMaxTokens,
		streamClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "openai"
}

// Stream sends a streaming chat request and returns the decoded events.
func (c *Client) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	chatReq := c.buildRequest(req)

	logger.Debug().Str("model", chatReq.Model).
		Int("message_count", len(chatReq.Messages)).
		Msg("Chat completions stream request")

	resp, err := c.doStreamRequest(ctx, "/v1/chat/completions", chatReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	return ProcessStream(resp.Body), nil
}

func (c *Client) buildRequest(req provider.ChatRequest) *chatRequest {
	chatReq := &chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
		Stream:   true,
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	chatReq.MaxTokens = maxTokens

	if req.Temperature > 0 {
		temp := req.Temperature
		chatReq.Temperature = &temp
	}

	for _, msg := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return chatReq
}

func (c *Client) doStreamRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, provider.NewGenerationError(provider.ErrCodeTimeout, err.Error(), c.Name(), true)
		}
		return nil, provider.NewGenerationError(provider.ErrCodeNetworkError, err.Error(), c.Name(), true)
	}

	return resp, nil
}

// handleErrorResponse converts an HTTP error response into a GenerationError.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var errResp chatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = errResp.Error.Message
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return provider.NewGenerationError(provider.ErrCodeAuthFailed, message, c.Name(), false)
	case statusCode == http.StatusNotFound:
		return provider.NewGenerationError(provider.ErrCodeModelNotFound, message, c.Name(), false)
	case statusCode == http.StatusTooManyRequests:
		return provider.NewGenerationError(provider.ErrCodeRateLimited, message, c.Name(), true)
	case statusCode >= 500:
		return provider.NewGenerationError(provider.ErrCodeServiceUnavailable, message, c.Name(), true)
	case statusCode >= 400:
		return provider.NewGenerationError(provider.ErrCodeInvalidRequest, message, c.Name(), false)
	default:
		return provider.NewGenerationError(provider.ErrCodeUnknown, message, c.Name(), false)
	}
}
