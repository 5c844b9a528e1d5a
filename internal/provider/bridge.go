package provider

import (
	"context"
	"strings"

	"freqgate/internal/config"
	"freqgate/internal/stream"
	"freqgate/pkg/logger"
)

// Bridge adapts a streaming Backend to the resumable chunk format. It owns
// model selection, the system prompt, and the completion callback that fires
// exactly once when a generation finishes cleanly.
type Bridge struct {
	backend      Backend
	models       map[string]string
	defaultModel string
	systemPrompt string
}

// NewBridge creates a Bridge over the given backend.
func NewBridge(backend Backend, cfg config.LLMConfig) *Bridge {
	return &Bridge{
		backend:      backend,
		models:       cfg.Models,
		defaultModel: cfg.DefaultModel,
		systemPrompt: cfg.SystemPrompt,
	}
}

// ResolveModel maps a logical model selector to a backend model id. Unknown
// selectors pass through unchanged so callers can address backend models
// directly; an empty selector resolves to the configured default.
func (b *Bridge) ResolveModel(selector string) string {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return b.defaultModel
	}
	if id, ok := b.models[selector]; ok {
		return id
	}
	return selector
}

// Generate starts a generation turn and returns its chunk sequence.
//
// A failure before the first chunk is returned as a *GenerationError and no
// channel is produced. Once streaming has begun, a backend failure is
// delivered in-band as a terminal error chunk and onComplete is NOT called.
// On clean completion onComplete fires exactly once with the full
// accumulated text, after the last content chunk and before the channel
// closes.
func (b *Bridge) Generate(ctx context.Context, selector string, history []Message, onComplete func(full string)) (<-chan stream.Chunk, error) {
	model := b.ResolveModel(selector)

	messages := make([]Message, 0, len(history)+1)
	if b.systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: b.systemPrompt})
	}
	messages = append(messages, history...)

	events, err := b.backend.Stream(ctx, ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan stream.Chunk, 32)
	go func() {
		defer close(out)

		var full strings.Builder
		seq := 0

		for ev := range events {
			switch ev.Type {
			case EventTypeContent:
				if ev.Delta == "" {
					continue
				}
				full.WriteString(ev.Delta)
				out <- stream.Chunk{Seq: seq, Delta: ev.Delta}
				seq++

			case EventTypeDone:
				if onComplete != nil {
					onComplete(full.String())
					onComplete = nil
				}
				out <- stream.Chunk{Seq: seq, Final: true}
				go drainEvents(events)
				return

			case EventTypeError:
				msg := "generation failed"
				if ev.Error != nil {
					msg = ev.Error.Error()
				}
				logger.Warn().Str("model", model).Str("error", msg).Msg("Generation failed mid-stream")
				out <- stream.Chunk{Seq: seq, Err: msg, Final: true}
				go drainEvents(events)
				return
			}
		}

		// Backend closed without a done event. Treat the turn as failed so
		// a truncated answer is never persisted as complete.
		logger.Warn().Str("model", model).Msg("Backend stream ended without completion")
		out <- stream.Chunk{Seq: seq, Err: "stream ended unexpectedly", Final: true}
	}()

	return out, nil
}

// drainEvents discards events remaining after a terminal frame so the backend's
// producer goroutine can finish and release the response body. Some backends
// keep sending frames after finish_reason.
func drainEvents(events <-chan ChatEvent) {
	for range events {
	}
}
