// Package dispatch routes an incoming chat turn to either the command
// processor or the generation pipeline and returns one chunk sequence
// either way.
package dispatch

import (
	"context"
	"errors"

	"freqgate/internal/command"
	"freqgate/internal/provider"
	"freqgate/internal/storage"
	"freqgate/internal/stream"
	"freqgate/pkg/logger"
)

// MessageStore persists chat history. Implemented by *storage.DB; may be
// absent (degraded mode: no history, no resumption).
type MessageStore interface {
	SaveMessage(chatID, role, content string) (*storage.Message, error)
	MessagesByChat(chatID string, limit int) ([]storage.Message, error)
}

// Turn is one incoming user message.
type Turn struct {
	ChatID string
	Text   string
	Model  string // logical selector; empty means the configured default
}

// Dispatcher is the per-turn orchestrator. Slash commands are executed
// synchronously and answered with a single terminal chunk; everything else
// becomes a generation turn whose production outlives the request that
// started it.
type Dispatcher struct {
	executor     *command.Executor
	bridge       *provider.Bridge
	streams      *stream.Manager
	store        MessageStore
	historyLimit int
}

// New creates a Dispatcher. store may be nil.
func New(executor *command.Executor, bridge *provider.Bridge, streams *stream.Manager, store MessageStore, historyLimit int) *Dispatcher {
	return &Dispatcher{
		executor:     executor,
		bridge:       bridge,
		streams:      streams,
		store:        store,
		historyLimit: historyLimit,
	}
}

// Handle processes one turn and returns its chunk sequence. Failures that
// belong to the conversation (command errors, generation failures) travel
// in-band as chunks, never as a returned error; the returned error is
// reserved for infrastructure faults such as a broken store.
func (d *Dispatcher) Handle(ctx context.Context, t Turn) (<-chan stream.Chunk, error) {
	if cmd, ok := command.Parse(t.Text); ok {
		res := d.executor.Execute(ctx, cmd)
		logger.Debug().Str("command", cmd.Name).Bool("ok", res.OK).Msg("Command executed")
		return stream.Single(res.Message), nil
	}

	return d.generate(ctx, t)
}

func (d *Dispatcher) generate(ctx context.Context, t Turn) (<-chan stream.Chunk, error) {
	if d.store != nil {
		if _, err := d.store.SaveMessage(t.ChatID, storage.RoleUser, t.Text); err != nil {
			return nil, err
		}
	}

	history, err := d.history(t)
	if err != nil {
		return nil, err
	}

	handle, err := d.streams.Begin(t.ChatID)
	if err != nil {
		return nil, err
	}

	onComplete := func(full string) {
		if d.store == nil {
			return
		}
		if _, err := d.store.SaveMessage(t.ChatID, storage.RoleAssistant, full); err != nil {
			logger.Error().Err(err).Str("chat_id", t.ChatID).Msg("Failed to persist assistant message")
		}
	}

	// Production must survive the originating request: a client that
	// disconnects mid-answer reconnects via resume and expects the full
	// text. Only delivery is tied to ctx.
	producer, err := d.bridge.Generate(context.WithoutCancel(ctx), t.Model, history, onComplete)
	if err != nil {
		var ge *provider.GenerationError
		if errors.As(err, &ge) {
			logger.Warn().Str("code", string(ge.Code)).Str("chat_id", t.ChatID).Msg("Generation refused")
			return stream.Fault(generationFailureMessage(ge)), nil
		}
		return nil, err
	}

	return d.streams.Attach(ctx, handle, producer), nil
}

// history assembles the model input for a turn. Without a store only the
// current message is available.
func (d *Dispatcher) history(t Turn) ([]provider.Message, error) {
	if d.store == nil {
		return []provider.Message{{Role: provider.RoleUser, Content: t.Text}}, nil
	}

	msgs, err := d.store.MessagesByChat(t.ChatID, d.historyLimit)
	if err != nil {
		return nil, err
	}

	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func generationFailureMessage(ge *provider.GenerationError) string {
	switch ge.Code {
	case provider.ErrCodeAuthFailed:
		return "The language model rejected the configured credentials. Check the API key."
	case provider.ErrCodeModelNotFound:
		return "The requested model is not available on the backend."
	case provider.ErrCodeRateLimited:
		return "The language model is rate limiting requests. Try again in a moment."
	default:
		return "The language model service is unavailable. Try again in a moment."
	}
}
