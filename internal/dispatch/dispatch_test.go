package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freqgate/internal/command"
	"freqgate/internal/config"
	"freqgate/internal/httpx"
	"freqgate/internal/provider"
	"freqgate/internal/storage"
	"freqgate/internal/stream"
)

// memStore backs both the dispatcher and the stream manager in tests.
type memStore struct {
	messages []storage.Message
	streams  []storage.StreamRecord
}

func (s *memStore) SaveMessage(chatID, role, content string) (*storage.Message, error) {
	m := storage.Message{
		ID:        fmt.Sprintf("m%d", len(s.messages)),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) MessagesByChat(chatID string, limit int) ([]storage.Message, error) {
	var out []storage.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) CreateStream(id, chatID string, createdAt time.Time) error {
	s.streams = append(s.streams, storage.StreamRecord{ID: id, ChatID: chatID, CreatedAt: createdAt})
	return nil
}

func (s *memStore) StreamsByChat(chatID string) ([]storage.StreamRecord, error) {
	var out []storage.StreamRecord
	for _, r := range s.streams {
		if r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) LastMessage(chatID string) (*storage.Message, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ChatID == chatID {
			return &s.messages[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) DeleteStreamsBefore(time.Time) (int64, error) { return 0, nil }

// scriptedBackend replays events after an optional delay.
type scriptedBackend struct {
	events []provider.ChatEvent
	err    error
	gate   chan struct{} // if set, events flow only after it closes
}

func (f *scriptedBackend) Name() string { return "scripted" }

func (f *scriptedBackend) Stream(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan provider.ChatEvent)
	go func() {
		defer close(ch)
		if f.gate != nil {
			<-f.gate
		}
		for _, ev := range f.events {
			ch <- ev
		}
	}()
	return ch, nil
}

func newTestDispatcher(t *testing.T, store *memStore, backend provider.Backend) *Dispatcher {
	t.Helper()

	controller := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"started"}`)
	}))
	t.Cleanup(controller.Close)

	executor := command.NewExecutor(httpx.New(), config.ControllerConfig{URL: controller.URL, ProbeDelay: time.Millisecond})
	bridge := provider.NewBridge(backend, config.LLMConfig{DefaultModel: "m", SystemPrompt: "sp"})

	var mgrStore stream.Store
	var msgStore MessageStore
	if store != nil {
		mgrStore = store
		msgStore = store
	}
	streams := stream.NewManager(mgrStore, config.ResumeConfig{Window: 15 * time.Second, Retention: time.Hour})

	return New(executor, bridge, streams, msgStore, 50)
}

func drain(ch <-chan stream.Chunk) []stream.Chunk {
	var out []stream.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestHandle_CommandBypassesStreams(t *testing.T) {
	store := &memStore{}
	d := newTestDispatcher(t, store, &scriptedBackend{})

	ch, err := d.Handle(context.Background(), Turn{ChatID: "c1", Text: "/help"})
	require.NoError(t, err)

	chunks := drain(ch)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Final)
	assert.Contains(t, chunks[0].Delta, "/backtest")

	// Command turns leave no trace in history or stream handles.
	assert.Empty(t, store.messages)
	assert.Empty(t, store.streams)
}

func TestHandle_GenerationPersistsBothSides(t *testing.T) {
	store := &memStore{}
	backend := &scriptedBackend{events: []provider.ChatEvent{
		{Type: provider.EventTypeContent, Delta: "The answer"},
		{Type: provider.EventTypeDone},
	}}
	d := newTestDispatcher(t, store, backend)

	ch, err := d.Handle(context.Background(), Turn{ChatID: "c1", Text: "what is up"})
	require.NoError(t, err)

	chunks := drain(ch)
	require.Len(t, chunks, 2)
	assert.Equal(t, "The answer", chunks[0].Delta)

	require.Len(t, store.messages, 2)
	assert.Equal(t, storage.RoleUser, store.messages[0].Role)
	assert.Equal(t, "what is up", store.messages[0].Content)
	assert.Equal(t, storage.RoleAssistant, store.messages[1].Role)
	assert.Equal(t, "The answer", store.messages[1].Content)

	require.Len(t, store.streams, 1)
	assert.Equal(t, "c1", store.streams[0].ChatID)
}

func TestHandle_ProductionSurvivesDisconnect(t *testing.T) {
	store := &memStore{}
	gate := make(chan struct{})
	backend := &scriptedBackend{
		gate: gate,
		events: []provider.ChatEvent{
			{Type: provider.EventTypeContent, Delta: "full text"},
			{Type: provider.EventTypeDone},
		},
	}
	d := newTestDispatcher(t, store, backend)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := d.Handle(ctx, Turn{ChatID: "c1", Text: "slow question"})
	require.NoError(t, err)

	// Client goes away before any output arrives.
	cancel()
	drain(ch)

	// Generation finishes anyway and the answer is persisted.
	close(gate)
	require.Eventually(t, func() bool {
		last, err := store.LastMessage("c1")
		return err == nil && last.Role == storage.RoleAssistant
	}, 2*time.Second, 10*time.Millisecond)

	last, err := store.LastMessage("c1")
	require.NoError(t, err)
	assert.Equal(t, "full text", last.Content)
}

func TestHandle_PreStreamFailureIsInBand(t *testing.T) {
	backend := &scriptedBackend{
		err: provider.NewGenerationError(provider.ErrCodeServiceUnavailable, "down", "scripted", true),
	}
	d := newTestDispatcher(t, &memStore{}, backend)

	ch, err := d.Handle(context.Background(), Turn{ChatID: "c1", Text: "hello"})
	require.NoError(t, err, "generation failures must not surface as raw errors")

	chunks := drain(ch)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Final)
	assert.NotEmpty(t, chunks[0].Err)
}

func TestHandle_DegradedModeStillAnswers(t *testing.T) {
	backend := &scriptedBackend{events: []provider.ChatEvent{
		{Type: provider.EventTypeContent, Delta: "no store needed"},
		{Type: provider.EventTypeDone},
	}}
	d := newTestDispatcher(t, nil, backend)

	ch, err := d.Handle(context.Background(), Turn{ChatID: "c1", Text: "hi"})
	require.NoError(t, err)

	chunks := drain(ch)
	require.Len(t, chunks, 2)
	assert.Equal(t, "no store needed", chunks[0].Delta)
}
