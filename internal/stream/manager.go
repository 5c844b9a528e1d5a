package stream

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"freqgate/internal/config"
	"freqgate/internal/storage"
	"freqgate/pkg/logger"
)

// ErrNotFound indicates there is no stream handle to resume for the chat.
var ErrNotFound = errors.New("no stream to resume")

// Handle identifies one resumable output stream. Never mutated; superseded
// by a newer Handle on the chat's next turn.
type Handle struct {
	ID        string
	ChatID    string
	CreatedAt time.Time
}

// Store is the persistence backing for stream handles and final messages.
// Implemented by *storage.DB; may be absent (degraded mode).
type Store interface {
	CreateStream(id, chatID string, createdAt time.Time) error
	StreamsByChat(chatID string) ([]storage.StreamRecord, error)
	LastMessage(chatID string) (*storage.Message, error)
	DeleteStreamsBefore(cutoff time.Time) (int64, error)
}

// Manager owns the stream handle registry: in-memory catch-up buffers for
// live streams plus the persisted handle rows that make resumption work
// across connections. With no Store it degrades to plain passthrough.
type Manager struct {
	store     Store
	window    time.Duration
	retention time.Duration
	schedule  string

	buffers *registry
	janitor *cron.Cron
}

// NewManager creates a Manager. A nil store enables degraded mode: streams
// flow through untouched and Resume always reports not found.
func NewManager(store Store, cfg config.ResumeConfig) *Manager {
	m := &Manager{
		store:     store,
		window:    cfg.Window,
		retention: cfg.Retention,
		schedule:  cfg.JanitorSchedule,
		buffers:   newRegistry(),
	}
	if m.window == 0 {
		m.window = 15 * time.Second
	}
	if m.retention == 0 {
		m.retention = 24 * time.Hour
	}
	return m
}

// Degraded reports whether the manager runs without a backing store.
func (m *Manager) Degraded() bool {
	return m.store == nil
}

// Begin allocates and persists a new stream handle for a chat.
func (m *Manager) Begin(chatID string) (Handle, error) {
	h := Handle{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		CreatedAt: time.Now(),
	}

	if m.store != nil {
		if err := m.store.CreateStream(h.ID, h.ChatID, h.CreatedAt); err != nil {
			return Handle{}, err
		}
	}

	return h, nil
}

// Attach registers the producer's output against the handle and returns a
// consumer sequence. In degraded mode the producer sequence is returned
// directly, with no resumption capability. Otherwise the first Attach for a
// handle starts draining the producer into a catch-up buffer; every Attach
// (first or later, concurrent or delayed) observes the full chunk sequence
// from the handle's creation. Cancelling ctx stops delivery only, never
// production.
func (m *Manager) Attach(ctx context.Context, h Handle, producer <-chan Chunk) <-chan Chunk {
	if m.store == nil {
		return producer
	}

	buf, created := m.buffers.getOrCreate(h.ID)
	if created {
		go func() {
			for c := range producer {
				buf.append(c)
			}
			buf.close()
		}()
	}

	return buf.subscribe(ctx)
}

// Resume returns the chunk sequence for a chat's most recent stream. A live
// stream is re-joined with full catch-up. A completed stream is replayed as
// the final message, but only when requestedAt falls within the freshness
// window of that message; otherwise an empty sequence signals there is
// nothing left to deliver. Resume is a pure read: it never re-triggers
// generation.
func (m *Manager) Resume(ctx context.Context, chatID string, requestedAt time.Time) (<-chan Chunk, error) {
	if m.store == nil {
		return nil, ErrNotFound
	}

	records, err := m.store.StreamsByChat(chatID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	latest := records[len(records)-1]
	if buf, ok := m.buffers.get(latest.ID); ok && !buf.isDone() {
		return buf.subscribe(ctx), nil
	}

	last, err := m.store.LastMessage(chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Empty(), nil
		}
		return nil, err
	}

	if last.Role != storage.RoleAssistant {
		return Empty(), nil
	}
	if requestedAt.Sub(last.CreatedAt) > m.window {
		return Empty(), nil
	}

	return Single(last.Content), nil
}

// StartJanitor schedules periodic pruning of stale handle rows and
// completed in-memory buffers.
func (m *Manager) StartJanitor() error {
	if m.schedule == "" || m.store == nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(m.schedule, m.cleanup); err != nil {
		return err
	}
	c.Start()
	m.janitor = c
	return nil
}

// StopJanitor stops the cleanup schedule.
func (m *Manager) StopJanitor() {
	if m.janitor != nil {
		m.janitor.Stop()
		m.janitor = nil
	}
}

func (m *Manager) cleanup() {
	removed, err := m.store.DeleteStreamsBefore(time.Now().Add(-m.retention))
	if err != nil {
		logger.Warn().Err(err).Msg("Stream janitor failed to prune handles")
	} else if removed > 0 {
		logger.Debug().Int64("removed", removed).Msg("Pruned stale stream handles")
	}

	pruned := m.buffers.pruneCompleted(m.window)
	if pruned > 0 {
		logger.Debug().Int("pruned", pruned).Msg("Dropped completed stream buffers")
	}
}
