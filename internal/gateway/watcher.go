package gateway

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"freqgate/internal/gateway/websocket"
	"freqgate/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Watcher monitors the config file for changes, invokes a reload callback
// and notifies connected clients.
type Watcher struct {
	watcher  *fsnotify.Watcher
	hub      *websocket.Hub
	paths    []string
	onChange func(path string)
	stopCh   chan struct{}
	debounce map[string]*time.Timer
	mu       sync.Mutex
}

// NewWatcher creates a new file watcher. onChange may be nil.
func NewWatcher(hub *websocket.Hub, onChange func(path string), paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		hub:      hub,
		paths:    paths,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		if err := w.watcher.Add(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleEvent(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

// handleEvent debounces bursts of events for the same path.
func (w *Watcher) handleEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}

	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.fire(path)

		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
	})
}

func (w *Watcher) fire(path string) {
	logger.Info().Str("path", path).Msg("Config file changed")

	if w.onChange != nil {
		w.onChange(path)
	}

	if w.hub != nil {
		if err := w.hub.BroadcastTyped(websocket.WSMessage{
			Type: websocket.TypeReload,
			Path: path,
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to broadcast reload message")
		}
	}
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)

	w.mu.Lock()
	for _, timer := range w.debounce {
		timer.Stop()
	}
	w.mu.Unlock()

	w.watcher.Close()
}
