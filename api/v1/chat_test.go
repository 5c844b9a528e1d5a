package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"freqgate/internal/command"
	"freqgate/internal/config"
	"freqgate/internal/dispatch"
	"freqgate/internal/httpx"
	"freqgate/internal/provider"
	"freqgate/internal/storage"
	"freqgate/internal/stream"
)

// cannedBackend streams a fixed answer.
type cannedBackend struct {
	answer string
}

func (b *cannedBackend) Name() string { return "canned" }

func (b *cannedBackend) Stream(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 2)
	ch <- provider.ChatEvent{Type: provider.EventTypeContent, Delta: b.answer}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func newTestRouter(t *testing.T) (*mux.Router, *storage.DB) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	controller := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"started"}`)
	}))
	t.Cleanup(controller.Close)

	cfg := &config.Config{}
	cfg.LLM.DefaultModel = "canned-model"
	cfg.LLM.Models = map[string]string{"fast": "canned-fast"}

	executor := command.NewExecutor(httpx.New(), config.ControllerConfig{URL: controller.URL, ProbeDelay: time.Millisecond})
	bridge := provider.NewBridge(&cannedBackend{answer: "generated answer"}, cfg.LLM)
	streams := stream.NewManager(db, config.ResumeConfig{Window: 15 * time.Second, Retention: time.Hour})
	dispatcher := dispatch.New(executor, bridge, streams, db, 50)

	router := NewRouter(&RouterDeps{
		Dispatcher: dispatcher,
		Streams:    streams,
		DB:         db,
		Config:     cfg,
		Version:    "test",
	})

	m := mux.NewRouter()
	router.RegisterRoutes(m)
	return m, db
}

func postChat(t *testing.T, m *mux.Router, path string, body ChatRequest) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)
	return rr
}

func TestHandleChat_NoDispatcher(t *testing.T) {
	router := NewRouter(nil)
	m := mux.NewRouter()
	router.RegisterRoutes(m)

	rr := postChat(t, m, "/api/v1/chat", ChatRequest{Message: "Hello"})

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	m, _ := newTestRouter(t)

	rr := postChat(t, m, "/api/v1/chat", ChatRequest{Message: ""})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleChat_Command(t *testing.T) {
	m, _ := newTestRouter(t)

	rr := postChat(t, m, "/api/v1/chat", ChatRequest{ChatID: "c1", Message: "/help"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ChatID != "c1" {
		t.Errorf("chat_id = %s, want c1", resp.ChatID)
	}
	if !strings.Contains(resp.Message, "/backtest") {
		t.Errorf("help response missing commands: %s", resp.Message)
	}
}

func TestHandleChat_GenerationCollected(t *testing.T) {
	m, _ := newTestRouter(t)

	rr := postChat(t, m, "/api/v1/chat", ChatRequest{ChatID: "c1", Message: "tell me things"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "generated answer" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestHandleChatStream_SSE(t *testing.T) {
	m, _ := newTestRouter(t)

	rr := postChat(t, m, "/api/v1/chat/stream", ChatRequest{ChatID: "c1", Message: "stream it"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %s", ct)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"type":"content"`) || !strings.Contains(body, "generated answer") {
		t.Errorf("missing content frame: %s", body)
	}
	if !strings.Contains(body, `"type":"done"`) || !strings.Contains(body, `"chat_id":"c1"`) {
		t.Errorf("missing done frame: %s", body)
	}
}

func TestHandleChatResume_NothingToResume(t *testing.T) {
	m, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/resume?chat_id=ghost", nil)
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestHandleChatResume_MissingChatID(t *testing.T) {
	m, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/resume", nil)
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleChatResume_ReplaysRecentAnswer(t *testing.T) {
	m, _ := newTestRouter(t)

	// Complete a turn first.
	rr := postChat(t, m, "/api/v1/chat", ChatRequest{ChatID: "c1", Message: "hello"})
	if rr.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/resume?chat_id=c1", nil)
	rr = httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("resume status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "generated answer") {
		t.Errorf("resume did not replay the answer: %s", body)
	}
}

func TestHandleGetMessages(t *testing.T) {
	m, _ := newTestRouter(t)

	rr := postChat(t, m, "/api/v1/chat", ChatRequest{ChatID: "c1", Message: "first question"})
	if rr.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/c1/messages", nil)
	rr = httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var views []MessageView
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("messages = %d, want 2", len(views))
	}
	if views[0].Role != storage.RoleUser || views[0].Content != "first question" {
		t.Errorf("first message = %+v", views[0])
	}
	if views[1].Role != storage.RoleAssistant {
		t.Errorf("second message role = %s", views[1].Role)
	}
}

func TestHandleListModels(t *testing.T) {
	m, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp ModelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Default != "canned-model" {
		t.Errorf("default = %s", resp.Default)
	}
	if resp.Models["fast"] != "canned-fast" {
		t.Errorf("models = %v", resp.Models)
	}
}

func TestHandleHealth(t *testing.T) {
	m, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
