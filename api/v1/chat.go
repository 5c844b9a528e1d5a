package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"freqgate/internal/dispatch"
	"freqgate/internal/gateway/handlers"
	"freqgate/internal/stream"
	"freqgate/pkg/logger"
)

// HandleChat handles non-streaming chat requests. The chunk sequence is
// collected into a single response body.
func (r *Router) HandleChat(w http.ResponseWriter, req *http.Request) {
	turn, ok := r.decodeTurn(w, req)
	if !ok {
		return
	}

	chunks, err := r.dispatcher.Handle(req.Context(), turn)
	if err != nil {
		logger.Error().Err(err).Str("chat_id", turn.ChatID).Msg("Chat turn failed")
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	var message string
	for chunk := range chunks {
		if chunk.Err != "" {
			handlers.SendError(w, http.StatusBadGateway, ErrCodeGenerationError, chunk.Err)
			return
		}
		message += chunk.Delta
	}

	handlers.SendJSON(w, http.StatusOK, ChatResponse{
		ChatID:  turn.ChatID,
		Message: message,
	})
}

// HandleChatStream handles streaming chat requests using SSE.
func (r *Router) HandleChatStream(w http.ResponseWriter, req *http.Request) {
	turn, ok := r.decodeTurn(w, req)
	if !ok {
		return
	}

	flusher, ok := setSSEHeaders(w)
	if !ok {
		return
	}

	chunks, err := r.dispatcher.Handle(req.Context(), turn)
	if err != nil {
		logger.Error().Err(err).Str("chat_id", turn.ChatID).Msg("Chat turn failed")
		writeSSE(w, flusher, ChatStreamEvent{Type: "error", Error: "internal error"})
		return
	}

	streamChunks(w, flusher, turn.ChatID, chunks)
}

// HandleChatResume re-joins a chat's most recent stream. Live streams are
// caught up from the start; recently completed streams are replayed as the
// final message. 204 means there is nothing to resume.
func (r *Router) HandleChatResume(w http.ResponseWriter, req *http.Request) {
	chatID := req.URL.Query().Get("chat_id")
	if chatID == "" {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "chat_id is required")
		return
	}

	chunks, err := r.streams.Resume(req.Context(), chatID, time.Now())
	if err != nil {
		if err == stream.ErrNotFound {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Error().Err(err).Str("chat_id", chatID).Msg("Resume failed")
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	flusher, ok := setSSEHeaders(w)
	if !ok {
		return
	}

	streamChunks(w, flusher, chatID, chunks)
}

func (r *Router) decodeTurn(w http.ResponseWriter, req *http.Request) (dispatch.Turn, bool) {
	var chatReq ChatRequest
	if err := json.NewDecoder(req.Body).Decode(&chatReq); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return dispatch.Turn{}, false
	}
	if chatReq.Message == "" {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Message is required")
		return dispatch.Turn{}, false
	}
	if r.dispatcher == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Dispatcher not available")
		return dispatch.Turn{}, false
	}

	chatID := chatReq.ChatID
	if chatID == "" {
		chatID = uuid.New().String()
	}

	return dispatch.Turn{
		ChatID: chatID,
		Text:   chatReq.Message,
		Model:  chatReq.Model,
	}, true
}

func setSSEHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Streaming not supported")
		return nil, false
	}
	return flusher, true
}

// streamChunks translates the chunk sequence into SSE frames.
func streamChunks(w http.ResponseWriter, flusher http.Flusher, chatID string, chunks <-chan stream.Chunk) {
	for chunk := range chunks {
		switch {
		case chunk.Err != "":
			writeSSE(w, flusher, ChatStreamEvent{Type: "error", Seq: chunk.Seq, Error: chunk.Err})
			return
		case chunk.Final:
			if chunk.Delta != "" {
				writeSSE(w, flusher, ChatStreamEvent{Type: "content", Seq: chunk.Seq, Delta: chunk.Delta})
			}
			writeSSE(w, flusher, ChatStreamEvent{Type: "done", Seq: chunk.Seq, ChatID: chatID})
			return
		default:
			writeSSE(w, flusher, ChatStreamEvent{Type: "content", Seq: chunk.Seq, Delta: chunk.Delta})
		}
	}
	// Delivery was cut (client context cancelled); nothing more to send.
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event ChatStreamEvent) {
	data, _ := json.Marshal(event)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
