package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"freqgate/internal/gateway/handlers"
)

// HandleGetMessages returns the persisted history of a chat, oldest first.
func (r *Router) HandleGetMessages(w http.ResponseWriter, req *http.Request) {
	if r.db == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "History is unavailable without a store")
		return
	}

	chatID := mux.Vars(req)["id"]

	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	msgs, err := r.db.MessagesByChat(chatID, limit)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}

	handlers.SendJSON(w, http.StatusOK, views)
}

// HandleListModels returns the configured model selectors.
func (r *Router) HandleListModels(w http.ResponseWriter, req *http.Request) {
	resp := ModelsResponse{}
	if r.config != nil {
		resp.Default = r.config.LLM.DefaultModel
		resp.Models = r.config.LLM.Models
	}
	handlers.SendJSON(w, http.StatusOK, resp)
}
