package websocket

import (
	"encoding/json"
	"sync"

	"freqgate/pkg/logger"
)

// ChatHandler processes a chat message and returns a channel of serialized
// chunk messages to stream back.
type ChatHandler func(chatID, message, model string) (<-chan []byte, error)

// Hub maintains the set of active clients and routes messages to chat
// subscribers.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Chat id to clients mapping for targeted broadcasts.
	chats map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex

	chatHandler ChatHandler
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		chats:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// SetChatHandler sets the callback for incoming chat messages.
func (h *Hub) SetChatHandler(handler ChatHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chatHandler = handler
}

// HandleChat processes a chat message from a client.
func (h *Hub) HandleChat(chatID, message, model string) (<-chan []byte, error) {
	h.mu.RLock()
	handler := h.chatHandler
	h.mu.RUnlock()

	if handler == nil {
		return nil, nil
	}

	return handler(chatID, message, model)
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				for chat := range client.chats {
					if clients, ok := h.chats[chat]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.chats, chat)
						}
					}
				}
			}
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if msg.Chat == "" {
				for client := range h.clients {
					select {
					case client.send <- msg.Data:
					default:
						// Client buffer full, skip
					}
				}
			} else {
				if clients, ok := h.chats[msg.Chat]; ok {
					for client := range clients {
						select {
						case client.send <- msg.Data:
						default:
							// Client buffer full, skip
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a chat's subscriber set.
func (h *Hub) Subscribe(client *Client, chat string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.chats[chat]; !ok {
		h.chats[chat] = make(map[*Client]bool)
	}
	h.chats[chat][client] = true
	client.chats[chat] = true

	logger.Debug().Str("client_id", client.id).Str("chat", chat).Msg("Client subscribed")
}

// Unsubscribe removes a client from a chat's subscriber set.
func (h *Hub) Unsubscribe(client *Client, chat string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.chats[chat]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.chats, chat)
		}
	}
	delete(client.chats, chat)

	logger.Debug().Str("client_id", client.id).Str("chat", chat).Msg("Client unsubscribed")
}

// Broadcast sends data to all subscribers of a chat.
func (h *Hub) Broadcast(chat string, data []byte) {
	h.broadcast <- &BroadcastMessage{Chat: chat, Data: data}
}

// BroadcastAll sends data to every connected client.
func (h *Hub) BroadcastAll(data []byte) {
	h.broadcast <- &BroadcastMessage{Data: data}
}

// BroadcastTyped marshals a WSMessage and broadcasts it to its chat (or to
// everyone when the chat is empty).
func (h *Hub) BroadcastTyped(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.broadcast <- &BroadcastMessage{Chat: msg.Chat, Data: data}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
