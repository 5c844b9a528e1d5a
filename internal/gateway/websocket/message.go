// Package websocket provides WebSocket hub and client management for live
// chat delivery.
package websocket

// WSMessage represents a WebSocket message.
type WSMessage struct {
	Type    string `json:"type"`
	Chat    string `json:"chat,omitempty"`  // chat id for subscribe/chat/chunk
	Model   string `json:"model,omitempty"` // optional model selector on chat messages
	Seq     int    `json:"seq,omitempty"`
	Delta   string `json:"delta,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"` // changed file on reload broadcasts
}

// BroadcastMessage wraps a message with its target chat.
type BroadcastMessage struct {
	Chat string
	Data []byte
}

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeChat        = "chat"
	TypeChunk       = "chunk"
	TypeReload      = "reload"
	TypeError       = "error"
)
