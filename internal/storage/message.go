package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveMessage persists a chat message and returns it.
func (db *DB) SaveMessage(chatID, role, content string) (*Message, error) {
	m := &Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	_, err := db.Exec(
		"INSERT INTO messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.ChatID, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// LastMessage returns the most recent message in a chat.
func (db *DB) LastMessage(chatID string) (*Message, error) {
	var m Message
	err := db.QueryRow(
		"SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		chatID,
	).Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// MessagesByChat returns up to limit messages of a chat in creation order,
// oldest first. A limit of 0 returns all messages.
func (db *DB) MessagesByChat(chatID string, limit int) ([]Message, error) {
	query := "SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC"
	args := []any{chatID}
	if limit > 0 {
		// Take the newest N rows, then restore oldest-first order below.
		query = `SELECT id, chat_id, role, content, created_at FROM (
			SELECT rowid AS rid, id, chat_id, role, content, created_at FROM messages
			WHERE chat_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rid ASC`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
