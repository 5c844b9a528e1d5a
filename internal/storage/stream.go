package storage

import (
	"time"
)

// StreamRecord is one persisted stream handle.
type StreamRecord struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateStream persists a new stream handle for a chat.
func (db *DB) CreateStream(id, chatID string, createdAt time.Time) error {
	_, err := db.Exec(
		"INSERT INTO streams (id, chat_id, created_at) VALUES (?, ?, ?)",
		id, chatID, createdAt,
	)
	return err
}

// StreamsByChat returns all stream handles for a chat in creation order,
// oldest first.
func (db *DB) StreamsByChat(chatID string) ([]StreamRecord, error) {
	rows, err := db.Query(
		"SELECT id, chat_id, created_at FROM streams WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC",
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []StreamRecord
	for rows.Next() {
		var r StreamRecord
		if err := rows.Scan(&r.ID, &r.ChatID, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// DeleteStreamsBefore removes stream handles created before the cutoff.
// Returns the number of rows removed.
func (db *DB) DeleteStreamsBefore(cutoff time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM streams WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
