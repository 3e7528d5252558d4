package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Message directions.
const (
	DirectionOutbound = "outbound" // local -> hub
	DirectionInbound  = "inbound"  // hub -> local
)

// Message is one relayed chat message.
type Message struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Direction string    `json:"direction"`
	Source    string    `json:"source,omitempty"`
	Content   string    `json:"content"`
}

// HistoryStore records relayed messages in both directions. It
// implements the relay History interface; recording is best effort
// and never interferes with the relay itself.
type HistoryStore struct {
	db *Database
}

// NewHistoryStore opens the history database and creates the schema.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	hs := &HistoryStore{db: database}
	if err := hs.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return hs, nil
}

func (hs *HistoryStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			direction TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`
	_, err := hs.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (hs *HistoryStore) Close() error {
	return hs.db.Close()
}

// RecordOutbound stores a message forwarded to the hub.
func (hs *HistoryStore) RecordOutbound(content string) {
	hs.record(DirectionOutbound, "", content)
}

// RecordInbound stores a message received from the hub.
func (hs *HistoryStore) RecordInbound(source, content string) {
	hs.record(DirectionInbound, source, content)
}

func (hs *HistoryStore) record(direction, source, content string) {
	_, err := hs.db.Exec(
		`INSERT INTO messages (direction, source, content) VALUES (?, ?, ?)`,
		direction, source, content,
	)
	if err != nil {
		log.Warn().Err(err).Str("direction", direction).Msg("failed to record message")
	}
}

// Recent returns the most recent messages, newest first.
func (hs *HistoryStore) Recent(limit int) ([]Message, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := hs.db.Query(
		`SELECT id, timestamp, direction, source, content
		 FROM messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Direction, &m.Source, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Count returns the total number of stored messages.
func (hs *HistoryStore) Count() (int64, error) {
	var n int64
	err := hs.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// PurgeOlderThan removes messages older than the retention window and
// returns the number of rows deleted.
func (hs *HistoryStore) PurgeOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := hs.db.Exec(`DELETE FROM messages WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		log.Debug().Int64("deleted", deleted).Msg("purged old messages")
	}
	return deleted, nil
}
