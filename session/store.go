// Package session persists conversation history in SQLite so it can
// outlive a single engine call or process.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/convo-dev/convo/llm"
)

// Store is a SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT,
    model TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system', 'tool')),
    parts TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL,
    UNIQUE(conversation_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sequence);
`

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// NewConversation creates a conversation row and returns its handle.
func (s *Store) NewConversation(title, model string) (*Conversation, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, title, model) VALUES (?, ?, ?)`,
		id, title, model,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &Conversation{store: s, id: id}, nil
}

// Conversation returns a handle for an existing conversation id. The id is
// not validated until the first read or write.
func (s *Store) Conversation(id string) *Conversation {
	return &Conversation{store: s, id: id}
}

// Summary is one row in a conversation listing.
type Summary struct {
	ID        string
	Title     string
	Model     string
	Messages  int
	UpdatedAt time.Time
}

// List returns conversations, most recently updated first.
func (s *Store) List(limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT c.id, c.title, c.model, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Model, &sum.UpdatedAt, &sum.Messages); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// Conversation binds history operations to one conversation row. It
// implements llm.HistoryStore, so an engine can be pointed straight at a
// persisted conversation.
type Conversation struct {
	store *Store
	id    string
}

func (c *Conversation) ID() string { return c.id }

// Append stores messages at the end of the conversation.
func (c *Conversation) Append(msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := c.store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE conversation_id = ?`,
		c.id,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	for i, msg := range msgs {
		parts, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("marshal parts: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO messages (conversation_id, role, parts, sequence) VALUES (?, ?, ?, ?)`,
			c.id, string(msg.Role), string(parts), next+i,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	_, err = tx.Exec(`UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, c.id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// Messages returns the conversation's messages in sequence order.
func (c *Conversation) Messages() ([]llm.Message, error) {
	rows, err := c.store.db.Query(
		`SELECT role, parts FROM messages WHERE conversation_id = ? ORDER BY sequence`,
		c.id,
	)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var role, parts string
		if err := rows.Scan(&role, &parts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg := llm.Message{Role: llm.Role(role)}
		if err := json.Unmarshal([]byte(parts), &msg.Parts); err != nil {
			return nil, fmt.Errorf("unmarshal parts: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
