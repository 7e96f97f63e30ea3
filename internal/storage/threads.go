// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides thread persistence for the Choir TUI.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/choirchat/choir-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrThreadNotFound = errors.New("thread not found")
)

// =============================================================================
// THREAD STORE
// =============================================================================

// ThreadStore persists threads and their messages in SQLite.
type ThreadStore struct {
	db *sql.DB
}

// Open creates or opens the thread database at path.
func Open(path string) (*ThreadStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	s := &ThreadStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDefault opens the store at ~/.choir/choir.db.
func OpenDefault() (*ThreadStore, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(home, ".choir", "choir.db"))
}

// Close closes the underlying database.
func (s *ThreadStore) Close() error {
	return s.db.Close()
}

// migrate creates the schema.
func (s *ThreadStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		thread_id  TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		phase_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// SaveThread upserts the thread row and all of its messages.
func (s *ThreadStore) SaveThread(t *model.Thread) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO threads (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		t.ID, t.Title, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving thread: %w", err)
	}

	for _, msg := range t.Messages {
		if err := upsertMessage(tx, t.ID, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendMessage persists one message of a thread.
func (s *ThreadStore) AppendMessage(threadID string, msg model.ThreadMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertMessage(tx, threadID, msg); err != nil {
		return err
	}
	_, err = tx.Exec(`UPDATE threads SET updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), threadID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// upsertMessage writes one message row inside a transaction.
func upsertMessage(tx *sql.Tx, threadID string, msg model.ThreadMessage) error {
	var phaseJSON []byte
	if msg.Phases != nil {
		wire := make(map[string]*model.PhaseRecord, len(msg.Phases))
		for p, rec := range msg.Phases {
			wire[p.String()] = rec
		}
		var err error
		phaseJSON, err = json.Marshal(wire)
		if err != nil {
			return fmt.Errorf("encoding phase records: %w", err)
		}
	}

	_, err := tx.Exec(`
		INSERT INTO messages (id, thread_id, role, content, phase_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, phase_json = excluded.phase_json`,
		msg.ID, threadID, string(msg.Role), msg.Content, string(phaseJSON), msg.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	return nil
}

// UpdateTitle renames a thread.
func (s *ThreadStore) UpdateTitle(threadID, title string) error {
	res, err := s.db.Exec(`UPDATE threads SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UnixMilli(), threadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// GetThread loads a thread with all of its messages.
func (s *ThreadStore) GetThread(id string) (*model.Thread, error) {
	t := &model.Thread{ID: id}
	var created, updated int64
	err := s.db.QueryRow(`SELECT title, created_at, updated_at FROM threads WHERE id = ?`, id).
		Scan(&t.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(created)
	t.UpdatedAt = time.UnixMilli(updated)

	rows, err := s.db.Query(`
		SELECT id, role, content, phase_json, created_at
		FROM messages WHERE thread_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.ThreadMessage
		var role, phaseJSON string
		var ts int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &phaseJSON, &ts); err != nil {
			return nil, err
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.UnixMilli(ts)
		if phaseJSON != "" {
			var wire map[string]*model.PhaseRecord
			if err := json.Unmarshal([]byte(phaseJSON), &wire); err == nil {
				msg.Phases = make(map[model.Phase]*model.PhaseRecord, len(wire))
				for name, rec := range wire {
					if p, ok := model.PhaseFromWire(name); ok {
						msg.Phases[p] = rec
					}
				}
			}
		}
		t.Messages = append(t.Messages, msg)
	}
	return t, rows.Err()
}

// ThreadMeta is a listing row.
type ThreadMeta struct {
	ID           string
	Title        string
	MessageCount int
	UpdatedAt    time.Time
}

// ListThreads returns thread metadata newest first.
func (s *ThreadStore) ListThreads() ([]ThreadMeta, error) {
	rows, err := s.db.Query(`
		SELECT t.id, t.title, t.updated_at, COUNT(m.id)
		FROM threads t LEFT JOIN messages m ON m.thread_id = t.id
		GROUP BY t.id ORDER BY t.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThreadMeta
	for rows.Next() {
		var meta ThreadMeta
		var updated int64
		if err := rows.Scan(&meta.ID, &meta.Title, &updated, &meta.MessageCount); err != nil {
			return nil, err
		}
		meta.UpdatedAt = time.UnixMilli(updated)
		out = append(out, meta)
	}
	return out, rows.Err()
}

// HistoryWindow returns the last n turns of a thread in chronological
// order, for use as conversation context.
func (s *ThreadStore) HistoryWindow(threadID string, n int) ([]model.Turn, error) {
	rows, err := s.db.Query(`
		SELECT role, content FROM (
			SELECT role, content, created_at, id
			FROM messages WHERE thread_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at, id`, threadID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		turns = append(turns, model.Turn{Role: model.Role(role), Content: content})
	}
	return turns, rows.Err()
}

// TitleExists reports whether any thread already uses the title.
func (s *ThreadStore) TitleExists(title string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM threads WHERE title = ?`, title).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteThread removes a thread and its messages.
func (s *ThreadStore) DeleteThread(id string) error {
	res, err := s.db.Exec(`DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrThreadNotFound
	}
	return nil
}
