package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/bluetali/beacon/internal/errors"
)

// SQLiteStore implements EntityStore over SQLite.
//
// Two query strategies share the same schema and output shape: FTS5 MATCH
// with bm25() ordering when useIndex is true, and case-insensitive LIKE
// pattern matching otherwise. The strategy is fixed at construction; callers
// cannot tell them apart except by ranking quality.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	useIndex bool
	closed   bool
	logger   *slog.Logger
}

// Verify interface implementation at compile time
var _ EntityStore = (*SQLiteStore)(nil)

// validateIntegrity checks a SQLite database before opening.
// Returns nil if valid or absent, an error describing corruption if not.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// NewSQLiteStore opens (or creates) the entity store at path.
// An empty path creates an in-memory store for testing.
// useIndex selects the FTS5 strategy; false selects the LIKE fallback.
func NewSQLiteStore(path string, useIndex bool, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeDatastoreUnavailable,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			logger.Warn("store corrupted, clearing",
				"path", path, "error", validErr.Error())

			// The store holds reseedable data; clearing beats refusing to start.
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, errors.New(errors.ErrCodeStoreCorrupt,
					fmt.Sprintf("store corrupted at %s and cannot remove", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeDatastoreUnavailable, "failed to open database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// may be ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.New(errors.ErrCodeDatastoreUnavailable, "failed to set pragma", err)
		}
	}

	s := &SQLiteStore{
		db:       db,
		path:     path,
		useIndex: useIndex,
		logger:   logger,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeDatastoreUnavailable, "failed to initialize schema", err)
	}

	return s, nil
}

// initSchema creates the entity tables and their FTS5 shadows.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		participants TEXT NOT NULL DEFAULT '[]',
		active INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		body TEXT NOT NULL,
		sent_at TEXT NOT NULL
	);

	-- FTS5 shadows; id is UNINDEXED (stored but not searchable).
	-- Populated on seed, queried only by the index strategy.
	CREATE VIRTUAL TABLE IF NOT EXISTS people_fts USING fts5(
		id UNINDEXED, username, display_name, email, tokenize='unicode61'
	);
	CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
		id UNINDEXED, title, topic, tokenize='unicode61'
	);
	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		id UNINDEXED, body, tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// buildMatchExpr turns a user term into an FTS5 MATCH expression.
// Each whitespace-separated token becomes a quoted prefix query; tokens are
// ANDed. Quotes inside tokens are stripped so user input cannot change the
// expression structure.
func buildMatchExpr(term string) string {
	fields := strings.Fields(term)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.ReplaceAll(f, `"`, "")
		if tok == "" {
			continue
		}
		parts = append(parts, `"`+tok+`"*`)
	}
	return strings.Join(parts, " ")
}

// isFTSSyntaxError reports whether err came from FTS5 query parsing.
// These degrade to empty results rather than surfacing as failures.
func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

// likePatterns returns the LIKE patterns for a query: prefix-only for
// typeahead, prefix-or-contains otherwise. Metacharacters in the term are
// escaped so they match literally.
func likePatterns(q Query) (prefix, contains string) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(q.Term))
	prefix = escaped + "%"
	if q.Prefix {
		return prefix, prefix
	}
	return prefix, "%" + escaped + "%"
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return errors.New(errors.ErrCodeDatastoreUnavailable, "store is closed", nil)
	}
	return nil
}

// SearchPeople returns active people matching the query term.
func (s *SQLiteStore) SearchPeople(ctx context.Context, q Query) ([]Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error

	if s.useIndex {
		expr := buildMatchExpr(q.Term)
		if expr == "" {
			return []Person{}, nil
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT p.id, p.username, p.display_name, p.email, p.title, p.active, p.updated_at
			FROM people_fts f
			JOIN people p ON p.id = f.id
			WHERE people_fts MATCH ? AND p.active = 1
			ORDER BY bm25(people_fts), p.updated_at DESC
			LIMIT ? OFFSET ?`,
			expr, q.Limit, q.Skip)
	} else {
		prefix, contains := likePatterns(q)
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, username, display_name, email, title, active, updated_at
			FROM people
			WHERE active = 1 AND (
				lower(username) LIKE ? ESCAPE '\'
				OR lower(display_name) LIKE ? ESCAPE '\'
				OR lower(email) LIKE ? ESCAPE '\'
			)
			ORDER BY updated_at DESC
			LIMIT ? OFFSET ?`,
			prefix, contains, contains, q.Limit, q.Skip)
	}

	if err != nil {
		if isFTSSyntaxError(err) {
			return []Person{}, nil
		}
		return nil, errors.DatastoreError("people search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var people []Person
	for rows.Next() {
		var p Person
		var active int
		var updatedAt string
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Email, &p.Title, &active, &updatedAt); err != nil {
			return nil, errors.DatastoreError("failed to scan person", err)
		}
		p.Active = active != 0
		p.UpdatedAt = parseTime(updatedAt)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatastoreError("people search failed", err)
	}

	return people, nil
}

// SearchConversations returns active conversations matching the query term,
// restricted to the caller's conversations when a caller ID is present.
func (s *SQLiteStore) SearchConversations(ctx context.Context, q Query) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error

	if s.useIndex {
		expr := buildMatchExpr(q.Term)
		if expr == "" {
			return []Conversation{}, nil
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT c.id, c.title, c.topic, c.participants, c.active, c.updated_at
			FROM conversations_fts f
			JOIN conversations c ON c.id = f.id
			WHERE conversations_fts MATCH ? AND c.active = 1
			  AND (? = '' OR EXISTS (
				SELECT 1 FROM json_each(c.participants) WHERE json_each.value = ?
			  ))
			ORDER BY bm25(conversations_fts), c.updated_at DESC
			LIMIT ? OFFSET ?`,
			expr, q.CallerID, q.CallerID, q.Limit, q.Skip)
	} else {
		prefix, contains := likePatterns(q)
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, title, topic, participants, active, updated_at
			FROM conversations
			WHERE active = 1 AND (
				lower(title) LIKE ? ESCAPE '\'
				OR lower(topic) LIKE ? ESCAPE '\'
			)
			  AND (? = '' OR EXISTS (
				SELECT 1 FROM json_each(participants) WHERE json_each.value = ?
			  ))
			ORDER BY updated_at DESC
			LIMIT ? OFFSET ?`,
			prefix, contains, q.CallerID, q.CallerID, q.Limit, q.Skip)
	}

	if err != nil {
		if isFTSSyntaxError(err) {
			return []Conversation{}, nil
		}
		return nil, errors.DatastoreError("conversations search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var active int
		var participants, updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &c.Topic, &participants, &active, &updatedAt); err != nil {
			return nil, errors.DatastoreError("failed to scan conversation", err)
		}
		c.Active = active != 0
		c.UpdatedAt = parseTime(updatedAt)
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			c.Participants = nil
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatastoreError("conversations search failed", err)
	}

	return convs, nil
}

// SearchMessages returns messages matching the query term, restricted to
// conversations the caller participates in when a caller ID is present.
func (s *SQLiteStore) SearchMessages(ctx context.Context, q Query) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error

	if s.useIndex {
		expr := buildMatchExpr(q.Term)
		if expr == "" {
			return []Message{}, nil
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id, m.conversation_id, m.sender_id, m.body, m.sent_at
			FROM messages_fts f
			JOIN messages m ON m.id = f.id
			JOIN conversations c ON c.id = m.conversation_id
			WHERE messages_fts MATCH ?
			  AND (? = '' OR EXISTS (
				SELECT 1 FROM json_each(c.participants) WHERE json_each.value = ?
			  ))
			ORDER BY bm25(messages_fts), m.sent_at DESC
			LIMIT ? OFFSET ?`,
			expr, q.CallerID, q.CallerID, q.Limit, q.Skip)
	} else {
		_, contains := likePatterns(q)
		rows, err = s.db.QueryContext(ctx, `
			SELECT m.id, m.conversation_id, m.sender_id, m.body, m.sent_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE lower(m.body) LIKE ? ESCAPE '\'
			  AND (? = '' OR EXISTS (
				SELECT 1 FROM json_each(c.participants) WHERE json_each.value = ?
			  ))
			ORDER BY m.sent_at DESC
			LIMIT ? OFFSET ?`,
			contains, q.CallerID, q.CallerID, q.Limit, q.Skip)
	}

	if err != nil {
		if isFTSSyntaxError(err) {
			return []Message{}, nil
		}
		return nil, errors.DatastoreError("messages search failed", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var sentAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &sentAt); err != nil {
			return nil, errors.DatastoreError("failed to scan message", err)
		}
		m.SentAt = parseTime(sentAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatastoreError("messages search failed", err)
	}

	return msgs, nil
}

// Counts returns per-category row counts.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return Counts{}, err
	}

	var c Counts
	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM people", &c.People},
		{"SELECT COUNT(*) FROM conversations", &c.Conversations},
		{"SELECT COUNT(*) FROM messages", &c.Messages},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return Counts{}, errors.DatastoreError("count query failed", err)
		}
	}

	return c, nil
}

// Close closes the store. Idempotent; forces a WAL checkpoint first.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// parseTime parses a stored RFC3339 timestamp, returning the zero time on
// malformed input rather than failing the whole row.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
