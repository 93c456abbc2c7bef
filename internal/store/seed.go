package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/bluetali/beacon/internal/errors"
)

// seedFile is the on-disk seed format: a single JSON document with one
// array per category. Missing arrays are treated as empty.
type seedFile struct {
	People        []Person       `json:"people"`
	Conversations []Conversation `json:"conversations"`
	Messages      []Message      `json:"messages"`
}

// seedLock guards the seed transaction against a concurrent process
// seeding the same store file. Works on Unix and Windows.
type seedLock struct {
	flock  *flock.Flock
	locked bool
}

func newSeedLock(storePath string) *seedLock {
	lockPath := filepath.Join(filepath.Dir(storePath), ".seed.lock")
	return &seedLock{flock: flock.New(lockPath)}
}

func (l *seedLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire seed lock: %w", err)
	}
	l.locked = true
	return nil
}

func (l *seedLock) release() {
	if !l.locked {
		return
	}
	_ = l.flock.Unlock()
	l.locked = false
}

// Seed replaces the store contents with the entities in the JSON file at
// path. The replacement is transactional: on any error the previous
// contents remain intact. Concurrent seeds of the same store serialize on
// a lock file next to the database.
func (s *SQLiteStore) Seed(ctx context.Context, path string) (SeedCounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedCounts{}, errors.New(errors.ErrCodeSeedInvalid,
			fmt.Sprintf("cannot read seed file %s", path), err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return SeedCounts{}, errors.New(errors.ErrCodeSeedInvalid,
			fmt.Sprintf("seed file %s is not valid JSON", path), err)
	}
	if err := validateSeed(&seed); err != nil {
		return SeedCounts{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return SeedCounts{}, err
	}

	if s.path != "" {
		lock := newSeedLock(s.path)
		if err := lock.acquire(); err != nil {
			return SeedCounts{}, errors.New(errors.ErrCodeDatastoreUnavailable,
				"another process is seeding the store", err)
		}
		defer lock.release()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SeedCounts{}, errors.DatastoreError("failed to begin seed transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Full replacement: clear every table and its FTS shadow, then insert.
	tables := []string{
		"people", "conversations", "messages",
		"people_fts", "conversations_fts", "messages_fts",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return SeedCounts{}, errors.DatastoreError("failed to clear "+table, err)
		}
	}

	if err := s.insertPeople(ctx, tx, seed.People); err != nil {
		return SeedCounts{}, err
	}
	if err := s.insertConversations(ctx, tx, seed.Conversations); err != nil {
		return SeedCounts{}, err
	}
	if err := s.insertMessages(ctx, tx, seed.Messages); err != nil {
		return SeedCounts{}, err
	}

	if err := tx.Commit(); err != nil {
		return SeedCounts{}, errors.DatastoreError("failed to commit seed transaction", err)
	}

	counts := SeedCounts{
		People:        len(seed.People),
		Conversations: len(seed.Conversations),
		Messages:      len(seed.Messages),
	}
	s.logger.Info("store seeded",
		"path", path,
		"people", counts.People,
		"conversations", counts.Conversations,
		"messages", counts.Messages)

	return counts, nil
}

// validateSeed rejects entities without IDs and duplicate IDs within a
// category before any table is touched.
func validateSeed(seed *seedFile) error {
	seen := make(map[string]bool, len(seed.People))
	for i, p := range seed.People {
		if p.ID == "" {
			return errors.New(errors.ErrCodeSeedInvalid,
				fmt.Sprintf("person at index %d has no id", i), nil)
		}
		if seen[p.ID] {
			return errors.New(errors.ErrCodeSeedInvalid,
				fmt.Sprintf("duplicate person id %q", p.ID), nil)
		}
		seen[p.ID] = true
	}

	seen = make(map[string]bool, len(seed.Conversations))
	for i, c := range seed.Conversations {
		if c.ID == "" {
			return errors.New(errors.ErrCodeSeedInvalid,
				fmt.Sprintf("conversation at index %d has no id", i), nil)
		}
		if seen[c.ID] {
			return errors.New(errors.ErrCodeSeedInvalid,
				fmt.Sprintf("duplicate conversation id %q", c.ID), nil)
		}
		seen[c.ID] = true
	}

	seen = make(map[string]bool, len(seed.Messages))
	for i, m := range seed.Messages {
		if m.ID == "" {
			return errors.New(errors.ErrCodeSeedInvalid,
				fmt.Sprintf("message at index %d has no id", i), nil)
		}
		if seen[m.ID] {
			return errors.New(errors.ErrCodeSeedInvalid,
				fmt.Sprintf("duplicate message id %q", m.ID), nil)
		}
		seen[m.ID] = true
	}

	return nil
}

func (s *SQLiteStore) insertPeople(ctx context.Context, tx *sql.Tx, people []Person) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO people (id, username, display_name, email, title, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.DatastoreError("failed to prepare people insert", err)
	}
	defer func() { _ = stmt.Close() }()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO people_fts (id, username, display_name, email)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.DatastoreError("failed to prepare people_fts insert", err)
	}
	defer func() { _ = ftsStmt.Close() }()

	for _, p := range people {
		active := 0
		if p.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Username, p.DisplayName, p.Email, p.Title, active, formatTime(p.UpdatedAt)); err != nil {
			return errors.DatastoreError("failed to insert person "+p.ID, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, p.ID, p.Username, p.DisplayName, p.Email); err != nil {
			return errors.DatastoreError("failed to index person "+p.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) insertConversations(ctx context.Context, tx *sql.Tx, convs []Conversation) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, title, topic, participants, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.DatastoreError("failed to prepare conversations insert", err)
	}
	defer func() { _ = stmt.Close() }()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations_fts (id, title, topic)
		VALUES (?, ?, ?)`)
	if err != nil {
		return errors.DatastoreError("failed to prepare conversations_fts insert", err)
	}
	defer func() { _ = ftsStmt.Close() }()

	for _, c := range convs {
		participants := c.Participants
		if participants == nil {
			participants = []string{}
		}
		raw, err := json.Marshal(participants)
		if err != nil {
			return errors.New(errors.ErrCodeSeedInvalid,
				"cannot encode participants for conversation "+c.ID, err)
		}
		active := 0
		if c.Active {
			active = 1
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Title, c.Topic, string(raw), active, formatTime(c.UpdatedAt)); err != nil {
			return errors.DatastoreError("failed to insert conversation "+c.ID, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, c.ID, c.Title, c.Topic); err != nil {
			return errors.DatastoreError("failed to index conversation "+c.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) insertMessages(ctx context.Context, tx *sql.Tx, msgs []Message) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, sent_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.DatastoreError("failed to prepare messages insert", err)
	}
	defer func() { _ = stmt.Close() }()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages_fts (id, body) VALUES (?, ?)`)
	if err != nil {
		return errors.DatastoreError("failed to prepare messages_fts insert", err)
	}
	defer func() { _ = ftsStmt.Close() }()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.ConversationID, m.SenderID, m.Body, formatTime(m.SentAt)); err != nil {
			return errors.DatastoreError("failed to insert message "+m.ID, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, m.ID, m.Body); err != nil {
			return errors.DatastoreError("failed to index message "+m.ID, err)
		}
	}
	return nil
}
