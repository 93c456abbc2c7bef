package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/errgroup"

	"github.com/bluetali/beacon/internal/errors"
)

// BleveStore layers in-memory Bleve indexes over a SQLiteStore. SQLite
// remains the source of truth for entity rows and seeding; Bleve provides
// the match ranking. Indexes are rebuilt from SQLite on open and on seed,
// which is cheap at the dataset sizes this store is built for.
type BleveStore struct {
	mu     sync.RWMutex
	sql    *SQLiteStore
	people bleve.Index
	convs  bleve.Index
	msgs   bleve.Index
	closed bool
	logger *slog.Logger
}

var _ EntityStore = (*BleveStore)(nil)

// bleveDoc is the indexed document shape, one text blob per entity.
type bleveDoc struct {
	Text string `json:"text"`
}

// NewBleveStore opens the SQLite store at path and builds the Bleve
// indexes from its current contents.
func NewBleveStore(path string, logger *slog.Logger) (*BleveStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inner, err := NewSQLiteStore(path, false, logger)
	if err != nil {
		return nil, err
	}

	b := &BleveStore{
		sql:    inner,
		logger: logger.With("component", "store"),
	}
	if err := b.rebuildIndexes(context.Background()); err != nil {
		_ = inner.Close()
		return nil, err
	}

	return b, nil
}

// rebuildIndexes replaces all three indexes with fresh ones built from the
// SQLite tables. Callers must not hold b.mu.
func (b *BleveStore) rebuildIndexes(ctx context.Context) error {
	mapping := bleve.NewIndexMapping()

	people, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return errors.New(errors.ErrCodeDatastoreUnavailable, "failed to create people index", err)
	}
	convs, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return errors.New(errors.ErrCodeDatastoreUnavailable, "failed to create conversations index", err)
	}
	msgs, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return errors.New(errors.ErrCodeDatastoreUnavailable, "failed to create messages index", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.indexPeople(gctx, people) })
	g.Go(func() error { return b.indexConversations(gctx, convs) })
	g.Go(func() error { return b.indexMessages(gctx, msgs) })
	if err := g.Wait(); err != nil {
		return err
	}

	b.mu.Lock()
	old := []bleve.Index{b.people, b.convs, b.msgs}
	b.people, b.convs, b.msgs = people, convs, msgs
	b.mu.Unlock()

	for _, idx := range old {
		if idx != nil {
			_ = idx.Close()
		}
	}
	return nil
}

func (b *BleveStore) indexPeople(ctx context.Context, idx bleve.Index) error {
	rows, err := b.sql.db.QueryContext(ctx,
		"SELECT id, username, display_name, email FROM people WHERE active = 1")
	if err != nil {
		return errors.DatastoreError("failed to load people for indexing", err)
	}
	defer func() { _ = rows.Close() }()

	batch := idx.NewBatch()
	for rows.Next() {
		var id, username, displayName, email string
		if err := rows.Scan(&id, &username, &displayName, &email); err != nil {
			return errors.DatastoreError("failed to scan person for indexing", err)
		}
		doc := bleveDoc{Text: username + " " + displayName + " " + email}
		if err := batch.Index(id, doc); err != nil {
			return errors.DatastoreError("failed to index person "+id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.DatastoreError("failed to load people for indexing", err)
	}
	if err := idx.Batch(batch); err != nil {
		return errors.DatastoreError("failed to build people index", err)
	}
	return nil
}

func (b *BleveStore) indexConversations(ctx context.Context, idx bleve.Index) error {
	rows, err := b.sql.db.QueryContext(ctx,
		"SELECT id, title, topic FROM conversations WHERE active = 1")
	if err != nil {
		return errors.DatastoreError("failed to load conversations for indexing", err)
	}
	defer func() { _ = rows.Close() }()

	batch := idx.NewBatch()
	for rows.Next() {
		var id, title, topic string
		if err := rows.Scan(&id, &title, &topic); err != nil {
			return errors.DatastoreError("failed to scan conversation for indexing", err)
		}
		if err := batch.Index(id, bleveDoc{Text: title + " " + topic}); err != nil {
			return errors.DatastoreError("failed to index conversation "+id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.DatastoreError("failed to load conversations for indexing", err)
	}
	if err := idx.Batch(batch); err != nil {
		return errors.DatastoreError("failed to build conversations index", err)
	}
	return nil
}

func (b *BleveStore) indexMessages(ctx context.Context, idx bleve.Index) error {
	rows, err := b.sql.db.QueryContext(ctx, "SELECT id, body FROM messages")
	if err != nil {
		return errors.DatastoreError("failed to load messages for indexing", err)
	}
	defer func() { _ = rows.Close() }()

	batch := idx.NewBatch()
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return errors.DatastoreError("failed to scan message for indexing", err)
		}
		if err := batch.Index(id, bleveDoc{Text: body}); err != nil {
			return errors.DatastoreError("failed to index message "+id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.DatastoreError("failed to load messages for indexing", err)
	}
	if err := idx.Batch(batch); err != nil {
		return errors.DatastoreError("failed to build messages index", err)
	}
	return nil
}

// buildQuery returns a Bleve query for the term: prefix queries per token
// for typeahead, match queries otherwise. Tokens are ANDed.
func buildQuery(q Query) query.Query {
	fields := strings.Fields(strings.ToLower(q.Term))
	subs := make([]query.Query, 0, len(fields))
	for _, tok := range fields {
		if q.Prefix {
			pq := bleve.NewPrefixQuery(tok)
			pq.SetField("text")
			subs = append(subs, pq)
		} else {
			mq := bleve.NewMatchQuery(tok)
			mq.SetField("text")
			subs = append(subs, mq)
		}
	}
	if len(subs) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	if len(subs) == 1 {
		return subs[0]
	}
	return bleve.NewConjunctionQuery(subs...)
}

// rankedIDs runs the query against idx and returns hit IDs in score order,
// fetching enough to survive post-filtering and pagination.
func rankedIDs(ctx context.Context, idx bleve.Index, q Query) ([]string, error) {
	bq := buildQuery(q)
	req := bleve.NewSearchRequest(bq)
	req.Size = (q.Skip + q.Limit) * 4
	if req.Size < 40 {
		req.Size = 40
	}

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.DatastoreError("index search failed", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// paginate applies skip and limit to an already ordered slice.
func paginate[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// SearchPeople returns active people matching the query term.
func (b *BleveStore) SearchPeople(ctx context.Context, q Query) ([]Person, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.New(errors.ErrCodeDatastoreUnavailable, "store is closed", nil)
	}

	ids, err := rankedIDs(ctx, b.people, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Person{}, nil
	}

	byID := make(map[string]Person, len(ids))
	for _, id := range ids {
		row := b.sql.db.QueryRowContext(ctx, `
			SELECT id, username, display_name, email, title, active, updated_at
			FROM people WHERE id = ? AND active = 1`, id)
		var p Person
		var active int
		var updatedAt string
		if err := row.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Email, &p.Title, &active, &updatedAt); err != nil {
			continue
		}
		p.Active = active != 0
		p.UpdatedAt = parseTime(updatedAt)
		byID[id] = p
	}

	ordered := make([]Person, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return paginate(ordered, q.Skip, q.Limit), nil
}

// SearchConversations returns active conversations matching the query term,
// restricted to the caller's conversations when a caller ID is present.
func (b *BleveStore) SearchConversations(ctx context.Context, q Query) ([]Conversation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.New(errors.ErrCodeDatastoreUnavailable, "store is closed", nil)
	}

	ids, err := rankedIDs(ctx, b.convs, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Conversation{}, nil
	}

	byID := make(map[string]Conversation, len(ids))
	for _, id := range ids {
		row := b.sql.db.QueryRowContext(ctx, `
			SELECT id, title, topic, participants, active, updated_at
			FROM conversations
			WHERE id = ? AND active = 1
			  AND (? = '' OR EXISTS (
				SELECT 1 FROM json_each(participants) WHERE json_each.value = ?
			  ))`, id, q.CallerID, q.CallerID)
		var c Conversation
		var active int
		var participants, updatedAt string
		if err := row.Scan(&c.ID, &c.Title, &c.Topic, &participants, &active, &updatedAt); err != nil {
			continue
		}
		c.Active = active != 0
		c.UpdatedAt = parseTime(updatedAt)
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			c.Participants = nil
		}
		byID[id] = c
	}

	ordered := make([]Conversation, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return paginate(ordered, q.Skip, q.Limit), nil
}

// SearchMessages returns messages matching the query term, restricted to
// conversations the caller participates in when a caller ID is present.
func (b *BleveStore) SearchMessages(ctx context.Context, q Query) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.New(errors.ErrCodeDatastoreUnavailable, "store is closed", nil)
	}

	ids, err := rankedIDs(ctx, b.msgs, q)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Message{}, nil
	}

	byID := make(map[string]Message, len(ids))
	for _, id := range ids {
		row := b.sql.db.QueryRowContext(ctx, `
			SELECT m.id, m.conversation_id, m.sender_id, m.body, m.sent_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE m.id = ?
			  AND (? = '' OR EXISTS (
				SELECT 1 FROM json_each(c.participants) WHERE json_each.value = ?
			  ))`, id, q.CallerID, q.CallerID)
		var m Message
		var sentAt string
		if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &sentAt); err != nil {
			continue
		}
		m.SentAt = parseTime(sentAt)
		byID[id] = m
	}

	ordered := make([]Message, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return paginate(ordered, q.Skip, q.Limit), nil
}

// Seed delegates to the SQLite store, then rebuilds the indexes so the
// Bleve view matches the new contents.
func (b *BleveStore) Seed(ctx context.Context, path string) (SeedCounts, error) {
	counts, err := b.sql.Seed(ctx, path)
	if err != nil {
		return SeedCounts{}, err
	}
	if err := b.rebuildIndexes(ctx); err != nil {
		return SeedCounts{}, err
	}
	return counts, nil
}

// Counts returns per-category row counts.
func (b *BleveStore) Counts(ctx context.Context) (Counts, error) {
	return b.sql.Counts(ctx)
}

// Close closes the indexes and the underlying SQLite store.
func (b *BleveStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, idx := range []bleve.Index{b.people, b.convs, b.msgs} {
		if idx != nil {
			_ = idx.Close()
		}
	}
	return b.sql.Close()
}

// String describes the backend for logs and status output.
func (b *BleveStore) String() string {
	return fmt.Sprintf("bleve over sqlite (%s)", b.sql.path)
}
