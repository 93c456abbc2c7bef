package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluetali/beacon/internal/config"
	beaconerrors "github.com/bluetali/beacon/internal/errors"
)

func storeConfig(backend, path string) config.StoreConfig {
	return config.StoreConfig{Backend: backend, Path: path}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeSeedFile writes a seed document to a temp file and returns its path.
func writeSeedFile(t *testing.T, seed seedFile) string {
	t.Helper()
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testSeed() seedFile {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return seedFile{
		People: []Person{
			{ID: "u1", Username: "avasquez", DisplayName: "Ana Vasquez", Email: "ana@example.com", Title: "Engineer", Active: true, UpdatedAt: now},
			{ID: "u2", Username: "bchen", DisplayName: "Bo Chen", Email: "bo@example.com", Title: "Designer", Active: true, UpdatedAt: now},
			{ID: "u3", Username: "anatoly", DisplayName: "Anatoly Petrov", Email: "anatoly@example.com", Active: false, UpdatedAt: now},
		},
		Conversations: []Conversation{
			{ID: "c1", Title: "Launch planning", Topic: "release", Participants: []string{"u1", "u2"}, Active: true, UpdatedAt: now},
			{ID: "c2", Title: "Design sync", Topic: "planning docs", Participants: []string{"u2"}, Active: true, UpdatedAt: now},
			{ID: "c3", Title: "Old planning thread", Participants: []string{"u1"}, Active: false, UpdatedAt: now},
		},
		Messages: []Message{
			{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: "the launch plan looks good", SentAt: now},
			{ID: "m2", ConversationID: "c2", SenderID: "u2", Body: "updated the planning doc", SentAt: now.Add(time.Minute)},
		},
	}
}

// openSeeded creates a store with the given strategy and loads the standard
// fixture into it.
func openSeeded(t *testing.T, useIndex bool) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("", useIndex, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	counts, err := s.Seed(context.Background(), writeSeedFile(t, testSeed()))
	require.NoError(t, err)
	require.Equal(t, 3, counts.People)
	require.Equal(t, 3, counts.Conversations)
	require.Equal(t, 2, counts.Messages)
	return s
}

func TestSQLiteStore_SearchPeople_BothStrategies(t *testing.T) {
	for _, useIndex := range []bool{true, false} {
		name := "like"
		if useIndex {
			name = "fts5"
		}
		t.Run(name, func(t *testing.T) {
			// Given a seeded store
			s := openSeeded(t, useIndex)

			// When searching for a username prefix
			people, err := s.SearchPeople(context.Background(), Query{Term: "ana", Limit: 10})

			// Then only the active match comes back
			require.NoError(t, err)
			require.Len(t, people, 1)
			assert.Equal(t, "u1", people[0].ID)
			assert.Equal(t, "Ana Vasquez", people[0].DisplayName)
		})
	}
}

func TestSQLiteStore_SearchPeople_ExcludesInactive(t *testing.T) {
	s := openSeeded(t, true)

	people, err := s.SearchPeople(context.Background(), Query{Term: "anatoly", Limit: 10})

	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestSQLiteStore_SearchConversations_CallerVisibility(t *testing.T) {
	for _, useIndex := range []bool{true, false} {
		name := "like"
		if useIndex {
			name = "fts5"
		}
		t.Run(name, func(t *testing.T) {
			s := openSeeded(t, useIndex)
			ctx := context.Background()

			// u1 participates only in c1 (c3 matches but is inactive)
			convs, err := s.SearchConversations(ctx, Query{Term: "planning", CallerID: "u1", Limit: 10})
			require.NoError(t, err)
			require.Len(t, convs, 1)
			assert.Equal(t, "c1", convs[0].ID)

			// u2 sees both active planning conversations
			convs, err = s.SearchConversations(ctx, Query{Term: "planning", CallerID: "u2", Limit: 10})
			require.NoError(t, err)
			assert.Len(t, convs, 2)

			// No caller means no visibility restriction
			convs, err = s.SearchConversations(ctx, Query{Term: "planning", Limit: 10})
			require.NoError(t, err)
			assert.Len(t, convs, 2)
		})
	}
}

func TestSQLiteStore_SearchMessages_CallerVisibility(t *testing.T) {
	s := openSeeded(t, true)
	ctx := context.Background()

	// u1 is only in c1, so the c2 message is invisible
	msgs, err := s.SearchMessages(ctx, Query{Term: "plan", CallerID: "u1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	msgs, err = s.SearchMessages(ctx, Query{Term: "plan", CallerID: "u2", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSQLiteStore_FTSSpecialCharsDegradeToEmpty(t *testing.T) {
	s := openSeeded(t, true)

	// FTS5 operator soup must not surface as an error
	people, err := s.SearchPeople(context.Background(), Query{Term: `"((` + "`" + `NEAR`, Limit: 10})

	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestSQLiteStore_LikeEscapesMetacharacters(t *testing.T) {
	s, err := NewSQLiteStore("", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	seed := seedFile{People: []Person{
		{ID: "u1", Username: "pct_user", DisplayName: "100% Legit", Email: "pct@example.com", Active: true},
		{ID: "u2", Username: "other", DisplayName: "Other Person", Email: "other@example.com", Active: true},
	}}
	_, err = s.Seed(context.Background(), writeSeedFile(t, seed))
	require.NoError(t, err)

	// A literal % must not act as a wildcard
	people, err := s.SearchPeople(context.Background(), Query{Term: "100%", Limit: 10})
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "u1", people[0].ID)
}

func TestSQLiteStore_SeedReplacesContents(t *testing.T) {
	s := openSeeded(t, true)
	ctx := context.Background()

	replacement := seedFile{People: []Person{
		{ID: "u9", Username: "zara", DisplayName: "Zara Ahmed", Email: "zara@example.com", Active: true},
	}}
	counts, err := s.Seed(ctx, writeSeedFile(t, replacement))
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total())

	// Old rows are gone from both table and index
	people, err := s.SearchPeople(ctx, Query{Term: "ana", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, people)

	people, err = s.SearchPeople(ctx, Query{Term: "zara", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestSQLiteStore_SeedRejectsInvalidInput(t *testing.T) {
	s, err := NewSQLiteStore("", true, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := s.Seed(ctx, filepath.Join(t.TempDir(), "nope.json"))
		var be *beaconerrors.BeaconError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, beaconerrors.ErrCodeSeedInvalid, be.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := s.Seed(ctx, path)
		var be *beaconerrors.BeaconError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, beaconerrors.ErrCodeSeedInvalid, be.Code)
	})

	t.Run("duplicate id", func(t *testing.T) {
		seed := seedFile{People: []Person{
			{ID: "dup", Username: "a", DisplayName: "A", Email: "a@example.com", Active: true},
			{ID: "dup", Username: "b", DisplayName: "B", Email: "b@example.com", Active: true},
		}}
		_, err := s.Seed(ctx, writeSeedFile(t, seed))
		var be *beaconerrors.BeaconError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, beaconerrors.ErrCodeSeedInvalid, be.Code)
	})

	t.Run("failed seed leaves previous contents", func(t *testing.T) {
		_, err := s.Seed(ctx, writeSeedFile(t, testSeed()))
		require.NoError(t, err)

		bad := seedFile{People: []Person{{Username: "noid"}}}
		_, err = s.Seed(ctx, writeSeedFile(t, bad))
		require.Error(t, err)

		counts, err := s.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, counts.People)
	})
}

func TestSQLiteStore_Pagination(t *testing.T) {
	s, err := NewSQLiteStore("", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	seed := seedFile{}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seed.People = append(seed.People, Person{
			ID:          string(rune('a' + i)),
			Username:    "pager",
			DisplayName: "Pager Person",
			Email:       "pager@example.com",
			Active:      true,
			UpdatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	_, err = s.Seed(ctx, writeSeedFile(t, seed))
	require.NoError(t, err)

	page1, err := s.SearchPeople(ctx, Query{Term: "pager", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := s.SearchPeople(ctx, Query{Term: "pager", Skip: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)

	page3, err := s.SearchPeople(ctx, Query{Term: "pager", Skip: 4, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestSQLiteStore_Counts(t *testing.T) {
	s := openSeeded(t, true)

	counts, err := s.Counts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, counts.People)
	assert.Equal(t, 3, counts.Conversations)
	assert.Equal(t, 2, counts.Messages)
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	s, err := NewSQLiteStore("", true, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.SearchPeople(context.Background(), Query{Term: "x", Limit: 1})
	require.Error(t, err)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	s, err := NewSQLiteStore(path, true, testLogger())
	require.NoError(t, err)
	_, err = s.Seed(context.Background(), writeSeedFile(t, testSeed()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, true, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	counts, err := reopened.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, counts.Total())
}

func TestBleveStore_SearchAndVisibility(t *testing.T) {
	b, err := NewBleveStore("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	_, err = b.Seed(ctx, writeSeedFile(t, testSeed()))
	require.NoError(t, err)

	people, err := b.SearchPeople(ctx, Query{Term: "ana", Prefix: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "u1", people[0].ID)

	convs, err := b.SearchConversations(ctx, Query{Term: "planning", CallerID: "u1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)

	msgs, err := b.SearchMessages(ctx, Query{Term: "plan", Prefix: true, CallerID: "u2", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestBuildMatchExpr(t *testing.T) {
	tests := []struct {
		term string
		want string
	}{
		{"alice", `"alice"*`},
		{"launch plan", `"launch"* "plan"*`},
		{`dro"p`, `"drop"*`},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buildMatchExpr(tt.term), "term %q", tt.term)
	}
}

func TestOpen_BackendSelection(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{"fts5", false},
		{"like", false},
		{"bleve", false},
		{"", false},
		{"elastic", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := storeConfig(tt.backend, filepath.Join(dir, tt.backend+".db"))
			s, err := Open(cfg, testLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}
}
