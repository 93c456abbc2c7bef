// Package store provides the entity store behind the search engine: people,
// conversations, and messages persisted in SQLite, searchable through an
// FTS5 index, a case-insensitive LIKE fallback, or a Bleve index. All three
// strategies produce the same output shape.
package store

import (
	"context"
	"time"
)

// Category identifies one searchable entity class.
type Category string

const (
	CategoryPeople        Category = "people"
	CategoryConversations Category = "conversations"
	CategoryMessages      Category = "messages"
)

// Person is a searchable workspace member.
type Person struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Title       string    `json:"title,omitempty"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation is a searchable channel or group chat.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Topic        string    `json:"topic,omitempty"`
	Participants []string  `json:"participants"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single searchable chat message. Visibility follows the
// parent conversation's participant list.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// Query is one category lookup request.
type Query struct {
	// Term is the trimmed search term.
	Term string

	// CallerID restricts conversations and messages to those the caller
	// participates in. Empty means no visibility filter.
	CallerID string

	// Prefix restricts matching to prefix-only (typeahead mode).
	Prefix bool

	Skip  int
	Limit int
}

// Counts summarizes store contents per category.
type Counts struct {
	People        int `json:"people"`
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// SeedCounts reports how many entities a seed load inserted.
type SeedCounts struct {
	People        int `json:"people"`
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// Total returns the number of entities across all categories.
func (c Counts) Total() int {
	return c.People + c.Conversations + c.Messages
}

// Total returns the number of entities a seed load inserted.
func (c SeedCounts) Total() int {
	return c.People + c.Conversations + c.Messages
}

// EntityStore is the lookup service consumed by the search coordinator.
// Implementations must be safe for concurrent use.
type EntityStore interface {
	SearchPeople(ctx context.Context, q Query) ([]Person, error)
	SearchConversations(ctx context.Context, q Query) ([]Conversation, error)
	SearchMessages(ctx context.Context, q Query) ([]Message, error)

	// Seed replaces store contents from a JSON seed file.
	Seed(ctx context.Context, path string) (SeedCounts, error)

	Counts(ctx context.Context) (Counts, error)
	Close() error
}
