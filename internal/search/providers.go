package search

import (
	"context"

	"github.com/bluetali/beacon/internal/errors"
	"github.com/bluetali/beacon/internal/store"
)

// Provider runs one category's sub-search. Providers are registered in a
// fixed order; that order breaks score ties in the combined list.
type Provider interface {
	Category() store.Category
	Search(ctx context.Context, q store.Query) ([]Item, error)
}

// NewProviders returns the standard provider set over a store, in
// registration order: people, conversations, messages.
func NewProviders(st store.EntityStore, retry errors.RetryConfig) []Provider {
	return []Provider{
		&peopleProvider{store: st, retry: retry},
		&conversationProvider{store: st, retry: retry},
		&messageProvider{store: st, retry: retry},
	}
}

type peopleProvider struct {
	store store.EntityStore
	retry errors.RetryConfig
}

func (p *peopleProvider) Category() store.Category { return store.CategoryPeople }

func (p *peopleProvider) Search(ctx context.Context, q store.Query) ([]Item, error) {
	people, err := errors.RetryWithResult(ctx, p.retry, func() ([]store.Person, error) {
		return p.store.SearchPeople(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(people))
	for _, person := range people {
		item := Item{
			ID:       person.ID,
			Category: store.CategoryPeople,
			Title:    person.DisplayName,
			Fields: []Field{
				{Name: "username", Value: person.Username},
				{Name: "display_name", Value: person.DisplayName},
				{Name: "email", Value: person.Email},
				{Name: "title", Value: person.Title},
			},
			UpdatedAt: person.UpdatedAt,
		}
		scoreItem(&item, q.Term)
		items = append(items, item)
	}
	sortByScore(items)
	return items, nil
}

type conversationProvider struct {
	store store.EntityStore
	retry errors.RetryConfig
}

func (p *conversationProvider) Category() store.Category { return store.CategoryConversations }

func (p *conversationProvider) Search(ctx context.Context, q store.Query) ([]Item, error) {
	convs, err := errors.RetryWithResult(ctx, p.retry, func() ([]store.Conversation, error) {
		return p.store.SearchConversations(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(convs))
	for _, conv := range convs {
		item := Item{
			ID:       conv.ID,
			Category: store.CategoryConversations,
			Title:    conv.Title,
			Fields: []Field{
				{Name: "title", Value: conv.Title},
				{Name: "topic", Value: conv.Topic},
			},
			UpdatedAt: conv.UpdatedAt,
		}
		scoreItem(&item, q.Term)
		items = append(items, item)
	}
	sortByScore(items)
	return items, nil
}

type messageProvider struct {
	store store.EntityStore
	retry errors.RetryConfig
}

func (p *messageProvider) Category() store.Category { return store.CategoryMessages }

func (p *messageProvider) Search(ctx context.Context, q store.Query) ([]Item, error) {
	msgs, err := errors.RetryWithResult(ctx, p.retry, func() ([]store.Message, error) {
		return p.store.SearchMessages(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(msgs))
	for _, msg := range msgs {
		item := Item{
			ID:       msg.ID,
			Category: store.CategoryMessages,
			Title:    msg.Body,
			Fields: []Field{
				{Name: "body", Value: msg.Body},
			},
			UpdatedAt: msg.SentAt,
		}
		scoreItem(&item, q.Term)
		items = append(items, item)
	}
	sortByScore(items)
	return items, nil
}
