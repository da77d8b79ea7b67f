// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (sqlstore).
//
// Lookups of a missing record return an apperror.NotFound; unique
// constraint violations return an apperror.Conflict whose Field names the
// offending column. An empty search is an apperror.ValidationFailed. Anything else is an infrastructure failure wrapped with
// the implementation's prefix.
package repository

import (
	"context"

	"github.com/sakif/advice-board/internal/model"
)

// SearchQuery is the closed set of advice filters. Non-empty fields are
// combined with AND. There is intentionally no filter on the creator.
type SearchQuery struct {
	Text      string // substring of title or content, case-insensitive
	Title     string // substring of title, case-insensitive
	Content   string // substring of content, case-insensitive
	Anonymous *bool
}

// IsEmpty reports whether q filters nothing. Search rejects such a query
// rather than returning every advice.
func (q SearchQuery) IsEmpty() bool {
	return q.Text == "" && q.Title == "" && q.Content == "" && q.Anonymous == nil
}

// AdviceRepository persists advices together with their replies.
//
// Creator references come back populated (model.EmbeddedCreator) when the
// user is known, and as a bare id otherwise.
type AdviceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Advice, error)
	// FindAll returns every advice, most recent first.
	FindAll(ctx context.Context) ([]model.Advice, error)
	Search(ctx context.Context, q SearchQuery) ([]model.Advice, error)
	// Create inserts a new advice.
	Create(ctx context.Context, advice *model.Advice) error
	// Update replaces the mutable part of an existing advice (title,
	// content, anonymous, replies) in a single write. The creator and
	// creation time are never changed. A missing advice is NotFound, so a
	// write that lost a race with Delete cannot bring the advice back.
	Update(ctx context.Context, advice *model.Advice) error
	// Delete removes the advice and, with it, all of its replies.
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHub loads the user owning user.GitHubID into user, or creates
	// it from the given fields when there is none. created reports which.
	UpsertGitHub(ctx context.Context, user *model.User) (created bool, err error)
}
