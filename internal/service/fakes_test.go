package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sakif/advice-board/internal/apperror"
	"github.com/sakif/advice-board/internal/model"
	"github.com/sakif/advice-board/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory implementations of the repository interfaces. They store
// copies so a service cannot change "persisted" state without calling
// Create or Update, and they count calls so tests can assert that nothing was written.

type fakeAdviceRepo struct {
	mu      sync.Mutex
	advices map[string]model.Advice

	saves   int
	deletes int

	// failWith, when set, is returned by every method.
	failWith error
	// lastSearch records the query passed to Search.
	lastSearch repository.SearchQuery
}

func newFakeAdviceRepo(seed ...model.Advice) *fakeAdviceRepo {
	r := &fakeAdviceRepo{advices: make(map[string]model.Advice)}
	for _, a := range seed {
		r.advices[a.ID] = cloneAdvice(a)
	}
	return r
}

func cloneAdvice(a model.Advice) model.Advice {
	replies := make([]model.Reply, len(a.Replies))
	copy(replies, a.Replies)
	a.Replies = replies
	return a
}

func (r *fakeAdviceRepo) FindByID(_ context.Context, id string) (*model.Advice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	a, ok := r.advices[id]
	if !ok {
		return nil, apperror.NotFound("advice", id)
	}
	out := cloneAdvice(a)
	return &out, nil
}

func (r *fakeAdviceRepo) FindAll(_ context.Context) ([]model.Advice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.sorted(func(model.Advice) bool { return true }), nil
}

func (r *fakeAdviceRepo) Search(_ context.Context, q repository.SearchQuery) ([]model.Advice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSearch = q
	if r.failWith != nil {
		return nil, r.failWith
	}
	contains := func(s, sub string) bool { return strings.Contains(strings.ToLower(s), strings.ToLower(sub)) }
	return r.sorted(func(a model.Advice) bool {
		if q.Text != "" && !contains(a.Title, q.Text) && !contains(a.Content, q.Text) {
			return false
		}
		if q.Title != "" && !contains(a.Title, q.Title) {
			return false
		}
		if q.Content != "" && !contains(a.Content, q.Content) {
			return false
		}
		if q.Anonymous != nil && a.Anonymous != *q.Anonymous {
			return false
		}
		return true
	}), nil
}

func (r *fakeAdviceRepo) sorted(keep func(model.Advice) bool) []model.Advice {
	out := make([]model.Advice, 0, len(r.advices))
	for _, a := range r.advices {
		if keep(a) {
			out = append(out, cloneAdvice(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *fakeAdviceRepo) Create(_ context.Context, a *model.Advice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.advices[a.ID]; ok {
		return apperror.Conflict("advice", a.ID)
	}
	r.advices[a.ID] = cloneAdvice(*a)
	return nil
}

// Update mirrors sqlstore: only an existing advice can be written, and its
// creator and creation time are kept.
func (r *fakeAdviceRepo) Update(_ context.Context, a *model.Advice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failWith != nil {
		return r.failWith
	}
	existing, ok := r.advices[a.ID]
	if !ok {
		return apperror.NotFound("advice", a.ID)
	}
	updated := cloneAdvice(*a)
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	r.advices[a.ID] = updated
	return nil
}

func (r *fakeAdviceRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.failWith != nil {
		return r.failWith
	}
	if _, ok := r.advices[id]; !ok {
		return apperror.NotFound("advice", id)
	}
	delete(r.advices, id)
	return nil
}

func (r *fakeAdviceRepo) get(id string) (model.Advice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.advices[id]
	return a, ok
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]model.User
	next  int

	failWith error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func conflictOn(field string) error {
	e := apperror.Conflict("user", "existing "+field)
	e.Field = field
	return e
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	return r.insertLocked(u)
}

func (r *fakeUserRepo) insertLocked(u *model.User) error {
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return conflictOn("username")
		}
		if existing.Email == u.Email {
			return conflictOn("email")
		}
	}
	r.next++
	u.ID = fmt.Sprintf("user-%d", r.next)
	r.users[u.ID] = *u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (r *fakeUserRepo) UpsertGitHub(_ context.Context, u *model.User) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return false, r.failWith
	}
	for _, existing := range r.users {
		if existing.GitHubID != nil && u.GitHubID != nil && *existing.GitHubID == *u.GitHubID {
			*u = existing
			return false, nil
		}
	}
	if err := r.insertLocked(u); err != nil {
		return false, err
	}
	return true, nil
}

var errStoreDown = errors.New("database is down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
