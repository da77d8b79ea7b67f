// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces ownership, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Every mutation follows the same shape:
//
//	fetch → NotFound?  → policy.CanMutate → Forbidden?  → validate → InvalidInput?  → update
//
// so a caller who does not own an entity never learns whether their input
// was well-formed. Every entity handed back goes through redact exactly once.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/advice-board/internal/apperror"
	"github.com/sakif/advice-board/internal/model"
	"github.com/sakif/advice-board/internal/policy"
	"github.com/sakif/advice-board/internal/redact"
	"github.com/sakif/advice-board/internal/repository"
)

// Validation limits, counted in characters.
const (
	MaxTitleLength   = 200
	MaxContentLength = 5000
)

// AdviceInput is the body of a create request. Pointers distinguish
// "missing" from "empty"; every field is required.
type AdviceInput struct {
	Title     *string
	Content   *string
	Anonymous *bool
}

// AdvicePatch is a partial update. Only non-nil fields are applied.
//
// DecodeErr carries a request body that could not be read. It is returned
// only once the advice exists and belongs to the caller, like any other
// invalid input.
type AdvicePatch struct {
	Title     *string
	Content   *string
	Anonymous *bool
	DecodeErr error
}

// ReplyInput is the body of an add-reply request. Both fields are required.
// DecodeErr is reported after the parent advice is found.
type ReplyInput struct {
	Content   *string
	Anonymous *bool
	DecodeErr error
}

// ReplyPatch is a partial reply update. Only non-nil fields are applied.
// DecodeErr is reported after the ownership check, as in AdvicePatch.
type ReplyPatch struct {
	Content   *string
	Anonymous *bool
	DecodeErr error
}

// SearchParams are the raw search request values: either Q, or Key+Value.
type SearchParams struct {
	Q     string
	Key   string
	Value string
}

// AdviceService orchestrates advices and replies.
type AdviceService struct {
	repo   repository.AdviceRepository
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAdviceService creates an AdviceService.
func NewAdviceService(repo repository.AdviceRepository, logger *slog.Logger) *AdviceService {
	return &AdviceService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return xid.New().String() },
	}
}

// ListAdvices returns every advice, most recent first, redacted for viewerID.
// An empty viewerID is an unauthenticated reader.
func (s *AdviceService) ListAdvices(ctx context.Context, viewerID string) ([]redact.AdviceView, error) {
	advices, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.storeError("list advices", err)
	}
	return redact.Advices(advices, viewerID), nil
}

// GetAdvice returns one advice redacted for viewerID.
func (s *AdviceService) GetAdvice(ctx context.Context, id, viewerID string) (*redact.AdviceView, error) {
	advice, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view := redact.Advice(*advice, viewerID)
	return &view, nil
}

// CreateAdvice validates in and stores a new advice owned by callerID.
// Nothing is written when validation fails.
func (s *AdviceService) CreateAdvice(ctx context.Context, in AdviceInput, callerID string) (*redact.AdviceView, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, apperror.Unauthenticated()
	}

	title, err := requiredText("title", in.Title, MaxTitleLength)
	if err != nil {
		return nil, err
	}
	content, err := requiredText("content", in.Content, MaxContentLength)
	if err != nil {
		return nil, err
	}
	if in.Anonymous == nil {
		return nil, apperror.ValidationFailed("anonymous", "anonymous is required")
	}

	advice := &model.Advice{
		ID:        s.newID(),
		Title:     title,
		Content:   content,
		CreatedAt: s.now(),
		Anonymous: *in.Anonymous,
		CreatedBy: model.CreatorID(callerID),
		Replies:   []model.Reply{},
	}

	if err := s.repo.Create(ctx, advice); err != nil {
		return nil, s.storeError("create advice", err)
	}

	s.logger.Info("advice created",
		slog.String("id", advice.ID),
		slog.Bool("anonymous", advice.Anonymous),
	)

	view := redact.Advice(*advice, callerID)
	return &view, nil
}

// UpdateAdvice applies patch to the advice if callerID owns it.
func (s *AdviceService) UpdateAdvice(ctx context.Context, id string, patch AdvicePatch, callerID string) (*redact.AdviceView, error) {
	advice, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanMutate(advice, callerID) {
		return nil, apperror.Forbidden("you can only edit your own advice")
	}
	if patch.DecodeErr != nil {
		return nil, patch.DecodeErr
	}

	if patch.Title != nil {
		title, err := requiredText("title", patch.Title, MaxTitleLength)
		if err != nil {
			return nil, err
		}
		advice.Title = title
	}
	if patch.Content != nil {
		content, err := requiredText("content", patch.Content, MaxContentLength)
		if err != nil {
			return nil, err
		}
		advice.Content = content
	}
	if patch.Anonymous != nil {
		advice.Anonymous = *patch.Anonymous
	}

	if err := s.repo.Update(ctx, advice); err != nil {
		return nil, s.storeError("update advice", err, slog.String("id", id))
	}

	s.logger.Info("advice updated", slog.String("id", id))

	view := redact.Advice(*advice, callerID)
	return &view, nil
}

// DeleteAdvice removes the advice and its replies if callerID owns it.
func (s *AdviceService) DeleteAdvice(ctx context.Context, id, callerID string) error {
	advice, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !policy.CanMutate(advice, callerID) {
		return apperror.Forbidden("you can only delete your own advice")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storeError("delete advice", err, slog.String("id", id))
	}

	s.logger.Info("advice deleted", slog.String("id", id), slog.Int("replies", len(advice.Replies)))
	return nil
}

// AddReply appends a reply by callerID to the advice and returns the
// updated parent. Anyone authenticated may reply to any advice.
func (s *AdviceService) AddReply(ctx context.Context, adviceID string, in ReplyInput, callerID string) (*redact.AdviceView, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, apperror.Unauthenticated()
	}

	advice, err := s.find(ctx, adviceID)
	if err != nil {
		return nil, err
	}
	if in.DecodeErr != nil {
		return nil, in.DecodeErr
	}

	content, err := requiredText("content", in.Content, MaxContentLength)
	if err != nil {
		return nil, err
	}
	if in.Anonymous == nil {
		return nil, apperror.ValidationFailed("anonymous", "anonymous is required")
	}

	reply := model.Reply{
		ID:        s.newID(),
		Content:   content,
		CreatedAt: s.now(),
		Anonymous: *in.Anonymous,
		CreatedBy: model.CreatorID(callerID),
	}

	replies := make([]model.Reply, 0, len(advice.Replies)+1)
	replies = append(replies, advice.Replies...)
	advice.Replies = append(replies, reply)

	if err := s.repo.Update(ctx, advice); err != nil {
		return nil, s.storeError("add reply", err, slog.String("advice_id", adviceID))
	}

	s.logger.Info("reply added",
		slog.String("advice_id", adviceID),
		slog.String("reply_id", reply.ID),
	)

	view := redact.Advice(*advice, callerID)
	return &view, nil
}

// UpdateReply applies patch to a reply if callerID created that reply.
// Ownership of the parent advice plays no part.
func (s *AdviceService) UpdateReply(ctx context.Context, adviceID, replyID string, patch ReplyPatch, callerID string) (*redact.AdviceView, error) {
	advice, idx, err := s.findReply(ctx, adviceID, replyID)
	if err != nil {
		return nil, err
	}
	if !policy.CanMutate(advice.Replies[idx], callerID) {
		return nil, apperror.Forbidden("you can only edit your own reply")
	}
	if patch.DecodeErr != nil {
		return nil, patch.DecodeErr
	}

	reply := advice.Replies[idx]
	if patch.Content != nil {
		content, err := requiredText("content", patch.Content, MaxContentLength)
		if err != nil {
			return nil, err
		}
		reply.Content = content
	}
	if patch.Anonymous != nil {
		reply.Anonymous = *patch.Anonymous
	}

	replies := make([]model.Reply, len(advice.Replies))
	copy(replies, advice.Replies)
	replies[idx] = reply
	advice.Replies = replies

	if err := s.repo.Update(ctx, advice); err != nil {
		return nil, s.storeError("update reply", err, slog.String("advice_id", adviceID), slog.String("reply_id", replyID))
	}

	s.logger.Info("reply updated", slog.String("advice_id", adviceID), slog.String("reply_id", replyID))

	view := redact.Advice(*advice, callerID)
	return &view, nil
}

// DeleteReply removes a reply if callerID created it. Sibling replies keep
// their ids and order.
func (s *AdviceService) DeleteReply(ctx context.Context, adviceID, replyID, callerID string) (*redact.AdviceView, error) {
	advice, idx, err := s.findReply(ctx, adviceID, replyID)
	if err != nil {
		return nil, err
	}
	if !policy.CanMutate(advice.Replies[idx], callerID) {
		return nil, apperror.Forbidden("you can only delete your own reply")
	}

	advice.Replies = model.WithoutReply(advice.Replies, replyID)

	if err := s.repo.Update(ctx, advice); err != nil {
		return nil, s.storeError("delete reply", err, slog.String("advice_id", adviceID), slog.String("reply_id", replyID))
	}

	s.logger.Info("reply deleted", slog.String("advice_id", adviceID), slog.String("reply_id", replyID))

	view := redact.Advice(*advice, callerID)
	return &view, nil
}

// SearchAdvices runs one of the fixed filters:
//
//	q=<text>                       title or content contains text
//	key=title|content&value=<text> that field contains text
//	key=anonymous&value=true|false anonymity flag
//
// There is no key for the creator.
func (s *AdviceService) SearchAdvices(ctx context.Context, p SearchParams, viewerID string) ([]redact.AdviceView, error) {
	q, err := buildSearchQuery(p)
	if err != nil {
		return nil, err
	}

	advices, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, s.storeError("search advices", err)
	}
	return redact.Advices(advices, viewerID), nil
}

func buildSearchQuery(p SearchParams) (repository.SearchQuery, error) {
	text := strings.TrimSpace(p.Q)
	key := strings.ToLower(strings.TrimSpace(p.Key))
	value := strings.TrimSpace(p.Value)

	switch {
	case text != "" && key != "":
		return repository.SearchQuery{}, apperror.ValidationFailed("q", "use either q or key and value, not both")
	case text != "":
		return repository.SearchQuery{Text: text}, nil
	case key == "":
		return repository.SearchQuery{}, apperror.ValidationFailed("q", "a search term is required")
	case value == "":
		return repository.SearchQuery{}, apperror.ValidationFailed("value", "value is required")
	}

	switch key {
	case "title":
		return repository.SearchQuery{Title: value}, nil
	case "content":
		return repository.SearchQuery{Content: value}, nil
	case "anonymous":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return repository.SearchQuery{}, apperror.ValidationFailed("value", "value must be true or false")
		}
		return repository.SearchQuery{Anonymous: &b}, nil
	}
	return repository.SearchQuery{}, apperror.ValidationFailed("key", fmt.Sprintf("cannot search by %q", key))
}

func (s *AdviceService) find(ctx context.Context, id string) (*model.Advice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NotFound("advice", id)
	}
	advice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError("find advice", err, slog.String("id", id))
	}
	return advice, nil
}

func (s *AdviceService) findReply(ctx context.Context, adviceID, replyID string) (*model.Advice, int, error) {
	advice, err := s.find(ctx, adviceID)
	if err != nil {
		return nil, -1, err
	}
	idx := advice.ReplyIndex(replyID)
	if idx < 0 {
		return nil, -1, apperror.NotFound("reply", replyID)
	}
	return advice, idx, nil
}

// storeError passes typed repository errors (NotFound, Conflict) through
// and turns anything else into a logged Internal error.
func (s *AdviceService) storeError(op string, err error, attrs ...any) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
	return apperror.Internal(fmt.Errorf("%s: %w", op, err))
}

// requiredText trims *v and checks it is present, non-blank and at most max
// characters long.
func requiredText(field string, v *string, max int) (string, error) {
	if v == nil {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" must not be empty")
	}
	if utf8.RuneCountInString(s) > max {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or less", field, max))
	}
	return s, nil
}
