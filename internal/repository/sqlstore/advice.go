package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/advice-board/internal/apperror"
	"github.com/sakif/advice-board/internal/model"
	"github.com/sakif/advice-board/internal/repository"
)

var _ repository.AdviceRepository = (*AdviceDB)(nil)

// AdviceDB implements repository.AdviceRepository.
type AdviceDB struct {
	db *sqlx.DB
}

// adviceRow is one row of the advices table with the creator's username
// joined in. creator_username is NULL when the user no longer exists.
type adviceRow struct {
	ID              string         `db:"id"`
	Title           string         `db:"title"`
	Content         string         `db:"content"`
	Anonymous       bool           `db:"anonymous"`
	CreatedBy       string         `db:"created_by"`
	CreatorUsername sql.NullString `db:"creator_username"`
	CreatedAt       time.Time      `db:"created_at"`
	Replies         replyList      `db:"replies"`
}

const selectAdvices = `
	SELECT a.id, a.title, a.content, a.anonymous, a.created_by,
	       u.username AS creator_username, a.created_at, a.replies
	FROM advices a
	LEFT JOIN users u ON u.id = a.created_by`

const orderRecentFirst = ` ORDER BY a.created_at DESC, a.id DESC`

// FindByID loads one advice with its replies.
func (s *AdviceDB) FindByID(ctx context.Context, id string) (*model.Advice, error) {
	var row adviceRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectAdvices+` WHERE a.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("advice", id)
		}
		return nil, fmt.Errorf("sqlstore: getting advice %s: %w", id, err)
	}

	advices, err := s.hydrate(ctx, []adviceRow{row})
	if err != nil {
		return nil, err
	}
	return &advices[0], nil
}

// FindAll returns every advice, most recent first.
func (s *AdviceDB) FindAll(ctx context.Context) ([]model.Advice, error) {
	var rows []adviceRow
	if err := s.db.SelectContext(ctx, &rows, selectAdvices+orderRecentFirst); err != nil {
		return nil, fmt.Errorf("sqlstore: listing advices: %w", err)
	}
	return s.hydrate(ctx, rows)
}

// Search applies the filters in q. Substring matches are case-insensitive
// and treat % and _ in the input literally.
func (s *AdviceDB) Search(ctx context.Context, q repository.SearchQuery) ([]model.Advice, error) {
	if q.IsEmpty() {
		return nil, apperror.ValidationFailed("q", "a search term is required")
	}

	var (
		where []string
		args  []any
	)

	if q.Text != "" {
		p := likePattern(q.Text)
		where = append(where, `(LOWER(a.title) LIKE ? ESCAPE '\' OR LOWER(a.content) LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if q.Title != "" {
		where = append(where, `LOWER(a.title) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Title))
	}
	if q.Content != "" {
		where = append(where, `LOWER(a.content) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q.Content))
	}
	if q.Anonymous != nil {
		where = append(where, `a.anonymous = ?`)
		args = append(args, *q.Anonymous)
	}

	query := selectAdvices + ` WHERE ` + strings.Join(where, ` AND `) + orderRecentFirst

	var rows []adviceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: searching advices: %w", err)
	}
	return s.hydrate(ctx, rows)
}

// Create inserts a new advice, assigning an id and creation time when
// they are unset.
func (s *AdviceDB) Create(ctx context.Context, advice *model.Advice) error {
	if advice.ID == "" {
		advice.ID = xid.New().String()
	}
	if advice.CreatedAt.IsZero() {
		advice.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO advices (id, title, content, anonymous, created_by, created_at, replies)
		VALUES (:id, :title, :content, :anonymous, :created_by, :created_at, :replies)`,
		toAdviceRow(advice),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating advice %s: %w", advice.ID, err)
	}
	return nil
}

// Update rewrites title, content, anonymous and replies of an existing row.
// It never inserts: an advice deleted in the meantime stays deleted.
func (s *AdviceDB) Update(ctx context.Context, advice *model.Advice) error {
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE advices SET
			title     = :title,
			content   = :content,
			anonymous = :anonymous,
			replies   = :replies
		WHERE id = :id`,
		toAdviceRow(advice),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating advice %s: %w", advice.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking update result for %s: %w", advice.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("advice", advice.ID)
	}
	return nil
}

func toAdviceRow(advice *model.Advice) adviceRow {
	return adviceRow{
		ID:        advice.ID,
		Title:     advice.Title,
		Content:   advice.Content,
		Anonymous: advice.Anonymous,
		CreatedBy: advice.CreatedBy.ResolveID(),
		CreatedAt: advice.CreatedAt.UTC(),
		Replies:   toStoredReplies(advice.Replies),
	}
}

// Delete removes the advice row; its replies live in that row and go with it.
func (s *AdviceDB) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM advices WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting advice %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking delete result for %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("advice", id)
	}
	return nil
}

// hydrate converts rows to models and populates every reply creator with a
// single IN lookup.
func (s *AdviceDB) hydrate(ctx context.Context, rows []adviceRow) ([]model.Advice, error) {
	names, err := s.replyCreatorNames(ctx, rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.Advice, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Advice{
			ID:        r.ID,
			Title:     r.Title,
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
			Anonymous: r.Anonymous,
			CreatedBy: creatorRef(r.CreatedBy, r.CreatorUsername.String),
			Replies:   toModelReplies(r.Replies, names),
		})
	}
	return out, nil
}

func (s *AdviceDB) replyCreatorNames(ctx context.Context, rows []adviceRow) (map[string]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range rows {
		for _, reply := range r.Replies {
			if reply.CreatedBy == "" {
				continue
			}
			if _, ok := seen[reply.CreatedBy]; ok {
				continue
			}
			seen[reply.CreatedBy] = struct{}{}
			ids = append(ids, reply.CreatedBy)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, username FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building reply creator lookup: %w", err)
	}

	var users []struct {
		ID       string `db:"id"`
		Username string `db:"username"`
	}
	if err := s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: looking up reply creators: %w", err)
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
