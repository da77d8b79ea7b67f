package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/advice-board/internal/apperror"
	"github.com/sakif/advice-board/internal/model"
	"github.com/sakif/advice-board/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB implements repository.UserRepository.
type UserDB struct {
	db *sqlx.DB
}

const selectUsers = `SELECT id, username, email, password_hash, github_id, registered_at FROM users`

// Create inserts user, assigning an ID and registration time when unset.
// A duplicate username, email or GitHub id yields apperror.Conflict with
// Field set to the column.
func (s *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.RegisteredAt.IsZero() {
		user.RegisteredAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, github_id, registered_at)
		VALUES (:id, :username, :email, :password_hash, :github_id, :registered_at)`,
		user,
	)
	if err != nil {
		if column, ok := uniqueViolation(err); ok {
			conflict := apperror.Conflict("user", "existing "+column)
			conflict.Field = column
			return conflict
		}
		return fmt.Errorf("sqlstore: inserting user %s: %w", user.ID, err)
	}
	return nil
}

func (s *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.getOne(ctx, `id = ?`, id, apperror.NotFound("user", id))
}

// GetByEmail matches the normalized (trimmed, lower-cased) address.
func (s *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.getOne(ctx, `email = ?`, email, apperror.NotFound("user", email))
}

// UpsertGitHub loads the account linked to user.GitHubID, or inserts user
// as a new account. An existing account keeps its username; only a
// changed, non-empty email is refreshed.
func (s *UserDB) UpsertGitHub(ctx context.Context, user *model.User) (bool, error) {
	if user.GitHubID == nil {
		return false, errors.New("sqlstore: upsert without github id")
	}

	existing, err := s.getOne(ctx, `github_id = ?`, *user.GitHubID, nil)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return false, err
	}

	if existing == nil {
		if err := s.Create(ctx, user); err != nil {
			return false, err
		}
		return true, nil
	}

	if user.Email != "" && user.Email != existing.Email {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET email = ? WHERE id = ?`), user.Email, existing.ID)
		if err != nil {
			if column, ok := uniqueViolation(err); ok {
				conflict := apperror.Conflict("user", "existing "+column)
				conflict.Field = column
				return false, conflict
			}
			return false, fmt.Errorf("sqlstore: updating email of user %s: %w", existing.ID, err)
		}
		existing.Email = user.Email
	}

	*user = *existing
	return false, nil
}

// getOne runs selectUsers with a single-argument condition. notFound is
// returned as-is for a missing row; nil selects a generic NotFound.
func (s *UserDB) getOne(ctx context.Context, cond string, arg any, notFound *apperror.AppError) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(selectUsers+` WHERE `+cond), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if notFound == nil {
				notFound = apperror.NotFound("user", fmt.Sprint(arg))
			}
			return nil, notFound
		}
		return nil, fmt.Errorf("sqlstore: getting user (%s): %w", cond, err)
	}
	return &u, nil
}

// uniqueViolation reports whether err is a unique constraint failure from
// either backend, and on which column.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return "", false
		}
		return constraintColumn(pgErr.ConstraintName + " " + pgErr.Detail), true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return constraintColumn(liteErr.Error()), true
		}
	}
	return "", false
}

func constraintColumn(msg string) string {
	for _, column := range []string{"github_id", "username", "email"} {
		if strings.Contains(msg, column) {
			return column
		}
	}
	return "id"
}
