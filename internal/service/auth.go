package service

// AuthService is the business logic for accounts and sessions:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT), PasswordService (bcrypt)
//	                                 ↘ Revoker (logout)
//
// Two ways in: email + password (Register / Login), and GitHub sign-in
// (LoginOrRegisterGitHub). Both end with the same kind of signed token.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/advice-board/internal/apperror"
	"github.com/sakif/advice-board/internal/auth"
	"github.com/sakif/advice-board/internal/model"
	"github.com/sakif/advice-board/internal/repository"
)

// maxUsernameAttempts bounds the suffixes tried when a GitHub login
// collides with an existing username.
const maxUsernameAttempts = 10

// Revoker invalidates a token before it expires. *auth.Verifier implements it.
type Revoker interface {
	Revoke(ctx context.Context, id auth.Identity) error
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=255"`
	Email    string `json:"email"    validate:"required,email,min=6,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginInput is the login request.
type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult bundles the user and the token issued for them.
type AuthResult struct {
	User  *model.User
	Token string
}

type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	revoker   Revoker
	logger    *slog.Logger
}

// NewAuthService creates an AuthService. revoker may be nil, in which case
// Logout has nothing to do.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	revoker Revoker,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		revoker:   revoker,
		logger:    logger,
	}
}

// Register creates a password account. The email is stored trimmed and
// lower-cased; a taken email or username is a Conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, emailTaken()
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, s.internal("register: checking email", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, s.internal("register: hashing password", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, s.internal("register: creating user", err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login checks email and password and issues a token. An unknown email and
// a wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, s.internal("login: loading user", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password check failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
		return nil, apperror.InvalidCredentials()
	}

	return s.issue(user)
}

// Logout revokes the token the caller authenticated with.
func (s *AuthService) Logout(ctx context.Context, id auth.Identity) error {
	if s.revoker == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, id); err != nil {
		return s.internal("logout: revoking token", err)
	}
	s.logger.Info("user logged out", slog.String("user_id", id.UserID))
	return nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, s.internal("me: loading user", err)
	}
	return user, nil
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub profile,
// creating it on first sign-in. The username is the GitHub login, suffixed
// with -2, -3... when taken.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	ghID := gh.ID
	email := normalizeEmail(gh.Email)
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}
	base := strings.TrimSpace(gh.Login)
	if base == "" {
		base = fmt.Sprintf("github-%d", gh.ID)
	}

	for attempt := 1; attempt <= maxUsernameAttempts; attempt++ {
		username := base
		if attempt > 1 {
			username = fmt.Sprintf("%s-%d", base, attempt)
		}

		user := &model.User{Username: username, Email: email, GitHubID: &ghID}
		created, err := s.users.UpsertGitHub(ctx, user)
		if err == nil {
			if created {
				s.logger.Info("user registered via github", slog.String("user_id", user.ID), slog.Int64("github_id", ghID))
			}
			return s.issue(user)
		}

		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) {
			if appErr.Field == "username" {
				continue
			}
			return nil, err
		}
		return nil, s.internal("github: upserting user", err)
	}

	return nil, apperror.Conflict("user", "username "+base)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
	if err != nil {
		return nil, s.internal("issuing token", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) internal(op string, err error) error {
	s.logger.Error(op+" failed", slog.String("error", err.Error()))
	return apperror.Internal(fmt.Errorf("%s: %w", op, err))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailTaken() error {
	e := apperror.Conflict("user", "existing email")
	e.Field = "email"
	return e
}
