package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/sakif/advice-board/internal/auth"
	"github.com/sakif/advice-board/internal/handler"
	"github.com/sakif/advice-board/internal/model"
	"github.com/sakif/advice-board/internal/redact"
	"github.com/sakif/advice-board/internal/service"
)

// =========================================================================
// MOCK SERVICES
// =========================================================================

type MockAdviceService struct {
	mock.Mock
}

func (m *MockAdviceService) ListAdvices(ctx context.Context, viewerID string) ([]redact.AdviceView, error) {
	args := m.Called(ctx, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) GetAdvice(ctx context.Context, id, viewerID string) (*redact.AdviceView, error) {
	args := m.Called(ctx, id, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) CreateAdvice(ctx context.Context, in service.AdviceInput, callerID string) (*redact.AdviceView, error) {
	args := m.Called(ctx, in, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) UpdateAdvice(ctx context.Context, id string, patch service.AdvicePatch, callerID string) (*redact.AdviceView, error) {
	args := m.Called(ctx, id, patch, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) DeleteAdvice(ctx context.Context, id, callerID string) error {
	return m.Called(ctx, id, callerID).Error(0)
}

func (m *MockAdviceService) AddReply(ctx context.Context, adviceID string, in service.ReplyInput, callerID string) (*redact.AdviceView, error) {
	args := m.Called(ctx, adviceID, in, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) UpdateReply(ctx context.Context, adviceID, replyID string, patch service.ReplyPatch, callerID string) (*redact.AdviceView, error) {
	args := m.Called(ctx, adviceID, replyID, patch, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) DeleteReply(ctx context.Context, adviceID, replyID, callerID string) (*redact.AdviceView, error) {
	args := m.Called(ctx, adviceID, replyID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redact.AdviceView), args.Error(1)
}

func (m *MockAdviceService) SearchAdvices(ctx context.Context, p service.SearchParams, viewerID string) ([]redact.AdviceView, error) {
	args := m.Called(ctx, p, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]redact.AdviceView), args.Error(1)
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, in service.RegisterInput) (*model.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, id auth.Identity) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.AuthResult, error) {
	args := m.Called(ctx, gh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuthResult), args.Error(1)
}

type MockGitHub struct {
	mock.Mock
}

func (m *MockGitHub) AuthURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockGitHub) Exchange(ctx context.Context, code string) (*auth.GitHubUser, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.GitHubUser), args.Error(1)
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// as returns middleware that signs every request in as userID, standing in
// for RequireAuth. An empty userID leaves the request anonymous.
func as(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: userID, TokenID: "jti-" + userID}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adviceRouter mounts h on the same paths the server uses.
func adviceRouter(h *handler.AdviceHandler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(as(userID))
	r.Get("/api/advices", h.HandleList)
	r.Get("/api/advices/search", h.HandleSearch)
	r.Post("/api/advices", h.HandleCreate)
	r.Get("/api/advices/{id}", h.HandleGet)
	r.Put("/api/advices/{id}", h.HandleUpdate)
	r.Delete("/api/advices/{id}", h.HandleDelete)
	r.Post("/api/advices/{id}/replies", h.HandleAddReply)
	r.Put("/api/advices/{id}/replies/{replyId}", h.HandleUpdateReply)
	r.Delete("/api/advices/{id}/replies/{replyId}", h.HandleDeleteReply)
	return r
}
