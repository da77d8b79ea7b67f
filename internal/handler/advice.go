package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/advice-board/internal/auth"
	"github.com/sakif/advice-board/internal/redact"
	"github.com/sakif/advice-board/internal/service"
)

// AdviceService is what AdviceHandler needs from the business layer.
//
// The interface lives here, with its consumer, so tests can swap in a
// testify mock. *service.AdviceService satisfies it.
type AdviceService interface {
	ListAdvices(ctx context.Context, viewerID string) ([]redact.AdviceView, error)
	GetAdvice(ctx context.Context, id, viewerID string) (*redact.AdviceView, error)
	CreateAdvice(ctx context.Context, in service.AdviceInput, callerID string) (*redact.AdviceView, error)
	UpdateAdvice(ctx context.Context, id string, patch service.AdvicePatch, callerID string) (*redact.AdviceView, error)
	DeleteAdvice(ctx context.Context, id, callerID string) error
	AddReply(ctx context.Context, adviceID string, in service.ReplyInput, callerID string) (*redact.AdviceView, error)
	UpdateReply(ctx context.Context, adviceID, replyID string, patch service.ReplyPatch, callerID string) (*redact.AdviceView, error)
	DeleteReply(ctx context.Context, adviceID, replyID, callerID string) (*redact.AdviceView, error)
	SearchAdvices(ctx context.Context, p service.SearchParams, viewerID string) ([]redact.AdviceView, error)
}

// AdviceHandler serves the advice and reply routes.
//
// The caller's identity comes from the request context, where RequireAuth
// or OptionalAuth put it. Handlers only translate between HTTP and the
// service: decode, call, encode. Ownership checks and redaction happen in
// the service.
type AdviceHandler struct {
	advices AdviceService
	logger  *slog.Logger
}

// NewAdviceHandler creates an AdviceHandler.
func NewAdviceHandler(advices AdviceService, logger *slog.Logger) *AdviceHandler {
	return &AdviceHandler{advices: advices, logger: logger}
}

// adviceRequest is the body of POST and PUT /api/advices. Pointers tell a
// missing field from an empty one.
type adviceRequest struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Anonymous *bool   `json:"anonymous"`
}

type replyRequest struct {
	Content   *string `json:"content"`
	Anonymous *bool   `json:"anonymous"`
}

// HandleList returns every advice, most recent first.
//
// HTTP: GET /api/advices
func (h *AdviceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	advices, err := h.advices.ListAdvices(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advices)
}

// HandleSearch runs a search.
//
// HTTP: GET /api/advices/search?q=text
//
//	GET /api/advices/search?key=title&value=text
func (h *AdviceHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := service.SearchParams{
		Q:     query.Get("q"),
		Key:   query.Get("key"),
		Value: query.Get("value"),
	}

	advices, err := h.advices.SearchAdvices(r.Context(), params, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advices)
}

// HandleGet returns one advice.
//
// HTTP: GET /api/advices/{id}
func (h *AdviceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	advice, err := h.advices.GetAdvice(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}

// HandleCreate stores a new advice owned by the caller.
//
// HTTP: POST /api/advices
// REQUEST BODY: {"title": "...", "content": "...", "anonymous": false}
func (h *AdviceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := service.AdviceInput{Title: req.Title, Content: req.Content, Anonymous: req.Anonymous}
	advice, err := h.advices.CreateAdvice(r.Context(), in, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, advice)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /api/advices/{id}
// REQUEST BODY: any subset of {"title", "content", "anonymous"}
func (h *AdviceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	// A bad body is passed on, not answered here: the service reports it
	// only after the advice is found and the caller owns it.
	var patch service.AdvicePatch
	var req adviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		patch.DecodeErr = err
	} else {
		patch = service.AdvicePatch{Title: req.Title, Content: req.Content, Anonymous: req.Anonymous}
	}

	advice, err := h.advices.UpdateAdvice(r.Context(), chi.URLParam(r, "id"), patch, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}

// HandleDelete removes an advice and its replies.
//
// HTTP: DELETE /api/advices/{id}
func (h *AdviceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.advices.DeleteAdvice(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Advice deleted"})
}

// HandleAddReply appends a reply and returns the updated parent advice.
//
// HTTP: POST /api/advices/{id}/replies
// REQUEST BODY: {"content": "...", "anonymous": true}
func (h *AdviceHandler) HandleAddReply(w http.ResponseWriter, r *http.Request) {
	var in service.ReplyInput
	var req replyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		in.DecodeErr = err
	} else {
		in = service.ReplyInput{Content: req.Content, Anonymous: req.Anonymous}
	}

	advice, err := h.advices.AddReply(r.Context(), chi.URLParam(r, "id"), in, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, advice)
}

// HandleUpdateReply edits one of the caller's replies.
//
// HTTP: PUT /api/advices/{id}/replies/{replyId}
func (h *AdviceHandler) HandleUpdateReply(w http.ResponseWriter, r *http.Request) {
	var patch service.ReplyPatch
	var req replyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		patch.DecodeErr = err
	} else {
		patch = service.ReplyPatch{Content: req.Content, Anonymous: req.Anonymous}
	}

	advice, err := h.advices.UpdateReply(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "replyId"),
		patch, auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}

// HandleDeleteReply removes one of the caller's replies.
//
// HTTP: DELETE /api/advices/{id}/replies/{replyId}
func (h *AdviceHandler) HandleDeleteReply(w http.ResponseWriter, r *http.Request) {
	advice, err := h.advices.DeleteReply(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "replyId"),
		auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}
