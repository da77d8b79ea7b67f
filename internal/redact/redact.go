// Package redact builds the externally visible form of advices and replies.
//
// Every entity returned by the API goes through this package exactly once,
// straight after it is read from the store. Two things happen:
//
//  1. _isMine is computed from the real creator, for the requesting viewer.
//  2. If the entity is anonymous, its creator reference is dropped.
//
// Step 1 runs before step 2, so the legitimate creator still sees that an
// anonymous entry is theirs, while nobody else can tell who wrote it.
// Replies are handled one by one with their own anonymous flag.
package redact

import (
	"strings"
	"time"

	"github.com/sakif/advice-board/internal/model"
)

// AdviceView is the response shape for an advice.
type AdviceView struct {
	ID        string            `json:"_id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"createdAt"`
	Anonymous bool              `json:"anonymous"`
	CreatedBy *model.CreatorRef `json:"_createdBy,omitempty"`
	Replies   []ReplyView       `json:"replies"`
	IsMine    bool              `json:"_isMine"`
}

// ReplyView is the response shape for a reply.
type ReplyView struct {
	ID        string            `json:"_id"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"createdAt"`
	Anonymous bool              `json:"anonymous"`
	CreatedBy *model.CreatorRef `json:"_createdBy,omitempty"`
	IsMine    bool              `json:"_isMine"`
}

// Advice returns the redacted view of a for viewerID. An empty viewerID
// means an unauthenticated reader. a is not modified.
func Advice(a model.Advice, viewerID string) AdviceView {
	replies := make([]ReplyView, 0, len(a.Replies))
	for _, r := range a.Replies {
		replies = append(replies, Reply(r, viewerID))
	}

	return AdviceView{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		CreatedAt: a.CreatedAt,
		Anonymous: a.Anonymous,
		CreatedBy: visibleCreator(a.CreatedBy, a.Anonymous),
		Replies:   replies,
		IsMine:    isMine(a.CreatedBy, viewerID),
	}
}

// Reply returns the redacted view of a single reply for viewerID.
func Reply(r model.Reply, viewerID string) ReplyView {
	return ReplyView{
		ID:        r.ID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		Anonymous: r.Anonymous,
		CreatedBy: visibleCreator(r.CreatedBy, r.Anonymous),
		IsMine:    isMine(r.CreatedBy, viewerID),
	}
}

// Advices redacts a list, keeping its order.
func Advices(advices []model.Advice, viewerID string) []AdviceView {
	out := make([]AdviceView, 0, len(advices))
	for _, a := range advices {
		out = append(out, Advice(a, viewerID))
	}
	return out
}

func isMine(creator model.CreatorRef, viewerID string) bool {
	viewer := strings.TrimSpace(viewerID)
	return viewer != "" && creator.ResolveID() == viewer
}

// visibleCreator returns nil when there is nothing that may be shown:
// the entity is anonymous, or no creator was recorded.
func visibleCreator(creator model.CreatorRef, anonymous bool) *model.CreatorRef {
	if anonymous || creator.IsZero() {
		return nil
	}
	c := creator
	return &c
}
