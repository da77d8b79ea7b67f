package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CreatorRef points at the user who created an Advice or a Reply.
//
// It is a tagged union with two forms:
//
//	CreatorID("u1")                 → a raw identifier, as stored
//	EmbeddedCreator("u1", "daniel") → a populated reference, as read back
//	                                  from the store with the username joined in
//
// The zero value means "no creator recorded". Code that needs the identity
// behind either form calls ResolveID. Never compare CreatorRef values
// directly, since the same user can appear in both forms.
type CreatorRef struct {
	id       string
	username string
	embedded bool
}

// CreatorID returns the raw-identifier form.
func CreatorID(id string) CreatorRef {
	return CreatorRef{id: id}
}

// EmbeddedCreator returns the populated form carrying the username.
func EmbeddedCreator(id, username string) CreatorRef {
	return CreatorRef{id: id, username: username, embedded: true}
}

// ResolveID returns the normalized creator identifier for either form,
// or "" when no creator is recorded.
func (c CreatorRef) ResolveID() string {
	return strings.TrimSpace(c.id)
}

// IsZero reports whether no creator is recorded.
func (c CreatorRef) IsZero() bool {
	return c.ResolveID() == ""
}

// Username returns the populated username and true for the embedded form.
func (c CreatorRef) Username() (string, bool) {
	return c.username, c.embedded
}

type embeddedCreatorJSON struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// MarshalJSON writes the raw form as a JSON string and the embedded form
// as {"_id": ..., "username": ...}. The id written is the one ownership
// checks compare against.
func (c CreatorRef) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	if c.embedded {
		return json.Marshal(embeddedCreatorJSON{ID: c.ResolveID(), Username: c.username})
	}
	return json.Marshal(c.ResolveID())
}

// UnmarshalJSON accepts both shapes produced by MarshalJSON.
func (c *CreatorRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = CreatorRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("model: decoding creator id: %w", err)
		}
		*c = CreatorID(id)
		return nil
	default:
		var e embeddedCreatorJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("model: decoding embedded creator: %w", err)
		}
		*c = EmbeddedCreator(e.ID, e.Username)
		return nil
	}
}

// Advice is a top-level post. Replies are owned by the advice and are
// stored with it as one unit.
type Advice struct {
	ID        string     `json:"_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Anonymous bool       `json:"anonymous"`
	CreatedBy CreatorRef `json:"_createdBy"`
	Replies   []Reply    `json:"replies"`
}

// Creator returns the recorded creator reference.
func (a Advice) Creator() CreatorRef { return a.CreatedBy }

// ReplyIndex returns the position of the reply with the given id, or -1.
func (a Advice) ReplyIndex(replyID string) int {
	for i, r := range a.Replies {
		if r.ID == replyID {
			return i
		}
	}
	return -1
}

// Reply is a comment nested inside exactly one Advice. Its creator is
// independent of the parent's creator.
type Reply struct {
	ID        string     `json:"_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Anonymous bool       `json:"anonymous"`
	CreatedBy CreatorRef `json:"_createdBy"`
}

// Creator returns the recorded creator reference.
func (r Reply) Creator() CreatorRef { return r.CreatedBy }

// WithoutReply returns a new sequence holding every reply except the one
// with the given id. The input slice is left untouched and the relative
// order of the remaining replies is kept.
func WithoutReply(replies []Reply, replyID string) []Reply {
	out := make([]Reply, 0, len(replies))
	for _, r := range replies {
		if r.ID == replyID {
			continue
		}
		out = append(out, r)
	}
	return out
}
