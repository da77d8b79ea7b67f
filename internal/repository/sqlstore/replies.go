package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/advice-board/internal/model"
)

// storedReply is the persisted shape of a reply. Only the creator's id is
// stored; the username is joined in when reading.
type storedReply struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Anonymous bool      `json:"anonymous"`
	CreatedBy string    `json:"createdBy"`
}

// replyList is the replies column. It implements sql.Scanner and
// driver.Valuer so sqlx can read and write it like any other field.
type replyList []storedReply

func (l replyList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]storedReply(l))
	if err != nil {
		return nil, fmt.Errorf("encoding replies: %w", err)
	}
	return string(b), nil
}

func (l *replyList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = replyList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("replies: unsupported column type %T", src)
	}

	var out []storedReply
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decoding replies: %w", err)
	}
	if out == nil {
		out = []storedReply{}
	}
	*l = out
	return nil
}

func toStoredReplies(replies []model.Reply) replyList {
	out := make(replyList, 0, len(replies))
	for _, r := range replies {
		out = append(out, storedReply{
			ID:        r.ID,
			Content:   r.Content,
			CreatedAt: r.CreatedAt.UTC(),
			Anonymous: r.Anonymous,
			CreatedBy: r.CreatedBy.ResolveID(),
		})
	}
	return out
}

// toModelReplies rebuilds the replies, populating creators found in names.
func toModelReplies(stored replyList, names map[string]string) []model.Reply {
	out := make([]model.Reply, 0, len(stored))
	for _, s := range stored {
		out = append(out, model.Reply{
			ID:        s.ID,
			Content:   s.Content,
			CreatedAt: s.CreatedAt,
			Anonymous: s.Anonymous,
			CreatedBy: creatorRef(s.CreatedBy, names[s.CreatedBy]),
		})
	}
	return out
}

func creatorRef(id, username string) model.CreatorRef {
	if id == "" {
		return model.CreatorRef{}
	}
	if username == "" {
		return model.CreatorID(id)
	}
	return model.EmbeddedCreator(id, username)
}
