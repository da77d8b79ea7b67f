// Package policy decides who may mutate which entity.
//
// The rule is deliberately small: an entity may be updated or deleted only
// by the user recorded as its creator. The check is a pure function so it can
// be tested without a store and reused by every mutation path.
package policy

import (
	"strings"

	"github.com/sakif/advice-board/internal/model"
)

// Owned is anything that records a creator. model.Advice and model.Reply
// both satisfy it, so replies are checked against their own creator and
// never against the parent advice's.
type Owned interface {
	Creator() model.CreatorRef
}

// CanMutate reports whether callerID may update or delete entity.
//
// Identifiers are compared as normalized strings via CreatorRef.ResolveID,
// so a raw-id reference and a populated reference for the same user are
// treated alike. An entity with no recorded creator is never mutable, and
// an empty caller never owns anything.
func CanMutate(entity Owned, callerID string) bool {
	if entity == nil {
		return false
	}
	owner := entity.Creator().ResolveID()
	caller := strings.TrimSpace(callerID)
	if owner == "" || caller == "" {
		return false
	}
	return owner == caller
}
