package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/advice-board/internal/apperror"
)

// RevocationList remembers token IDs that must no longer be accepted.
// session.RedisStore is the production implementation.
type RevocationList interface {
	// Revoke marks tokenID as revoked until the given time. After that the
	// token is expired anyway and the entry may be forgotten.
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Verifier turns a raw credential into an Identity.
//
// Every failure, whatever the reason (malformed, bad signature, expired,
// revoked, revocation backend down), yields the same
// apperror.Unauthenticated value. The reason is logged at debug level only.
type Verifier struct {
	tokens  *TokenService
	revoked RevocationList // nil disables revocation
	logger  *slog.Logger
}

// NewVerifier creates a Verifier. revoked may be nil.
func NewVerifier(tokens *TokenService, revoked RevocationList, logger *slog.Logger) *Verifier {
	return &Verifier{tokens: tokens, revoked: revoked, logger: logger}
}

// Verify validates raw and returns the caller's Identity.
func (v *Verifier) Verify(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, apperror.Unauthenticated()
	}

	id, err := v.tokens.Validate(raw)
	if err != nil {
		v.logger.Debug("token rejected", slog.String("reason", err.Error()))
		return Identity{}, apperror.Unauthenticated()
	}

	if v.revoked != nil && id.TokenID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, id.TokenID)
		if err != nil {
			// Fail closed: if we cannot tell, the token is not accepted.
			v.logger.Debug("revocation check failed", slog.String("error", err.Error()))
			return Identity{}, apperror.Unauthenticated()
		}
		if revoked {
			v.logger.Debug("token rejected", slog.String("reason", "revoked"))
			return Identity{}, apperror.Unauthenticated()
		}
	}

	return id, nil
}

// Revoke puts the token behind id on the revocation list. It is a no-op
// when no list is configured or the token carries no ID.
func (v *Verifier) Revoke(ctx context.Context, id Identity) error {
	if v.revoked == nil || id.TokenID == "" {
		return nil
	}
	until := id.ExpiresAt
	if until.IsZero() {
		until = time.Now().Add(v.tokens.ttl)
	}
	return v.revoked.Revoke(ctx, id.TokenID, until)
}
