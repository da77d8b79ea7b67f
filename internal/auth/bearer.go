package auth

import (
	"net/http"
	"strings"
)

const (
	// HeaderLegacyToken is the non-standard header older clients send the
	// token in.
	HeaderLegacyToken = "auth-token"

	// CookieName is the HttpOnly cookie set by GitHub sign-in.
	CookieName = "token"
)

// ExtractToken returns the raw credential carried by r, or "" if there is
// none.
//
// Sources are tried in order: the Authorization header, the legacy
// auth-token header, then the token cookie. The first non-empty one wins.
// Each value may be "Bearer <token>" (scheme matched case-insensitively) or
// the bare token, optionally wrapped in quotes.
func ExtractToken(r *http.Request) string {
	if v := normalizeCredential(r.Header.Get("Authorization")); v != "" {
		return v
	}
	if v := normalizeCredential(r.Header.Get(HeaderLegacyToken)); v != "" {
		return v
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return normalizeCredential(c.Value)
	}
	return ""
}

func normalizeCredential(raw string) string {
	v := unquote(strings.TrimSpace(raw))

	if len(v) > 6 && strings.EqualFold(v[:6], "bearer") && (v[6] == ' ' || v[6] == '\t') {
		v = unquote(strings.TrimSpace(v[7:]))
	} else if strings.EqualFold(v, "bearer") {
		return ""
	}

	return v
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
