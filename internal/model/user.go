// Package model defines the data structures used throughout the application.
// It holds the records shared by every layer: users, advices and replies.
package model

import "time"

// User represents a registered account.
//
// Most users register with username, email and password. Users who sign in
// through GitHub get an account keyed by their GitHub ID and an empty
// PasswordHash, which means password login is never possible for them.
//
// WHY `json:"-"` ON PasswordHash AND GitHubID?
// The struct is returned as-is by GET /api/user/me. The dash tag makes
// encoding/json skip the field entirely, so the hash can never leak into a
// response even if a handler forgets to build a separate DTO.
type User struct {
	ID           string    `json:"_id"          db:"id"`
	Username     string    `json:"username"     db:"username"`
	Email        string    `json:"email"        db:"email"` // trimmed + lower-cased
	PasswordHash string    `json:"-"            db:"password_hash"`
	GitHubID     *int64    `json:"-"            db:"github_id"`
	RegisteredAt time.Time `json:"registrationDate" db:"registered_at"`
}
