// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the capability level of an identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role string onto the closed set; unknown values degrade to RoleUser.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// Identity is the authenticated caller, resolved once at the auth boundary.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
}

// IsAdmin reports whether the identity bypasses ownership checks.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Owns reports whether the identity owns a poll.
func (i Identity) Owns(p *Poll) bool { return p != nil && p.UserID == i.ID }

// User represents an account stored on the server. Passwords are never stored in plaintext.
type User struct {
	ID        uuid.UUID         // PK
	Email     string            // unique, lower-cased
	PwdHash   string            // PHC-encoded Argon2id hash
	Role      Role              // user | admin
	Metadata  map[string]string // free-form sign-up metadata
	CreatedAt time.Time
}

// Identity projects the user onto its capability record.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

// Session is an issued access token with its expiry.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Identity  `json:"user"`
}

// Poll is a question with an ordered list of options.
type Poll struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"` // owner
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vote is a single identity's choice on a poll; at most one per (poll, user).
type Vote struct {
	PollID      uuid.UUID `json:"poll_id"`
	UserID      uuid.UUID `json:"user_id"`
	OptionIndex int       `json:"option_index"`
	CreatedAt   time.Time `json:"created_at"`
}

// OptionResult is the tally for one option.
type OptionResult struct {
	Index   int     `json:"index"`
	Text    string  `json:"text"`
	Votes   int64   `json:"votes"`
	Percent float64 `json:"percent"`
}

// Results is the aggregated view of a poll's votes.
type Results struct {
	PollID     uuid.UUID      `json:"poll_id"`
	Question   string         `json:"question"`
	Options    []OptionResult `json:"options"`
	TotalVotes int64          `json:"total_votes"`
}

// PollEventType names a change pushed to live subscribers.
type PollEventType string

const (
	PollUpdated PollEventType = "results"
	PollDeleted PollEventType = "deleted"
)

// PollEvent is published after a mutation changes what a poll's results look like.
type PollEvent struct {
	Type    PollEventType `json:"type"`
	PollID  uuid.UUID     `json:"poll_id"`
	Results *Results      `json:"results,omitempty"`
}
