package models

import "time"

// Attributes is the attribute set Keycloak stores per user
// (each attribute may carry multiple values).
type Attributes map[string][]string

// First returns the first value of an attribute, or "" if absent.
func (a Attributes) First(name string) string {
	values := a[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// IdentityMapping is one row of the bijective Discord <-> Keycloak mapping.
type IdentityMapping struct {
	MemberID   string    `json:"member_id"`
	SubjectID  string    `json:"subject_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

// PendingVerification is a short-lived verification session. It is immutable
// after creation; consumption deletes it.
type PendingVerification struct {
	Token      string `json:"-"`
	GuildID    string `json:"guild_id"`
	MemberID   string `json:"discord_user_id"`
	Username   string `json:"discord_username"`
	OAuthState string `json:"oauth_state"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
}

// Expired reports whether the session deadline has passed at the given time.
func (p *PendingVerification) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}

// VerificationState is the lifecycle position of one verification.
type VerificationState int

const (
	StateStarted VerificationState = iota
	StateAwaitingCallback
	StateResolving
	StateRoleAssigning
	StateCompleted

	// Terminal failure states. A member restarts from StateStarted after any
	// of these; nothing re-enters StateAwaitingCallback.
	StateExpired
	StateConflict
	StateFailed
)

func (s VerificationState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateResolving:
		return "resolving"
	case StateRoleAssigning:
		return "role_assigning"
	case StateCompleted:
		return "completed"
	case StateExpired:
		return "expired"
	case StateConflict:
		return "conflict"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur.
func (s VerificationState) Terminal() bool {
	switch s {
	case StateCompleted, StateExpired, StateConflict, StateFailed:
		return true
	}
	return false
}
