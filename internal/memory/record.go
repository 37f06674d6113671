package memory

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Record is one immutable conversation turn. Records for the same session
// are totally ordered by (CreatedAt, Seq); Seq breaks ties when two turns
// land on the same clock reading.
type Record struct {
	SessionID     string    `json:"session_id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	Seq           uint64    `json:"seq"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
}

// Before reports whether r precedes other in session order.
func (r Record) Before(other Record) bool {
	if r.CreatedAt.Equal(other.CreatedAt) {
		return r.Seq < other.Seq
	}
	return r.CreatedAt.Before(other.CreatedAt)
}
