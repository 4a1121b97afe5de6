package model

import "time"

// Sign-in code purposes.
const (
	CodePurposeLogin  = "login"
	CodePurposeInvite = "invite"
)

// SignInCode is a short-lived emailed code exchanged for an API token.
// Invite codes carry the role the new member receives.
type SignInCode struct {
	ID        int64      `json:"id"`
	Code      string     `json:"-"`
	Email     string     `json:"email"`
	Purpose   string     `json:"purpose"`
	OrgID     int64      `json:"org_id"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
}
