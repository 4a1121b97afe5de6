package model

import "time"

// Session is an API token issued to a user for one organisation.
// Only the bcrypt hash of the secret half is stored.
type Session struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	OrgID      int64      `json:"org_id"`
	SecretHash []byte     `json:"-"`
	Label      string     `json:"label"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}
