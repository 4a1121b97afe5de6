package model

import "time"

// Notification type constants
const (
	NotifTypeTaskAssigned       = "task_assigned"
	NotifTypeDeficiencyOpened   = "deficiency_opened"
	NotifTypeDeficiencyAssigned = "deficiency_assigned"
	NotifTypeDeficiencyResolved = "deficiency_resolved"
)

// NotificationTypes lists every type a user can toggle in preferences.
var NotificationTypes = []string{
	NotifTypeTaskAssigned,
	NotifTypeDeficiencyOpened,
	NotifTypeDeficiencyAssigned,
	NotifTypeDeficiencyResolved,
}

type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	OrgID      int64     `json:"org_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type NotificationPreference struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	NotificationType string    `json:"notification_type"`
	PushEnabled      bool      `json:"push_enabled"`
	EmailEnabled     bool      `json:"email_enabled"`
	UpdatedAt        time.Time `json:"updated_at"`
}
