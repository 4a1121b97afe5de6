package model

import "time"

type ActivityStatus string

const (
	ActivityDraft     ActivityStatus = "draft"
	ActivityActive    ActivityStatus = "active"
	ActivityClosed    ActivityStatus = "closed"
	ActivityCancelled ActivityStatus = "cancelled"
)

type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeUnrated Outcome = "unrated"
)

// Activity is a scheduled cleaning round for one floor within a time window.
type Activity struct {
	ID            int64          `json:"id"`
	OrgID         int64          `json:"org_id"`
	FloorID       int64          `json:"floor_id"`
	Name          string         `json:"name"`
	ScheduledDate time.Time      `json:"scheduled_date"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	Status        ActivityStatus `json:"status"`
	Notes         string         `json:"notes"`
	PassRate      *float64       `json:"pass_rate"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	Threshold     *float64       `json:"threshold"`
	CreatedBy     int64          `json:"created_by"`
	PublishedAt   *time.Time     `json:"published_at"`
	ClosedAt      *time.Time     `json:"closed_at"`
	CancelledAt   *time.Time     `json:"cancelled_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
