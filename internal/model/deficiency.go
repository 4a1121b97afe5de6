package model

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type DeficiencyStatus string

const (
	DeficiencyOpen       DeficiencyStatus = "open"
	DeficiencyInProgress DeficiencyStatus = "in_progress"
	DeficiencyResolved   DeficiencyStatus = "resolved"
)

// Deficiency is a quality issue linked to a room task.
type Deficiency struct {
	ID             int64            `json:"id"`
	OrgID          int64            `json:"org_id"`
	RoomTaskID     int64            `json:"room_task_id"`
	Description    string           `json:"description"`
	Severity       Severity         `json:"severity"`
	Status         DeficiencyStatus `json:"status"`
	ReportedBy     int64            `json:"reported_by"`
	AssignedTo     *int64           `json:"assigned_to"`
	ResolutionNote string           `json:"resolution_note"`
	ResolvedBy     *int64           `json:"resolved_by"`
	ResolvedAt     *time.Time       `json:"resolved_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
