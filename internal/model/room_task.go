package model

import "time"

type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskHasIssues  TaskStatus = "has_issues"
	TaskCancelled  TaskStatus = "cancelled"
)

type InspectionResult string

const (
	InspectionNone InspectionResult = "none"
	InspectionPass InspectionResult = "inspected_pass"
	InspectionFail InspectionResult = "inspected_fail"
)

// SnapshotItem is one checklist item frozen onto a task at publish time.
type SnapshotItem struct {
	ItemID        int64  `json:"item_id"`
	Label         string `json:"label"`
	OrderIndex    int    `json:"order_index"`
	RequiresPhoto bool   `json:"requires_photo"`
	RequiresNote  bool   `json:"requires_note"`
}

type RoomTask struct {
	ID             int64            `json:"id"`
	ActivityID     int64            `json:"activity_id"`
	RoomID         int64            `json:"room_id"`
	AssignedTo     *int64           `json:"assigned_to"`
	Status         TaskStatus       `json:"status"`
	Inspection     InspectionResult `json:"inspection"`
	InspectionNote string           `json:"inspection_note"`
	InspectedBy    *int64           `json:"inspected_by"`
	IssueNote      string           `json:"issue_note"`
	TemplateID     int64            `json:"template_id"`
	Checklist      []SnapshotItem   `json:"checklist"`
	StartedAt      *time.Time       `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
	InspectedAt    *time.Time       `json:"inspected_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// ItemResponse is a worker's answer for one checklist item of a task.
type ItemResponse struct {
	TaskID      int64     `json:"task_id"`
	ItemID      int64     `json:"item_id"`
	Completed   bool      `json:"completed"`
	Note        string    `json:"note"`
	PhotoKey    string    `json:"photo_key"`
	RespondedBy int64     `json:"responded_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}
