package model

import "time"

type ChecklistTemplate struct {
	ID         int64           `json:"id"`
	OrgID      int64           `json:"org_id"`
	Name       string          `json:"name"`
	RoomTypeID *int64          `json:"room_type_id"`
	IsDefault  bool            `json:"is_default"`
	Items      []ChecklistItem `json:"items,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ChecklistItem struct {
	ID            int64  `json:"id"`
	TemplateID    int64  `json:"template_id"`
	Label         string `json:"label"`
	OrderIndex    int    `json:"order_index"`
	RequiresPhoto bool   `json:"requires_photo"`
	RequiresNote  bool   `json:"requires_note"`
}

type RoomChecklistOverride struct {
	RoomID     int64     `json:"room_id"`
	TemplateID int64     `json:"template_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
