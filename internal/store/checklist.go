package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cleanround/internal/model"
)

type ChecklistStore struct {
	db querier
}

func NewChecklistStore(db *sql.DB) *ChecklistStore {
	return &ChecklistStore{db: db}
}

// ItemInput describes one checklist item when creating a template.
type ItemInput struct {
	Label         string `json:"label"`
	OrderIndex    int    `json:"order_index"`
	RequiresPhoto bool   `json:"requires_photo"`
	RequiresNote  bool   `json:"requires_note"`
}

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.ChecklistTemplate, error) {
	var t model.ChecklistTemplate
	var roomTypeID sql.NullInt64
	var isDefault int
	err := scanner.Scan(&t.ID, &t.OrgID, &t.Name, &roomTypeID, &isDefault, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.RoomTypeID = int64Ptr(roomTypeID)
	t.IsDefault = isDefault != 0
	return &t, nil
}

const templateCols = `id, org_id, name, room_type_id, is_default, created_at, updated_at`

// CreateTemplate stores a template with its items. When isDefault is set the
// template replaces any previous default for the same room type.
func (s *ChecklistStore) CreateTemplate(orgID int64, name string, roomTypeID *int64, isDefault bool, items []ItemInput) (*model.ChecklistTemplate, error) {
	if isDefault && roomTypeID == nil {
		return nil, fmt.Errorf("create template: default template needs a room type")
	}

	var id int64
	err := atomically(s.db, func(q querier) error {
		if isDefault {
			if _, err := q.Exec(
				`UPDATE checklist_templates SET is_default = 0, updated_at = CURRENT_TIMESTAMP
				 WHERE org_id = ? AND room_type_id = ? AND is_default = 1`,
				orgID, *roomTypeID,
			); err != nil {
				return fmt.Errorf("clear default template: %w", err)
			}
		}
		result, err := q.Exec(
			`INSERT INTO checklist_templates (org_id, name, room_type_id, is_default) VALUES (?, ?, ?, ?)`,
			orgID, name, nullInt64(roomTypeID), boolInt(isDefault),
		)
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for _, it := range items {
			if _, err := q.Exec(
				`INSERT INTO checklist_items (template_id, label, order_index, requires_photo, requires_note)
				 VALUES (?, ?, ?, ?, ?)`,
				id, it.Label, it.OrderIndex, boolInt(it.RequiresPhoto), boolInt(it.RequiresNote),
			); err != nil {
				return fmt.Errorf("insert checklist item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(id)
}

// GetTemplate returns a template with its items in order.
func (s *ChecklistStore) GetTemplate(id int64) (*model.ChecklistTemplate, error) {
	row := s.db.QueryRow(`SELECT `+templateCols+` FROM checklist_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	t.Items, err = s.listItems(t.ID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetDefaultTemplate returns the default template for a room type, or nil.
func (s *ChecklistStore) GetDefaultTemplate(orgID, roomTypeID int64) (*model.ChecklistTemplate, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM checklist_templates WHERE org_id = ? AND room_type_id = ? AND is_default = 1`,
		orgID, roomTypeID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default template: %w", err)
	}
	return s.GetTemplate(id)
}

// ListTemplates returns an organisation's templates without items.
func (s *ChecklistStore) ListTemplates(orgID int64) ([]model.ChecklistTemplate, error) {
	rows, err := s.db.Query(`SELECT `+templateCols+` FROM checklist_templates WHERE org_id = ? ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.ChecklistTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *ChecklistStore) listItems(templateID int64) ([]model.ChecklistItem, error) {
	rows, err := s.db.Query(
		`SELECT id, template_id, label, order_index, requires_photo, requires_note
		 FROM checklist_items WHERE template_id = ? ORDER BY order_index ASC, id ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		var it model.ChecklistItem
		var photo, note int
		if err := rows.Scan(&it.ID, &it.TemplateID, &it.Label, &it.OrderIndex, &photo, &note); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		it.RequiresPhoto = photo != 0
		it.RequiresNote = note != 0
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateItem edits a template item. Tasks already published keep their
// snapshot.
func (s *ChecklistStore) UpdateItem(itemID int64, label string, requiresPhoto, requiresNote bool) error {
	_, err := s.db.Exec(
		`UPDATE checklist_items SET label = ?, requires_photo = ?, requires_note = ? WHERE id = ?`,
		label, boolInt(requiresPhoto), boolInt(requiresNote), itemID,
	)
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	return nil
}

// --- Room override methods ---

// SetOverride points a room at templateID, replacing any previous override.
func (s *ChecklistStore) SetOverride(roomID, templateID int64) (*model.RoomChecklistOverride, error) {
	_, err := s.db.Exec(
		`INSERT INTO room_checklist_overrides (room_id, template_id, active) VALUES (?, ?, 1)
		 ON CONFLICT(room_id) DO UPDATE SET template_id = excluded.template_id, active = 1`,
		roomID, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("set checklist override: %w", err)
	}
	return s.GetActiveOverride(roomID)
}

// ClearOverride deactivates a room's override so the room type default
// applies again.
func (s *ChecklistStore) ClearOverride(roomID int64) error {
	_, err := s.db.Exec(`UPDATE room_checklist_overrides SET active = 0 WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("clear checklist override: %w", err)
	}
	return nil
}

func (s *ChecklistStore) GetActiveOverride(roomID int64) (*model.RoomChecklistOverride, error) {
	var o model.RoomChecklistOverride
	var active int
	err := s.db.QueryRow(
		`SELECT room_id, template_id, active, created_at
		 FROM room_checklist_overrides WHERE room_id = ? AND active = 1`,
		roomID,
	).Scan(&o.RoomID, &o.TemplateID, &active, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checklist override: %w", err)
	}
	o.Active = active != 0
	return &o, nil
}
