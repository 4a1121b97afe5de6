package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukerupert/cleanround/internal/model"
)

// resolveChecklist picks the template for a room: an active room override
// wins, then the organisation default for the room's type.
func resolveChecklist(tx Tx, room *model.Room) (*model.ChecklistTemplate, error) {
	override, err := tx.GetActiveOverride(room.ID)
	if err != nil {
		return nil, fmt.Errorf("get checklist override: %w", err)
	}
	if override != nil {
		tpl, err := tx.GetTemplate(override.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("get override template: %w", err)
		}
		if tpl != nil && tpl.OrgID == room.OrgID {
			return tpl, nil
		}
	}

	if room.RoomTypeID != nil {
		tpl, err := tx.GetDefaultTemplate(room.OrgID, *room.RoomTypeID)
		if err != nil {
			return nil, fmt.Errorf("get default template: %w", err)
		}
		if tpl != nil {
			return tpl, nil
		}
	}

	return nil, newError(CodeNoChecklistConfigured, "room %d (%s) has no override and no default checklist", room.ID, room.Name)
}

// snapshot copies the template items in order index order. The copy is what
// the task keeps; later template edits do not reach it.
func snapshot(tpl *model.ChecklistTemplate) []model.SnapshotItem {
	items := make([]model.ChecklistItem, len(tpl.Items))
	copy(items, tpl.Items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].OrderIndex != items[j].OrderIndex {
			return items[i].OrderIndex < items[j].OrderIndex
		}
		return items[i].ID < items[j].ID
	})

	snap := make([]model.SnapshotItem, len(items))
	for i, it := range items {
		snap[i] = model.SnapshotItem{
			ItemID:        it.ID,
			Label:         it.Label,
			OrderIndex:    it.OrderIndex,
			RequiresPhoto: it.RequiresPhoto,
			RequiresNote:  it.RequiresNote,
		}
	}
	return snap
}

// ResolveChecklist reports which template a task for roomID would receive if
// the activity were published now.
func (e *Engine) ResolveChecklist(ctx context.Context, actor Actor, roomID int64) (*model.ChecklistTemplate, error) {
	var tpl *model.ChecklistTemplate
	err := e.run(ctx, "resolve checklist", func(tx Tx) error {
		room, err := tx.GetRoom(roomID)
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		if room == nil {
			return notFound("room", roomID)
		}
		if err := actor.requireOrg(room.OrgID); err != nil {
			return err
		}
		tpl, err = resolveChecklist(tx, room)
		return err
	})
	return tpl, err
}
