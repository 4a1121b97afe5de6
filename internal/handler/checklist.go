package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

type ChecklistHandler struct {
	engine     *lifecycle.Engine
	checklists *store.ChecklistStore
	facilities *store.FacilityStore
	logger     *slog.Logger
}

func NewChecklistHandler(engine *lifecycle.Engine, cs *store.ChecklistStore, fs *store.FacilityStore, logger *slog.Logger) *ChecklistHandler {
	return &ChecklistHandler{engine: engine, checklists: cs, facilities: fs, logger: logger}
}

func (h *ChecklistHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.checklists.ListTemplates(auth.OrgID(r.Context()))
	if err != nil {
		h.logger.Error("list checklist templates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list checklists")
		return
	}
	if templates == nil {
		templates = []model.ChecklistTemplate{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// Create handles POST /api/checklists. A default template replaces the
// previous default for its room type.
func (h *ChecklistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string            `json:"name"`
		RoomTypeID *int64            `json:"room_type_id"`
		IsDefault  bool              `json:"is_default"`
		Items      []store.ItemInput `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "at least one item is required")
		return
	}
	for i := range req.Items {
		req.Items[i].Label = strings.TrimSpace(req.Items[i].Label)
		if req.Items[i].Label == "" {
			writeError(w, http.StatusBadRequest, "every item needs a label")
			return
		}
		if req.Items[i].OrderIndex == 0 {
			req.Items[i].OrderIndex = i + 1
		}
	}
	if req.IsDefault && req.RoomTypeID == nil {
		writeError(w, http.StatusBadRequest, "a default checklist needs a room_type_id")
		return
	}
	if req.RoomTypeID != nil {
		rt, err := h.facilities.GetRoomType(*req.RoomTypeID)
		if err != nil {
			h.logger.Error("get room type", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get room type")
			return
		}
		if rt == nil || rt.OrgID != auth.OrgID(r.Context()) {
			writeError(w, http.StatusBadRequest, "unknown room type")
			return
		}
	}

	tpl, err := h.checklists.CreateTemplate(auth.OrgID(r.Context()), req.Name, req.RoomTypeID, req.IsDefault, req.Items)
	if err != nil {
		h.logger.Error("create checklist template", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create checklist")
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// Get handles GET /api/checklists/{id}
func (h *ChecklistHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, ok := h.template(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// UpdateItem handles PUT /api/checklists/{id}/items/{item_id}. Tasks that
// were already published keep their snapshot.
func (h *ChecklistHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	tpl, ok := h.template(w, r)
	if !ok {
		return
	}
	itemID, err := parsePathInt(r, "item_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	found := false
	for _, it := range tpl.Items {
		if it.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	var req struct {
		Label         string `json:"label"`
		RequiresPhoto bool   `json:"requires_photo"`
		RequiresNote  bool   `json:"requires_note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	if err := h.checklists.UpdateItem(itemID, req.Label, req.RequiresPhoto, req.RequiresNote); err != nil {
		h.logger.Error("update checklist item", "item_id", itemID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}
	updated, err := h.checklists.GetTemplate(tpl.ID)
	if err != nil {
		h.logger.Error("reload checklist template", "id", tpl.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload checklist")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// SetOverride handles PUT /api/rooms/{id}/checklist-override
func (h *ChecklistHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	var req struct {
		TemplateID int64 `json:"template_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tpl, err := h.checklists.GetTemplate(req.TemplateID)
	if err != nil {
		h.logger.Error("get checklist template", "id", req.TemplateID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get checklist")
		return
	}
	if tpl == nil || tpl.OrgID != room.OrgID {
		writeError(w, http.StatusBadRequest, "unknown checklist template")
		return
	}
	o, err := h.checklists.SetOverride(room.ID, tpl.ID)
	if err != nil {
		h.logger.Error("set checklist override", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set override")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ClearOverride handles DELETE /api/rooms/{id}/checklist-override
func (h *ChecklistHandler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	if err := h.checklists.ClearOverride(room.ID); err != nil {
		h.logger.Error("clear checklist override", "room_id", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear override")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RoomChecklist handles GET /api/rooms/{id}/checklist: the template a task
// published now would receive.
func (h *ChecklistHandler) RoomChecklist(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	tpl, err := h.engine.ResolveChecklist(r.Context(), auth.ActorFrom(r.Context()), room.ID)
	if err != nil {
		writeLifecycleError(w, h.logger, "resolve checklist", err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (h *ChecklistHandler) template(w http.ResponseWriter, r *http.Request) (*model.ChecklistTemplate, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	tpl, err := h.checklists.GetTemplate(id)
	if err != nil {
		h.logger.Error("get checklist template", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get checklist")
		return nil, false
	}
	if tpl == nil || tpl.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "checklist not found")
		return nil, false
	}
	return tpl, true
}

func (h *ChecklistHandler) room(w http.ResponseWriter, r *http.Request) (*model.Room, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	room, err := h.facilities.GetRoom(id)
	if err != nil {
		h.logger.Error("get room", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get room")
		return nil, false
	}
	if room == nil || room.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	return room, true
}
