package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
	"github.com/dukerupert/cleanround/internal/websocket"
)

type deficiencyDetail struct {
	*model.Deficiency
	Events []string `json:"events"`
}

type DeficiencyHandler struct {
	engine       *lifecycle.Engine
	deficiencies *store.DeficiencyStore
	hub          *websocket.Hub
	logger       *slog.Logger
}

func NewDeficiencyHandler(engine *lifecycle.Engine, ds *store.DeficiencyStore, hub *websocket.Hub, logger *slog.Logger) *DeficiencyHandler {
	return &DeficiencyHandler{engine: engine, deficiencies: ds, hub: hub, logger: logger}
}

func (h *DeficiencyHandler) changed(d *model.Deficiency, action string) {
	broadcast(h.hub, d.OrgID, websocket.NewMessage("deficiency", action, d.ID, map[string]any{
		"room_task_id": d.RoomTaskID,
		"status":       d.Status,
	}))
}

// Open handles POST /api/tasks/{id}/deficiencies
func (h *DeficiencyHandler) Open(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Description string         `json:"description"`
		Severity    model.Severity `json:"severity"`
		AssigneeID  *int64         `json:"assignee_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	d, err := h.engine.OpenDeficiency(r.Context(), auth.ActorFrom(r.Context()), taskID, lifecycle.DeficiencyInput{
		Description: req.Description,
		Severity:    req.Severity,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "open deficiency", err)
		return
	}
	h.changed(d, "opened")
	writeJSON(w, http.StatusCreated, d)
}

// List handles GET /api/deficiencies?status=&assigned_to=&task_id=&unresolved=
// assigned_to=me selects the caller's own deficiencies.
func (h *DeficiencyHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.DeficiencyFilter
	if v := q.Get("status"); v != "" {
		f.Status = model.DeficiencyStatus(v)
		if !lifecycle.ValidDeficiencyStatus(f.Status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	switch v := q.Get("assigned_to"); v {
	case "":
	case "me":
		f.AssignedTo = auth.UserID(r.Context())
	default:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid assigned_to")
			return
		}
		f.AssignedTo = id
	}
	if v := q.Get("task_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid task_id")
			return
		}
		f.RoomTaskID = id
	}
	if v := q.Get("unresolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid unresolved")
			return
		}
		f.Unresolved = b
	}

	list, err := h.deficiencies.List(auth.OrgID(r.Context()), f)
	if err != nil {
		h.logger.Error("list deficiencies", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deficiencies")
		return
	}
	if list == nil {
		list = []model.Deficiency{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/deficiencies/{id}
func (h *DeficiencyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.deficiencies.GetByID(id)
	if err != nil {
		h.logger.Error("get deficiency", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get deficiency")
		return
	}
	if d == nil || d.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "deficiency not found")
		return
	}
	writeJSON(w, http.StatusOK, deficiencyDetail{Deficiency: d, Events: lifecycle.DeficiencyEvents(d.Status)})
}

// Start handles POST /api/deficiencies/{id}/start
func (h *DeficiencyHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	actor := auth.ActorFrom(r.Context())
	d, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.Deficiency, error) {
		return h.engine.StartDeficiency(ctx, actor, id)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "start deficiency", err)
		return
	}
	h.changed(d, "started")
	writeJSON(w, http.StatusOK, d)
}

// Resolve handles POST /api/deficiencies/{id}/resolve
func (h *DeficiencyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	actor := auth.ActorFrom(r.Context())
	d, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.Deficiency, error) {
		return h.engine.ResolveDeficiency(ctx, actor, id, req.Note)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "resolve deficiency", err)
		return
	}
	h.changed(d, "resolved")
	writeJSON(w, http.StatusOK, d)
}

// Reassign handles POST /api/deficiencies/{id}/reassign
func (h *DeficiencyHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		AssigneeID int64 `json:"assignee_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	actor := auth.ActorFrom(r.Context())
	d, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.Deficiency, error) {
		return h.engine.ReassignDeficiency(ctx, actor, id, req.AssigneeID)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "reassign deficiency", err)
		return
	}
	h.changed(d, "reassigned")
	writeJSON(w, http.StatusOK, d)
}
