package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
	"github.com/dukerupert/cleanround/internal/websocket"
)

const dateLayout = "2006-01-02"

func broadcast(hub *websocket.Hub, orgID int64, msg websocket.Message) {
	if hub != nil {
		hub.Broadcast(orgID, msg)
	}
}

type ActivityHandler struct {
	engine     *lifecycle.Engine
	activities *store.ActivityStore
	tasks      *store.RoomTaskStore
	orgs       *store.OrgStore
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewActivityHandler(engine *lifecycle.Engine, as *store.ActivityStore, ts *store.RoomTaskStore, os *store.OrgStore, hub *websocket.Hub, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{engine: engine, activities: as, tasks: ts, orgs: os, hub: hub, logger: logger}
}

type activityDetail struct {
	*model.Activity
	Tasks  []model.RoomTask `json:"tasks"`
	Events []string         `json:"events"`
}

// Create handles POST /api/activities
func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FloorID       int64     `json:"floor_id"`
		Name          string    `json:"name"`
		ScheduledDate string    `json:"scheduled_date"`
		WindowStart   time.Time `json:"window_start"`
		WindowEnd     time.Time `json:"window_end"`
		Notes         string    `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	scheduled := req.WindowStart
	if req.ScheduledDate != "" {
		d, err := time.Parse(dateLayout, req.ScheduledDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "scheduled_date must be YYYY-MM-DD")
			return
		}
		scheduled = d
	}

	a, err := h.engine.CreateActivity(r.Context(), auth.ActorFrom(r.Context()), lifecycle.ActivityDraft{
		FloorID:       req.FloorID,
		Name:          req.Name,
		ScheduledDate: scheduled,
		WindowStart:   req.WindowStart,
		WindowEnd:     req.WindowEnd,
		Notes:         req.Notes,
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "create activity", err)
		return
	}
	broadcast(h.hub, a.OrgID, websocket.NewMessage("activity", "created", a.ID, nil))
	writeJSON(w, http.StatusCreated, a)
}

// List handles GET /api/activities?floor_id=&status=&from=&to=
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.ActivityFilter
	if v := q.Get("floor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid floor_id")
			return
		}
		f.FloorID = id
	}
	if v := q.Get("status"); v != "" {
		f.Status = model.ActivityStatus(v)
		if !lifecycle.ValidActivityStatus(f.Status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	for param, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+param+" date, use YYYY-MM-DD")
			return
		}
		*dst = d
	}

	activities, err := h.activities.List(auth.OrgID(r.Context()), f)
	if err != nil {
		h.logger.Error("list activities", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list activities")
		return
	}
	if activities == nil {
		activities = []model.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

// Get handles GET /api/activities/{id}
func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	tasks, err := h.tasks.ListByActivity(a.ID)
	if err != nil {
		h.logger.Error("list activity tasks", "id", a.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.RoomTask{}
	}
	writeJSON(w, http.StatusOK, activityDetail{Activity: a, Tasks: tasks, Events: lifecycle.ActivityEvents(a.Status)})
}

// Publish handles POST /api/activities/{id}/publish
func (h *ActivityHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Assignments []lifecycle.Assignment `json:"assignments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	actor := auth.ActorFrom(r.Context())
	pub, err := withConflictRetry(r.Context(), func(ctx context.Context) (*lifecycle.Publication, error) {
		return h.engine.Publish(ctx, actor, id, req.Assignments)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "publish activity", err)
		return
	}
	broadcast(h.hub, pub.Activity.OrgID, websocket.NewMessage("activity", "published", id, map[string]any{"tasks": len(pub.Tasks)}))
	writeJSON(w, http.StatusOK, pub)
}

// Cancel handles POST /api/activities/{id}/cancel
func (h *ActivityHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	actor := auth.ActorFrom(r.Context())
	a, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.Activity, error) {
		return h.engine.Cancel(ctx, actor, id)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "cancel activity", err)
		return
	}
	broadcast(h.hub, a.OrgID, websocket.NewMessage("activity", "cancelled", id, nil))
	writeJSON(w, http.StatusOK, a)
}

// Close handles POST /api/activities/{id}/close. The outcome is always judged
// against the organisation's threshold, which is frozen on the activity.
func (h *ActivityHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	threshold, ok := h.threshold(w, r, nil)
	if !ok {
		return
	}

	actor := auth.ActorFrom(r.Context())
	closure, err := withConflictRetry(r.Context(), func(ctx context.Context) (*lifecycle.Closure, error) {
		return h.engine.Close(ctx, actor, id, threshold)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "close activity", err)
		return
	}
	broadcast(h.hub, closure.Activity.OrgID, websocket.NewMessage("activity", "closed", id, map[string]any{
		"outcome": closure.Evaluation.Outcome,
	}))
	writeJSON(w, http.StatusOK, closure)
}

// Report handles GET /api/activities/{id}/report?threshold=
func (h *ActivityHandler) Report(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	var override *float64
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		override = &t
	}
	threshold, ok := h.threshold(w, r, override)
	if !ok {
		return
	}

	ev, err := h.engine.Report(r.Context(), auth.ActorFrom(r.Context()), a.ID, threshold)
	if err != nil {
		writeLifecycleError(w, h.logger, "report activity", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// load fetches the activity named by the path, answering 404 for other
// organisations' activities.
func (h *ActivityHandler) load(w http.ResponseWriter, r *http.Request) (*model.Activity, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	a, err := h.activities.GetByID(id)
	if err != nil {
		h.logger.Error("get activity", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get activity")
		return nil, false
	}
	if a == nil || a.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "activity not found")
		return nil, false
	}
	return a, true
}

// threshold returns override, or the caller's organisation threshold.
func (h *ActivityHandler) threshold(w http.ResponseWriter, r *http.Request, override *float64) (float64, bool) {
	if override != nil {
		return *override, true
	}
	org, err := h.orgs.GetByID(auth.OrgID(r.Context()))
	if err != nil || org == nil {
		h.logger.Error("get organisation threshold", "org_id", auth.OrgID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load organisation")
		return 0, false
	}
	return org.PassThreshold, true
}
