package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/evidence"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
	"github.com/dukerupert/cleanround/internal/websocket"
)

// PhotoStore keeps checklist photo evidence.
type PhotoStore interface {
	Enabled() bool
	Put(ctx context.Context, orgID, taskID, itemID int64, contentType string, body io.Reader, size int64) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// taskDetail adds the events the task accepts right now.
type taskDetail struct {
	*model.RoomTask
	Events []string `json:"events"`
}

type TaskHandler struct {
	engine     *lifecycle.Engine
	tasks      *store.RoomTaskStore
	activities *store.ActivityStore
	photos     PhotoStore
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewTaskHandler(engine *lifecycle.Engine, ts *store.RoomTaskStore, as *store.ActivityStore, photos PhotoStore, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{engine: engine, tasks: ts, activities: as, photos: photos, hub: hub, logger: logger}
}

func (h *TaskHandler) changed(orgID int64, t *model.RoomTask, action string) {
	broadcast(h.hub, orgID, websocket.NewMessage("task", action, t.ID, map[string]any{
		"activity_id": t.ActivityID,
		"status":      t.Status,
	}))
}

// load reads a task the caller's organisation owns. It writes the error
// response itself and returns ok=false on failure.
func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request) (*model.RoomTask, *model.Activity, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, nil, false
	}
	t, err := h.tasks.GetByID(id)
	if err != nil {
		h.logger.Error("get room task", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil, nil, false
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, nil, false
	}
	a, err := h.activities.GetByID(t.ActivityID)
	if err != nil {
		h.logger.Error("get task activity", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return nil, nil, false
	}
	if a == nil || a.OrgID != auth.OrgID(r.Context()) {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, nil, false
	}
	return t, a, true
}

// Mine handles GET /api/tasks/mine
func (h *TaskHandler) Mine(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListByAssignee(auth.OrgID(r.Context()), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list my tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.RoomTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, a, ok := h.load(w, r)
	if !ok {
		return
	}
	events := []string{}
	if a.Status == model.ActivityActive {
		events = lifecycle.TaskEvents(t.Status)
	}
	writeJSON(w, http.StatusOK, taskDetail{RoomTask: t, Events: events})
}

// Start handles POST /api/tasks/{id}/start
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	actor := auth.ActorFrom(r.Context())
	t, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.RoomTask, error) {
		return h.engine.Start(ctx, actor, id)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "start task", err)
		return
	}
	h.changed(actor.OrgID, t, "started")
	writeJSON(w, http.StatusOK, t)
}

// Assign handles POST /api/tasks/{id}/assign
func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		WorkerID int64 `json:"worker_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	actor := auth.ActorFrom(r.Context())
	t, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.RoomTask, error) {
		return h.engine.ReassignTask(ctx, actor, id, req.WorkerID)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "reassign task", err)
		return
	}
	h.changed(actor.OrgID, t, "assigned")
	writeJSON(w, http.StatusOK, t)
}

// RecordItem handles PUT /api/tasks/{id}/items/{item_id}
func (h *TaskHandler) RecordItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	itemID, err := parsePathInt(r, "item_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	var req struct {
		Completed bool   `json:"completed"`
		Note      string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	resp, err := h.engine.RecordItemResponse(r.Context(), auth.ActorFrom(r.Context()), id, lifecycle.ItemResponseInput{
		ItemID:    itemID,
		Completed: req.Completed,
		Note:      req.Note,
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "record item response", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadPhoto handles POST /api/tasks/{id}/items/{item_id}/photo with a
// multipart "photo" file. The item is marked completed unless the form says
// completed=false; an omitted note keeps the stored one.
func (h *TaskHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if h.photos == nil || !h.photos.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}
	t, a, ok := h.load(w, r)
	if !ok {
		return
	}
	itemID, err := parsePathInt(r, "item_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, evidence.MaxPhotoSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	completed := true
	if v := r.FormValue("completed"); v != "" {
		completed, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid completed value")
			return
		}
	}
	note, hasNote := r.MultipartForm.Value["note"]
	in := lifecycle.ItemResponseInput{ItemID: itemID, Completed: completed}
	if hasNote && len(note) > 0 {
		in.Note = note[0]
	} else {
		prev, err := h.tasks.GetResponse(t.ID, itemID)
		if err != nil {
			h.logger.Error("get item response", "task_id", t.ID, "item_id", itemID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read response")
			return
		}
		if prev != nil {
			in.Note = prev.Note
		}
	}

	key, err := h.photos.Put(r.Context(), a.OrgID, t.ID, itemID, header.Header.Get("Content-Type"), file, header.Size)
	switch {
	case errors.Is(err, evidence.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "photo must be JPEG, PNG, WebP or HEIC")
		return
	case errors.Is(err, evidence.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
		return
	case err != nil:
		h.logger.Error("store photo", "task_id", t.ID, "item_id", itemID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to store photo")
		return
	}
	in.PhotoKey = key

	resp, err := h.engine.RecordItemResponse(r.Context(), auth.ActorFrom(r.Context()), t.ID, in)
	if err != nil {
		// The uploaded object stays behind unreferenced.
		h.logger.Warn("photo stored but response rejected", "key", key, "error", err)
		writeLifecycleError(w, h.logger, "record item response", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Photo handles GET /api/tasks/{id}/items/{item_id}/photo
func (h *TaskHandler) Photo(w http.ResponseWriter, r *http.Request) {
	if h.photos == nil || !h.photos.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return
	}
	t, a, ok := h.load(w, r)
	if !ok {
		return
	}
	itemID, err := parsePathInt(r, "item_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	resp, err := h.tasks.GetResponse(t.ID, itemID)
	if err != nil {
		h.logger.Error("get item response", "task_id", t.ID, "item_id", itemID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read response")
		return
	}
	if resp == nil || resp.PhotoKey == "" || !evidence.OwnedBy(resp.PhotoKey, a.OrgID, t.ID) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}

	body, contentType, err := h.photos.Get(r.Context(), resp.PhotoKey)
	if err != nil {
		h.logger.Error("fetch photo", "key", resp.PhotoKey, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch photo")
		return
	}
	defer body.Close()
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	io.Copy(w, body)
}

// Responses handles GET /api/tasks/{id}/responses
func (h *TaskHandler) Responses(w http.ResponseWriter, r *http.Request) {
	t, _, ok := h.load(w, r)
	if !ok {
		return
	}
	responses, err := h.tasks.ListResponses(t.ID)
	if err != nil {
		h.logger.Error("list item responses", "task_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list responses")
		return
	}
	if responses == nil {
		responses = []model.ItemResponse{}
	}
	writeJSON(w, http.StatusOK, responses)
}

// Complete handles POST /api/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Status    model.TaskStatus `json:"status"`
		IssueNote string           `json:"issue_note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Status == "" {
		req.Status = model.TaskDone
	}

	actor := auth.ActorFrom(r.Context())
	t, err := withConflictRetry(r.Context(), func(ctx context.Context) (*model.RoomTask, error) {
		return h.engine.Complete(ctx, actor, id, req.Status, req.IssueNote)
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "complete task", err)
		return
	}
	h.changed(actor.OrgID, t, "completed")
	writeJSON(w, http.StatusOK, t)
}

// Inspect handles POST /api/tasks/{id}/inspect
func (h *TaskHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Result   model.InspectionResult `json:"result"`
		Note     string                 `json:"note"`
		Severity model.Severity         `json:"severity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	actor := auth.ActorFrom(r.Context())
	res, err := withConflictRetry(r.Context(), func(ctx context.Context) (*lifecycle.Inspection, error) {
		return h.engine.Inspect(ctx, actor, id, lifecycle.InspectionInput{
			Result:   req.Result,
			Note:     req.Note,
			Severity: req.Severity,
		})
	})
	if err != nil {
		writeLifecycleError(w, h.logger, "inspect task", err)
		return
	}
	h.changed(actor.OrgID, res.Task, "inspected")
	if res.Deficiency != nil {
		broadcast(h.hub, actor.OrgID, websocket.NewMessage("deficiency", "opened", res.Deficiency.ID, map[string]any{
			"room_task_id": res.Task.ID,
		}))
	}
	writeJSON(w, http.StatusOK, res)
}
