package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
)

func TestActivityCreateAndGet(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()

	rec := call(t, h.Create, "POST /api/activities", http.MethodPost, "/api/activities", f.sup, map[string]any{
		"floor_id":       f.floorID,
		"name":           "Evening round",
		"scheduled_date": "2026-03-02",
		"window_start":   "2026-03-02T18:00:00Z",
		"window_end":     "2026-03-02T20:00:00Z",
	})
	wantStatus(t, rec, http.StatusCreated)
	a := decode[model.Activity](t, rec)
	if a.Status != model.ActivityDraft {
		t.Errorf("status = %q, want %q", a.Status, model.ActivityDraft)
	}

	path := fmt.Sprintf("/api/activities/%d", a.ID)
	rec = call(t, h.Get, "GET /api/activities/{id}", http.MethodGet, path, f.worker, nil)
	wantStatus(t, rec, http.StatusOK)
	got := decode[struct {
		ID     int64            `json:"id"`
		Tasks  []model.RoomTask `json:"tasks"`
		Events []string         `json:"events"`
	}](t, rec)
	if got.ID != a.ID || got.Tasks == nil || len(got.Tasks) != 0 {
		t.Errorf("detail = %+v, want id %d with empty tasks", got, a.ID)
	}
	if len(got.Events) != 2 || got.Events[0] != lifecycle.EventCancel || got.Events[1] != lifecycle.EventPublish {
		t.Errorf("events = %v, want [cancel publish]", got.Events)
	}

	rec = call(t, h.Get, "GET /api/activities/{id}", http.MethodGet, path, f.other, nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestActivityCreateByWorkerForbidden(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()

	rec := call(t, h.Create, "POST /api/activities", http.MethodPost, "/api/activities", f.worker, map[string]any{
		"floor_id":     f.floorID,
		"name":         "Sneaky round",
		"window_start": "2026-03-02T18:00:00Z",
		"window_end":   "2026-03-02T20:00:00Z",
	})
	wantStatus(t, rec, http.StatusForbidden)
	body := decode[lifecycleErrorBody](t, rec)
	if body.Code != string(lifecycle.CodeForbidden) {
		t.Errorf("code = %q, want %q", body.Code, lifecycle.CodeForbidden)
	}
}

func TestActivityCreateRejectsBadWindow(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()

	rec := call(t, h.Create, "POST /api/activities", http.MethodPost, "/api/activities", f.sup, map[string]any{
		"floor_id":     f.floorID,
		"name":         "Backwards",
		"window_start": "2026-03-02T20:00:00Z",
		"window_end":   "2026-03-02T18:00:00Z",
	})
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestActivityPublishEmptyAssignment(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()

	rec := call(t, h.Create, "POST /api/activities", http.MethodPost, "/api/activities", f.sup, map[string]any{
		"floor_id":     f.floorID,
		"name":         "Empty",
		"window_start": "2026-03-02T07:00:00Z",
		"window_end":   "2026-03-02T09:00:00Z",
	})
	wantStatus(t, rec, http.StatusCreated)
	a := decode[model.Activity](t, rec)

	rec = call(t, h.Publish, "POST /api/activities/{id}/publish", http.MethodPost,
		fmt.Sprintf("/api/activities/%d/publish", a.ID), f.sup, map[string]any{"assignments": []any{}})
	wantStatus(t, rec, http.StatusBadRequest)
	body := decode[lifecycleErrorBody](t, rec)
	if body.Code != string(lifecycle.CodeEmptyAssignment) {
		t.Errorf("code = %q, want %q", body.Code, lifecycle.CodeEmptyAssignment)
	}
}

func TestActivityPublishCreatesTasks(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()

	a, err := f.engine.CreateActivity(context.Background(), f.sup.Actor(), lifecycle.ActivityDraft{
		FloorID:     f.floorID,
		Name:        "Round",
		WindowStart: mustTime(t, "2026-03-02T07:00:00Z"),
		WindowEnd:   mustTime(t, "2026-03-02T09:00:00Z"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := call(t, h.Publish, "POST /api/activities/{id}/publish", http.MethodPost,
		fmt.Sprintf("/api/activities/%d/publish", a.ID), f.sup, map[string]any{
			"assignments": []map[string]any{
				{"room_id": f.rooms[0], "worker_id": f.worker.UserID},
				{"room_id": f.rooms[1]},
			},
		})
	wantStatus(t, rec, http.StatusOK)
	pub := decode[lifecycle.Publication](t, rec)
	if pub.Activity.Status != model.ActivityActive {
		t.Errorf("status = %q, want %q", pub.Activity.Status, model.ActivityActive)
	}
	if len(pub.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(pub.Tasks))
	}
	if len(pub.Tasks[0].Checklist) != len(f.tpl.Items) {
		t.Errorf("checklist items = %d, want %d", len(pub.Tasks[0].Checklist), len(f.tpl.Items))
	}

	rec = call(t, h.Publish, "POST /api/activities/{id}/publish", http.MethodPost,
		fmt.Sprintf("/api/activities/%d/publish", a.ID), f.sup, map[string]any{
			"assignments": []map[string]any{{"room_id": f.rooms[0]}},
		})
	wantStatus(t, rec, http.StatusConflict)
	body := decode[lifecycleErrorBody](t, rec)
	if body.Code != string(lifecycle.CodeInvalidTransition) {
		t.Errorf("code = %q, want %q", body.Code, lifecycle.CodeInvalidTransition)
	}
}

func TestActivityCloseListsIncompleteTasks(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()
	pub := f.publish(t, f.rooms...)

	rec := call(t, h.Close, "POST /api/activities/{id}/close", http.MethodPost,
		fmt.Sprintf("/api/activities/%d/close", pub.Activity.ID), f.sup, nil)
	wantStatus(t, rec, http.StatusConflict)
	body := decode[lifecycleErrorBody](t, rec)
	if body.Code != string(lifecycle.CodeIncompleteTasks) {
		t.Errorf("code = %q, want %q", body.Code, lifecycle.CodeIncompleteTasks)
	}
	if len(body.TaskIDs) != 2 {
		t.Errorf("task_ids = %v, want 2 ids", body.TaskIDs)
	}
}

func TestActivityCloseUsesOrgThresholdAndFreezesIt(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()
	pub := f.publish(t, f.rooms...)
	ctx := context.Background()

	for i, task := range pub.Tasks {
		f.finish(t, task)
		result := model.InspectionPass
		if i == 1 {
			result = model.InspectionFail
		}
		if _, err := f.engine.Inspect(ctx, f.sup.Actor(), task.ID, lifecycle.InspectionInput{Result: result, Note: "checked"}); err != nil {
			t.Fatalf("inspect: %v", err)
		}
	}

	rec := call(t, h.Close, "POST /api/activities/{id}/close", http.MethodPost,
		fmt.Sprintf("/api/activities/%d/close", pub.Activity.ID), f.sup, nil)
	wantStatus(t, rec, http.StatusOK)
	closure := decode[lifecycle.Closure](t, rec)
	if closure.Evaluation.Outcome != model.OutcomeFail {
		t.Errorf("outcome = %q, want %q", closure.Evaluation.Outcome, model.OutcomeFail)
	}
	if closure.Evaluation.Threshold != 80 {
		t.Errorf("threshold = %v, want 80", closure.Evaluation.Threshold)
	}

	rec = call(t, h.Report, "GET /api/activities/{id}/report", http.MethodGet,
		fmt.Sprintf("/api/activities/%d/report?threshold=40", pub.Activity.ID), f.worker, nil)
	wantStatus(t, rec, http.StatusOK)
	ev := decode[lifecycle.Evaluation](t, rec)
	if ev.Threshold != 80 || ev.Outcome != model.OutcomeFail {
		t.Errorf("report = threshold %v outcome %q, want 80 %q", ev.Threshold, ev.Outcome, model.OutcomeFail)
	}
}

func TestActivityCloseIgnoresBodyThreshold(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()
	pub := f.publish(t, f.rooms...)
	ctx := context.Background()

	for i, task := range pub.Tasks {
		f.finish(t, task)
		result := model.InspectionPass
		if i == 1 {
			result = model.InspectionFail
		}
		if _, err := f.engine.Inspect(ctx, f.sup.Actor(), task.ID, lifecycle.InspectionInput{Result: result, Note: "checked"}); err != nil {
			t.Fatalf("inspect: %v", err)
		}
	}

	rec := call(t, h.Close, "POST /api/activities/{id}/close", http.MethodPost,
		fmt.Sprintf("/api/activities/%d/close", pub.Activity.ID), f.sup, map[string]any{"pass_threshold": 0})
	wantStatus(t, rec, http.StatusOK)
	closure := decode[lifecycle.Closure](t, rec)
	if closure.Evaluation.Threshold != 80 || closure.Evaluation.Outcome != model.OutcomeFail {
		t.Errorf("evaluation = threshold %v outcome %q, want 80 %q",
			closure.Evaluation.Threshold, closure.Evaluation.Outcome, model.OutcomeFail)
	}
	if closure.Activity.Threshold == nil || *closure.Activity.Threshold != 80 {
		t.Errorf("frozen threshold = %v, want 80", closure.Activity.Threshold)
	}
}

func TestActivityReportRejectsNaNThreshold(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()
	pub := f.publish(t, f.rooms...)

	for _, v := range []string{"NaN", "Inf", "101"} {
		rec := call(t, h.Report, "GET /api/activities/{id}/report", http.MethodGet,
			fmt.Sprintf("/api/activities/%d/report?threshold=%s", pub.Activity.ID, v), f.worker, nil)
		wantStatus(t, rec, http.StatusBadRequest)
	}

	rec := call(t, h.Report, "GET /api/activities/{id}/report", http.MethodGet,
		fmt.Sprintf("/api/activities/%d/report", pub.Activity.ID), f.other, nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestActivityListFilters(t *testing.T) {
	f := setup(t)
	h := f.activityHandler()
	f.publish(t, f.rooms[0])

	rec := call(t, h.List, "GET /api/activities", http.MethodGet, "/api/activities?status=active", f.sup, nil)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Activity](t, rec); len(got) != 1 {
		t.Errorf("active = %d, want 1", len(got))
	}

	rec = call(t, h.List, "GET /api/activities", http.MethodGet, "/api/activities?status=closed", f.sup, nil)
	wantStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("closed body = %q, want empty array", body)
	}

	rec = call(t, h.List, "GET /api/activities", http.MethodGet, "/api/activities?status=bogus", f.sup, nil)
	wantStatus(t, rec, http.StatusBadRequest)

	rec = call(t, h.List, "GET /api/activities", http.MethodGet, "/api/activities", f.other, nil)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Activity](t, rec); len(got) != 0 {
		t.Errorf("other org sees %d activities, want 0", len(got))
	}
}
