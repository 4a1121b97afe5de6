package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/database"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
	"github.com/dukerupert/cleanround/internal/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db      *sql.DB
	engine  *lifecycle.Engine
	hub     *websocket.Hub
	logger  *slog.Logger
	orgID   int64
	floorID int64
	rooms   []int64
	tpl     *model.ChecklistTemplate
	admin   auth.AuthContext
	sup     auth.AuthContext
	worker  auth.AuthContext
	other   auth.AuthContext // member of a different organisation
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, logger: discardLogger()}
	orgs := store.NewOrgStore(db)
	users := store.NewUserStore(db)
	org, err := orgs.Create("Acme Cleaning", 80)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	f.orgID = org.ID

	member := func(orgID int64, email, role string) auth.AuthContext {
		u, err := users.Create(email, email)
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if _, err := orgs.AddMember(orgID, u.ID, role); err != nil {
			t.Fatalf("add member: %v", err)
		}
		return auth.AuthContext{UserID: u.ID, OrgID: orgID, Role: role}
	}
	f.admin = member(org.ID, "ada@example.com", model.RoleAdmin)
	f.sup = member(org.ID, "sam@example.com", model.RoleSupervisor)
	f.worker = member(org.ID, "wren@example.com", model.RoleWorker)

	rival, err := orgs.Create("Rival Co", 90)
	if err != nil {
		t.Fatalf("create rival org: %v", err)
	}
	f.other = member(rival.ID, "ray@example.com", model.RoleAdmin)

	fs := store.NewFacilityStore(db)
	b, err := fs.CreateBuilding(org.ID, "North Tower", "")
	if err != nil {
		t.Fatalf("create building: %v", err)
	}
	fl, err := fs.CreateFloor(b.ID, "Level 3", 3)
	if err != nil {
		t.Fatalf("create floor: %v", err)
	}
	f.floorID = fl.ID
	rt, err := fs.CreateRoomType(org.ID, "Office")
	if err != nil {
		t.Fatalf("create room type: %v", err)
	}
	for i, name := range []string{"301", "302"} {
		r, err := fs.CreateRoom(fl.ID, &rt.ID, name, i)
		if err != nil {
			t.Fatalf("create room: %v", err)
		}
		f.rooms = append(f.rooms, r.ID)
	}
	f.tpl, err = store.NewChecklistStore(db).CreateTemplate(org.ID, "Office standard", &rt.ID, true, []store.ItemInput{
		{Label: "Empty bins", OrderIndex: 1},
		{Label: "Vacuum carpet", OrderIndex: 2, RequiresPhoto: true},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	f.hub = websocket.NewHub(f.logger)
	f.engine = lifecycle.NewEngine(store.NewLifecycle(db), nil, f.logger)
	return f
}

// call routes one request through a mux holding only pattern, with ac as
// the authenticated caller.
func call(t *testing.T, h http.HandlerFunc, pattern, method, path string, ac auth.AuthContext, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(auth.WithAuth(req.Context(), ac))

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func (f *fixture) activityHandler() *ActivityHandler {
	db := f.db
	return NewActivityHandler(f.engine, store.NewActivityStore(db), store.NewRoomTaskStore(db), store.NewOrgStore(db), f.hub, f.logger)
}

func (f *fixture) taskHandler(photos PhotoStore) *TaskHandler {
	return NewTaskHandler(f.engine, store.NewRoomTaskStore(f.db), store.NewActivityStore(f.db), photos, f.hub, f.logger)
}

// publish creates and publishes an activity over rooms, all assigned to the
// worker.
func (f *fixture) publish(t *testing.T, rooms ...int64) *lifecycle.Publication {
	t.Helper()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	a, err := f.engine.CreateActivity(context.Background(), f.sup.Actor(), lifecycle.ActivityDraft{
		FloorID:     f.floorID,
		Name:        "Morning round",
		WindowStart: day.Add(7 * time.Hour),
		WindowEnd:   day.Add(9 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	var as []lifecycle.Assignment
	for _, r := range rooms {
		as = append(as, lifecycle.Assignment{RoomID: r, WorkerID: &f.worker.UserID})
	}
	pub, err := f.engine.Publish(context.Background(), f.sup.Actor(), a.ID, as)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return pub
}

// finish takes a task through start, every checklist item, and completion.
func (f *fixture) finish(t *testing.T, task model.RoomTask) {
	t.Helper()
	ctx := context.Background()
	w := f.worker.Actor()
	if _, err := f.engine.Start(ctx, w, task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, it := range task.Checklist {
		in := lifecycle.ItemResponseInput{ItemID: it.ItemID, Completed: true, Note: "ok"}
		if it.RequiresPhoto {
			in.PhotoKey = "org/1/tasks/1/items/1/x.jpg"
		}
		if _, err := f.engine.RecordItemResponse(ctx, w, task.ID, in); err != nil {
			t.Fatalf("record item: %v", err)
		}
	}
	if _, err := f.engine.Complete(ctx, w, task.ID, model.TaskDone, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return v
}
