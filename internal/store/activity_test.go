package store

import (
	"testing"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

func createTestActivity(t *testing.T, f fixture, name string, day time.Time) *model.Activity {
	t.Helper()
	a, err := NewActivityStore(f.db).Create(model.Activity{
		OrgID:         f.orgID,
		FloorID:       f.floorID,
		Name:          name,
		ScheduledDate: day,
		WindowStart:   day.Add(8 * time.Hour),
		WindowEnd:     day.Add(10 * time.Hour),
		CreatedBy:     f.supervisorID,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return a
}

func TestActivityCreate(t *testing.T) {
	f := seedFixture(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	a := createTestActivity(t, f, "Morning round", day)
	if a.Status != model.ActivityDraft {
		t.Errorf("status = %q, want %q", a.Status, model.ActivityDraft)
	}
	if !a.WindowStart.Equal(day.Add(8 * time.Hour)) {
		t.Errorf("window_start = %v, want %v", a.WindowStart, day.Add(8*time.Hour))
	}
	if a.PassRate != nil || a.PublishedAt != nil {
		t.Error("expected nil pass rate and published_at on a draft")
	}
}

func TestActivitySetStatusCAS(t *testing.T) {
	f := seedFixture(t)
	as := NewActivityStore(f.db)
	a := createTestActivity(t, f, "Morning round", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	now := time.Now()

	ok, err := as.SetStatus(a.ID, model.ActivityDraft, model.ActivityActive, now)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if !ok {
		t.Fatal("expected first swap to apply")
	}

	ok, err = as.SetStatus(a.ID, model.ActivityDraft, model.ActivityCancelled, now)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if ok {
		t.Fatal("expected stale swap to be rejected")
	}

	got, _ := as.GetByID(a.ID)
	if got.Status != model.ActivityActive {
		t.Errorf("status = %q, want %q", got.Status, model.ActivityActive)
	}
	if got.PublishedAt == nil {
		t.Error("expected published_at to be stamped")
	}
}

func TestActivityClose(t *testing.T) {
	f := seedFixture(t)
	as := NewActivityStore(f.db)
	a := createTestActivity(t, f, "Morning round", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	as.SetStatus(a.ID, model.ActivityDraft, model.ActivityActive, time.Now())

	rate := 50.0
	ok, err := as.Close(a.ID, model.ActivityActive, &rate, model.OutcomeFail, 80, time.Now())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ok {
		t.Fatal("expected close to apply")
	}

	got, _ := as.GetByID(a.ID)
	if got.Status != model.ActivityClosed {
		t.Errorf("status = %q, want %q", got.Status, model.ActivityClosed)
	}
	if got.PassRate == nil || *got.PassRate != 50 {
		t.Errorf("pass_rate = %v, want 50", got.PassRate)
	}
	if got.Threshold == nil || *got.Threshold != 80 {
		t.Errorf("threshold = %v, want 80", got.Threshold)
	}
	if got.Outcome != model.OutcomeFail {
		t.Errorf("outcome = %q, want %q", got.Outcome, model.OutcomeFail)
	}
}

func TestActivityList(t *testing.T) {
	f := seedFixture(t)
	as := NewActivityStore(f.db)
	mon := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)

	a1 := createTestActivity(t, f, "Monday", mon)
	createTestActivity(t, f, "Tuesday", tue)
	as.SetStatus(a1.ID, model.ActivityDraft, model.ActivityActive, time.Now())

	all, err := as.List(f.orgID, ActivityFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Name != "Tuesday" {
		t.Errorf("first = %q, want newest first", all[0].Name)
	}

	active, _ := as.List(f.orgID, ActivityFilter{Status: model.ActivityActive})
	if len(active) != 1 || active[0].ID != a1.ID {
		t.Errorf("active = %v, want [%d]", active, a1.ID)
	}

	monday, _ := as.List(f.orgID, ActivityFilter{From: mon, To: tue})
	if len(monday) != 1 || monday[0].Name != "Monday" {
		t.Errorf("date range returned %d activities, want Monday only", len(monday))
	}

	other, _ := as.List(f.orgID+1, ActivityFilter{})
	if len(other) != 0 {
		t.Errorf("other org sees %d activities, want 0", len(other))
	}
}
