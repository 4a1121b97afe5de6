package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/cleanround/internal/database"
	"github.com/dukerupert/cleanround/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is one organisation with a supervisor, a worker, a floor with two
// rooms of the same type, and a default checklist for that type.
type fixture struct {
	db           *sql.DB
	orgID        int64
	supervisorID int64
	workerID     int64
	floorID      int64
	roomTypeID   int64
	roomIDs      []int64
	template     *model.ChecklistTemplate
}

func seedFixture(t *testing.T) fixture {
	t.Helper()
	db := openTestDB(t)
	f := fixture{db: db}

	org, err := NewOrgStore(db).Create("Acme Cleaning", 80)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	f.orgID = org.ID

	us := NewUserStore(db)
	sup, err := us.Create("sam@example.com", "Sam")
	if err != nil {
		t.Fatalf("create supervisor: %v", err)
	}
	wrk, err := us.Create("wren@example.com", "Wren")
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	f.supervisorID, f.workerID = sup.ID, wrk.ID

	orgs := NewOrgStore(db)
	if _, err := orgs.AddMember(f.orgID, sup.ID, model.RoleSupervisor); err != nil {
		t.Fatalf("add supervisor: %v", err)
	}
	if _, err := orgs.AddMember(f.orgID, wrk.ID, model.RoleWorker); err != nil {
		t.Fatalf("add worker: %v", err)
	}

	fs := NewFacilityStore(db)
	b, err := fs.CreateBuilding(f.orgID, "North Tower", "1 Main St")
	if err != nil {
		t.Fatalf("create building: %v", err)
	}
	fl, err := fs.CreateFloor(b.ID, "Level 3", 3)
	if err != nil {
		t.Fatalf("create floor: %v", err)
	}
	f.floorID = fl.ID
	rt, err := fs.CreateRoomType(f.orgID, "Restroom")
	if err != nil {
		t.Fatalf("create room type: %v", err)
	}
	f.roomTypeID = rt.ID
	for i, name := range []string{"301", "302"} {
		r, err := fs.CreateRoom(fl.ID, &rt.ID, name, i)
		if err != nil {
			t.Fatalf("create room %s: %v", name, err)
		}
		f.roomIDs = append(f.roomIDs, r.ID)
	}

	f.template, err = NewChecklistStore(db).CreateTemplate(f.orgID, "Restroom standard", &rt.ID, true, []ItemInput{
		{Label: "Restock paper", OrderIndex: 1},
		{Label: "Mop floor", OrderIndex: 2, RequiresPhoto: true},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return f
}
