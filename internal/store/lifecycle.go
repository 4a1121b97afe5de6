package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
)

// Lifecycle implements lifecycle.Store over SQLite. Every call to InTx runs
// in one database transaction; with the single-connection pool from
// database.Open transactions never interleave.
type Lifecycle struct {
	db *sql.DB
}

func NewLifecycle(db *sql.DB) *Lifecycle {
	return &Lifecycle{db: db}
}

func (l *Lifecycle) InTx(ctx context.Context, fn func(tx lifecycle.Tx) error) error {
	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(newLifecycleTx(sqlTx)); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// lifecycleTx binds the entity stores to one transaction.
type lifecycleTx struct {
	orgs         *OrgStore
	facilities   *FacilityStore
	checklists   *ChecklistStore
	activities   *ActivityStore
	tasks        *RoomTaskStore
	deficiencies *DeficiencyStore
}

func newLifecycleTx(q querier) *lifecycleTx {
	return &lifecycleTx{
		orgs:         &OrgStore{db: q},
		facilities:   &FacilityStore{db: q},
		checklists:   &ChecklistStore{db: q},
		activities:   &ActivityStore{db: q},
		tasks:        &RoomTaskStore{db: q},
		deficiencies: &DeficiencyStore{db: q},
	}
}

var _ lifecycle.Tx = (*lifecycleTx)(nil)

func (t *lifecycleTx) GetMember(orgID, userID int64) (*model.OrgMember, error) {
	return t.orgs.GetMember(orgID, userID)
}

func (t *lifecycleTx) GetFloor(id int64) (*model.Floor, error) { return t.facilities.GetFloor(id) }
func (t *lifecycleTx) GetRoom(id int64) (*model.Room, error)   { return t.facilities.GetRoom(id) }

func (t *lifecycleTx) GetActiveOverride(roomID int64) (*model.RoomChecklistOverride, error) {
	return t.checklists.GetActiveOverride(roomID)
}

func (t *lifecycleTx) GetTemplate(id int64) (*model.ChecklistTemplate, error) {
	return t.checklists.GetTemplate(id)
}

func (t *lifecycleTx) GetDefaultTemplate(orgID, roomTypeID int64) (*model.ChecklistTemplate, error) {
	return t.checklists.GetDefaultTemplate(orgID, roomTypeID)
}

func (t *lifecycleTx) GetActivity(id int64) (*model.Activity, error) {
	return t.activities.GetByID(id)
}

func (t *lifecycleTx) CreateActivity(a model.Activity) (*model.Activity, error) {
	return t.activities.Create(a)
}

func (t *lifecycleTx) SetActivityStatus(id int64, from, to model.ActivityStatus, at time.Time) (bool, error) {
	return t.activities.SetStatus(id, from, to, at)
}

func (t *lifecycleTx) CloseActivity(id int64, from model.ActivityStatus, passRate *float64, outcome model.Outcome, threshold float64, at time.Time) (bool, error) {
	return t.activities.Close(id, from, passRate, outcome, threshold, at)
}

func (t *lifecycleTx) GetRoomTask(id int64) (*model.RoomTask, error) {
	return t.tasks.GetByID(id)
}

func (t *lifecycleTx) ListRoomTasks(activityID int64) ([]model.RoomTask, error) {
	return t.tasks.ListByActivity(activityID)
}

func (t *lifecycleTx) CreateRoomTask(task model.RoomTask) (*model.RoomTask, error) {
	return t.tasks.Create(task)
}

func (t *lifecycleTx) SetRoomTaskStatus(id int64, from, to model.TaskStatus, issueNote string, at time.Time) (bool, error) {
	return t.tasks.SetStatus(id, from, to, issueNote, at)
}

func (t *lifecycleTx) SetRoomTaskAssignee(id int64, from model.TaskStatus, workerID int64) (bool, error) {
	return t.tasks.SetAssignee(id, from, workerID)
}

func (t *lifecycleTx) CancelRoomTasks(activityID int64, at time.Time) (int64, error) {
	return t.tasks.CancelOpen(activityID, at)
}

func (t *lifecycleTx) SetInspection(id int64, result model.InspectionResult, note string, by int64, at time.Time) (bool, error) {
	return t.tasks.SetInspection(id, result, note, by, at)
}

func (t *lifecycleTx) GetItemResponse(taskID, itemID int64) (*model.ItemResponse, error) {
	return t.tasks.GetResponse(taskID, itemID)
}

func (t *lifecycleTx) ListItemResponses(taskID int64) ([]model.ItemResponse, error) {
	return t.tasks.ListResponses(taskID)
}

func (t *lifecycleTx) UpsertItemResponse(r model.ItemResponse) (*model.ItemResponse, error) {
	return t.tasks.UpsertResponse(r)
}

func (t *lifecycleTx) GetDeficiency(id int64) (*model.Deficiency, error) {
	return t.deficiencies.GetByID(id)
}

func (t *lifecycleTx) GetOpenDeficiency(taskID int64) (*model.Deficiency, error) {
	return t.deficiencies.GetOpenForTask(taskID)
}

func (t *lifecycleTx) CreateDeficiency(d model.Deficiency) (*model.Deficiency, error) {
	return t.deficiencies.Create(d)
}

func (t *lifecycleTx) SetDeficiencyStatus(id int64, from, to model.DeficiencyStatus, note string, by int64, at time.Time) (bool, error) {
	return t.deficiencies.SetStatus(id, from, to, note, by, at)
}

func (t *lifecycleTx) SetDeficiencyAssignee(id int64, from model.DeficiencyStatus, assigneeID int64) (bool, error) {
	return t.deficiencies.SetAssignee(id, from, assigneeID)
}
