package lifecycle

import (
	"context"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

// Store runs lifecycle operations against the entity store. InTx must give fn
// a serializable view: reads made through tx see no concurrent writes until
// fn returns. Returning an error from fn rolls the transaction back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes the engine needs inside one transaction.
// Getters return (nil, nil) when the entity does not exist. Set* methods are
// compare-and-swap updates keyed on the expected current status; they report
// false when the row no longer matches.
type Tx interface {
	GetMember(orgID, userID int64) (*model.OrgMember, error)
	GetFloor(id int64) (*model.Floor, error)
	GetRoom(id int64) (*model.Room, error)

	GetActiveOverride(roomID int64) (*model.RoomChecklistOverride, error)
	GetTemplate(id int64) (*model.ChecklistTemplate, error)
	GetDefaultTemplate(orgID, roomTypeID int64) (*model.ChecklistTemplate, error)

	GetActivity(id int64) (*model.Activity, error)
	CreateActivity(a model.Activity) (*model.Activity, error)
	SetActivityStatus(id int64, from, to model.ActivityStatus, at time.Time) (bool, error)
	CloseActivity(id int64, from model.ActivityStatus, passRate *float64, outcome model.Outcome, threshold float64, at time.Time) (bool, error)

	GetRoomTask(id int64) (*model.RoomTask, error)
	ListRoomTasks(activityID int64) ([]model.RoomTask, error)
	CreateRoomTask(t model.RoomTask) (*model.RoomTask, error)
	SetRoomTaskStatus(id int64, from, to model.TaskStatus, issueNote string, at time.Time) (bool, error)
	SetRoomTaskAssignee(id int64, from model.TaskStatus, workerID int64) (bool, error)
	CancelRoomTasks(activityID int64, at time.Time) (int64, error)
	SetInspection(id int64, result model.InspectionResult, note string, by int64, at time.Time) (bool, error)

	GetItemResponse(taskID, itemID int64) (*model.ItemResponse, error)
	ListItemResponses(taskID int64) ([]model.ItemResponse, error)
	UpsertItemResponse(r model.ItemResponse) (*model.ItemResponse, error)

	GetDeficiency(id int64) (*model.Deficiency, error)
	GetOpenDeficiency(taskID int64) (*model.Deficiency, error)
	CreateDeficiency(d model.Deficiency) (*model.Deficiency, error)
	SetDeficiencyStatus(id int64, from, to model.DeficiencyStatus, note string, by int64, at time.Time) (bool, error)
	SetDeficiencyAssignee(id int64, from model.DeficiencyStatus, assigneeID int64) (bool, error)
}
