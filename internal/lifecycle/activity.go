package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

// ActivityDraft is the input for a new draft activity.
type ActivityDraft struct {
	FloorID       int64
	Name          string
	ScheduledDate time.Time
	WindowStart   time.Time
	WindowEnd     time.Time
	Notes         string
}

// Assignment binds a room to an optional worker when an activity is published.
type Assignment struct {
	RoomID   int64  `json:"room_id"`
	WorkerID *int64 `json:"worker_id"`
}

type Publication struct {
	Activity *model.Activity  `json:"activity"`
	Tasks    []model.RoomTask `json:"tasks"`
}

type Closure struct {
	Activity   *model.Activity `json:"activity"`
	Evaluation Evaluation      `json:"evaluation"`
}

func loadActivity(tx Tx, actor Actor, id int64) (*model.Activity, error) {
	a, err := tx.GetActivity(id)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if a == nil {
		return nil, notFound("activity", id)
	}
	if err := actor.requireOrg(a.OrgID); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateActivity stores a new activity in draft.
func (e *Engine) CreateActivity(ctx context.Context, actor Actor, in ActivityDraft) (*model.Activity, error) {
	if err := actor.requireSupervisor("create activities"); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalidInput("name is required")
	}
	if !in.WindowEnd.After(in.WindowStart) {
		return nil, invalidInput("window end must be after window start")
	}

	var created *model.Activity
	err := e.run(ctx, "create activity", func(tx Tx) error {
		floor, err := tx.GetFloor(in.FloorID)
		if err != nil {
			return fmt.Errorf("get floor: %w", err)
		}
		if floor == nil || floor.OrgID != actor.OrgID {
			return notFound("floor", in.FloorID)
		}
		created, err = tx.CreateActivity(model.Activity{
			OrgID:         actor.OrgID,
			FloorID:       in.FloorID,
			Name:          in.Name,
			ScheduledDate: in.ScheduledDate,
			WindowStart:   in.WindowStart,
			WindowEnd:     in.WindowEnd,
			Status:        model.ActivityDraft,
			Notes:         in.Notes,
			CreatedBy:     actor.UserID,
		})
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Publish moves a draft activity to active and creates one not_started task
// per assignment, each with the checklist resolved for its room.
func (e *Engine) Publish(ctx context.Context, actor Actor, activityID int64, assignments []Assignment) (*Publication, error) {
	if err := actor.requireSupervisor("publish activities"); err != nil {
		return nil, err
	}

	var (
		pub     Publication
		notices []Notice
	)
	err := e.run(ctx, "publish activity", func(tx Tx) error {
		a, err := loadActivity(tx, actor, activityID)
		if err != nil {
			return err
		}
		next, err := nextActivityStatus(a, EventPublish)
		if err != nil {
			return err
		}
		if len(assignments) == 0 {
			return newError(CodeEmptyAssignment, "activity %d needs at least one room assignment", a.ID)
		}

		now := e.timestamp()
		seen := make(map[int64]bool, len(assignments))
		tasks := make([]model.RoomTask, 0, len(assignments))
		for _, as := range assignments {
			if seen[as.RoomID] {
				return invalidInput("room %d assigned twice", as.RoomID)
			}
			seen[as.RoomID] = true

			room, err := tx.GetRoom(as.RoomID)
			if err != nil {
				return fmt.Errorf("get room: %w", err)
			}
			if room == nil || room.OrgID != a.OrgID {
				return notFound("room", as.RoomID)
			}
			if room.FloorID != a.FloorID {
				return invalidInput("room %d is not on floor %d", room.ID, a.FloorID)
			}
			if as.WorkerID != nil {
				if err := requireMember(tx, a.OrgID, *as.WorkerID); err != nil {
					return err
				}
			}

			tpl, err := resolveChecklist(tx, room)
			if err != nil {
				return err
			}
			task, err := tx.CreateRoomTask(model.RoomTask{
				ActivityID: a.ID,
				RoomID:     room.ID,
				AssignedTo: as.WorkerID,
				Status:     model.TaskNotStarted,
				Inspection: model.InspectionNone,
				TemplateID: tpl.ID,
				Checklist:  snapshot(tpl),
			})
			if err != nil {
				return fmt.Errorf("insert room task: %w", err)
			}
			tasks = append(tasks, *task)

			if as.WorkerID != nil {
				notices = append(notices, Notice{
					UserID: *as.WorkerID,
					Type:   model.NotifTypeTaskAssigned,
					Title:  fmt.Sprintf("New cleaning task: %s", room.Name),
					Body:   fmt.Sprintf("%s, %s to %s", a.Name, a.WindowStart.Format("Jan 2 15:04"), a.WindowEnd.Format("15:04")),
					Link:   fmt.Sprintf("/tasks/%d", task.ID),
				})
			}
		}

		ok, err := tx.SetActivityStatus(a.ID, a.Status, next, now)
		if err != nil {
			return fmt.Errorf("update activity status: %w", err)
		}
		if !ok {
			return conflict("activity", a.ID)
		}

		pub.Activity, err = tx.GetActivity(a.ID)
		if err != nil {
			return fmt.Errorf("reload activity: %w", err)
		}
		pub.Tasks = tasks
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("activity published", "activity_id", activityID, "tasks", len(pub.Tasks), "by", actor.UserID)
	e.dispatch(ctx, notices)
	return &pub, nil
}

// Cancel moves a draft or active activity to cancelled and freezes every
// task that has not finished. Open deficiencies on its tasks stay open.
func (e *Engine) Cancel(ctx context.Context, actor Actor, activityID int64) (*model.Activity, error) {
	if err := actor.requireSupervisor("cancel activities"); err != nil {
		return nil, err
	}

	var (
		out    *model.Activity
		frozen int64
	)
	err := e.run(ctx, "cancel activity", func(tx Tx) error {
		a, err := loadActivity(tx, actor, activityID)
		if err != nil {
			return err
		}
		next, err := nextActivityStatus(a, EventCancel)
		if err != nil {
			return err
		}

		now := e.timestamp()
		ok, err := tx.SetActivityStatus(a.ID, a.Status, next, now)
		if err != nil {
			return fmt.Errorf("update activity status: %w", err)
		}
		if !ok {
			return conflict("activity", a.ID)
		}
		frozen, err = tx.CancelRoomTasks(a.ID, now)
		if err != nil {
			return fmt.Errorf("cancel room tasks: %w", err)
		}
		out, err = tx.GetActivity(a.ID)
		if err != nil {
			return fmt.Errorf("reload activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("activity cancelled", "activity_id", activityID, "tasks_cancelled", frozen, "by", actor.UserID)
	return out, nil
}

// Close moves an active activity to closed once every task is terminal and
// freezes the evaluation against passThreshold on the activity.
func (e *Engine) Close(ctx context.Context, actor Actor, activityID int64, passThreshold float64) (*Closure, error) {
	if err := actor.requireSupervisor("close activities"); err != nil {
		return nil, err
	}
	if err := validThreshold(passThreshold); err != nil {
		return nil, err
	}

	var out Closure
	err := e.run(ctx, "close activity", func(tx Tx) error {
		a, err := loadActivity(tx, actor, activityID)
		if err != nil {
			return err
		}
		if _, err := nextActivityStatus(a, EventClose); err != nil {
			return err
		}

		tasks, err := tx.ListRoomTasks(a.ID)
		if err != nil {
			return fmt.Errorf("list room tasks: %w", err)
		}
		var pending []int64
		for _, t := range tasks {
			if !TaskTerminal(t.Status) {
				pending = append(pending, t.ID)
			}
		}
		if len(pending) > 0 {
			ie := newError(CodeIncompleteTasks, "activity %d has %d unfinished tasks", a.ID, len(pending))
			ie.TaskIDs = pending
			return ie
		}

		ev := Evaluate(tasks, passThreshold)
		ok, err := tx.CloseActivity(a.ID, a.Status, ev.PassRate, ev.Outcome, passThreshold, e.timestamp())
		if err != nil {
			return fmt.Errorf("close activity: %w", err)
		}
		if !ok {
			return conflict("activity", a.ID)
		}

		out.Evaluation = ev
		out.Activity, err = tx.GetActivity(a.ID)
		if err != nil {
			return fmt.Errorf("reload activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("activity closed", "activity_id", activityID, "outcome", out.Evaluation.Outcome, "by", actor.UserID)
	return &out, nil
}

// Report evaluates an activity's current task set. A closed activity is
// evaluated against the threshold frozen at close.
func (e *Engine) Report(ctx context.Context, actor Actor, activityID int64, passThreshold float64) (Evaluation, error) {
	if err := validThreshold(passThreshold); err != nil {
		return Evaluation{}, err
	}

	var ev Evaluation
	err := e.run(ctx, "report activity", func(tx Tx) error {
		a, err := loadActivity(tx, actor, activityID)
		if err != nil {
			return err
		}
		threshold := passThreshold
		if a.Status == model.ActivityClosed && a.Threshold != nil {
			threshold = *a.Threshold
		}
		tasks, err := tx.ListRoomTasks(a.ID)
		if err != nil {
			return fmt.Errorf("list room tasks: %w", err)
		}
		ev = Evaluate(tasks, threshold)
		return nil
	})
	return ev, err
}

func requireMember(tx Tx, orgID, userID int64) error {
	m, err := tx.GetMember(orgID, userID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return invalidInput("user %d is not a member of organisation %d", userID, orgID)
	}
	return nil
}
