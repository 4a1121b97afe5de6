package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/cleanround/internal/model"
)

type ItemResponseInput struct {
	ItemID    int64
	Completed bool
	Note      string
	// PhotoKey replaces the stored evidence key when non-empty.
	PhotoKey string
}

type InspectionInput struct {
	Result model.InspectionResult
	Note   string
	// Severity is used for the deficiency opened on a failed inspection.
	// Empty means medium.
	Severity model.Severity
}

// Inspection is the result of Inspect. Deficiency is set when the failed
// inspection opened one.
type Inspection struct {
	Task       *model.RoomTask   `json:"task"`
	Deficiency *model.Deficiency `json:"deficiency,omitempty"`
}

// loadTask reads a task and its activity, checks the actor's organisation,
// and requires the activity to be active.
func loadTask(tx Tx, actor Actor, id int64) (*model.RoomTask, *model.Activity, error) {
	t, err := tx.GetRoomTask(id)
	if err != nil {
		return nil, nil, fmt.Errorf("get room task: %w", err)
	}
	if t == nil {
		return nil, nil, notFound("room task", id)
	}
	a, err := loadActivity(tx, actor, t.ActivityID)
	if err != nil {
		return nil, nil, err
	}
	if a.Status != model.ActivityActive {
		return nil, nil, newError(CodeInvalidTransition, "activity %d is %s", a.ID, a.Status)
	}
	return t, a, nil
}

func requireAssignee(actor Actor, t *model.RoomTask) error {
	if !actor.is(t.AssignedTo) {
		return newError(CodeNotAssigned, "room task %d is not assigned to user %d", t.ID, actor.UserID)
	}
	return nil
}

func snapshotItem(t *model.RoomTask, itemID int64) (model.SnapshotItem, bool) {
	for _, it := range t.Checklist {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return model.SnapshotItem{}, false
}

// Start moves a task from not_started to in_progress. Only the assigned
// worker may start it.
func (e *Engine) Start(ctx context.Context, actor Actor, taskID int64) (*model.RoomTask, error) {
	var out *model.RoomTask
	err := e.run(ctx, "start task", func(tx Tx) error {
		t, _, err := loadTask(tx, actor, taskID)
		if err != nil {
			return err
		}
		if err := requireAssignee(actor, t); err != nil {
			return err
		}
		next, err := nextTaskStatus(t, EventStart)
		if err != nil {
			return err
		}
		ok, err := tx.SetRoomTaskStatus(t.ID, t.Status, next, "", e.timestamp())
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		if !ok {
			return conflict("room task", t.ID)
		}
		out, err = tx.GetRoomTask(t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordItemResponse upserts the worker's answer for one snapshot item.
func (e *Engine) RecordItemResponse(ctx context.Context, actor Actor, taskID int64, in ItemResponseInput) (*model.ItemResponse, error) {
	var out *model.ItemResponse
	err := e.run(ctx, "record item response", func(tx Tx) error {
		t, _, err := loadTask(tx, actor, taskID)
		if err != nil {
			return err
		}
		if err := requireAssignee(actor, t); err != nil {
			return err
		}
		if t.Status != model.TaskInProgress {
			return newError(CodeInvalidTransition, "room task %d accepts responses only while in_progress, not %s", t.ID, t.Status)
		}
		if _, ok := snapshotItem(t, in.ItemID); !ok {
			return newError(CodeUnknownItem, "item %d is not on the checklist of room task %d", in.ItemID, t.ID)
		}

		photo := in.PhotoKey
		if photo == "" {
			prev, err := tx.GetItemResponse(t.ID, in.ItemID)
			if err != nil {
				return fmt.Errorf("get item response: %w", err)
			}
			if prev != nil {
				photo = prev.PhotoKey
			}
		}

		out, err = tx.UpsertItemResponse(model.ItemResponse{
			TaskID:      t.ID,
			ItemID:      in.ItemID,
			Completed:   in.Completed,
			Note:        strings.TrimSpace(in.Note),
			PhotoKey:    photo,
			RespondedBy: actor.UserID,
			UpdatedAt:   e.timestamp(),
		})
		if err != nil {
			return fmt.Errorf("upsert item response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// missingEvidenceItems returns the snapshot items whose flags are not
// satisfied by the recorded responses, in checklist order.
func missingEvidenceItems(t *model.RoomTask, responses []model.ItemResponse) []int64 {
	byItem := make(map[int64]model.ItemResponse, len(responses))
	for _, r := range responses {
		byItem[r.ItemID] = r
	}
	var missing []int64
	for _, it := range t.Checklist {
		if !it.RequiresPhoto && !it.RequiresNote {
			continue
		}
		r, ok := byItem[it.ItemID]
		switch {
		case !ok:
			missing = append(missing, it.ItemID)
		case it.RequiresPhoto && r.PhotoKey == "":
			missing = append(missing, it.ItemID)
		case it.RequiresNote && strings.TrimSpace(r.Note) == "":
			missing = append(missing, it.ItemID)
		}
	}
	return missing
}

// Complete finishes an in_progress task as done or has_issues.
func (e *Engine) Complete(ctx context.Context, actor Actor, taskID int64, status model.TaskStatus, issueNote string) (*model.RoomTask, error) {
	var event string
	switch status {
	case model.TaskDone:
		event = EventComplete
	case model.TaskHasIssues:
		event = EventReportIssues
	default:
		return nil, invalidInput("completion status must be %s or %s, got %q", model.TaskDone, model.TaskHasIssues, status)
	}
	issueNote = strings.TrimSpace(issueNote)

	var out *model.RoomTask
	err := e.run(ctx, "complete task", func(tx Tx) error {
		t, _, err := loadTask(tx, actor, taskID)
		if err != nil {
			return err
		}
		if err := requireAssignee(actor, t); err != nil {
			return err
		}
		next, err := nextTaskStatus(t, event)
		if err != nil {
			return err
		}

		if next == model.TaskHasIssues && issueNote == "" {
			return newError(CodeIssueNoteRequired, "room task %d needs a note describing the issues", t.ID)
		}
		if next == model.TaskDone {
			responses, err := tx.ListItemResponses(t.ID)
			if err != nil {
				return fmt.Errorf("list item responses: %w", err)
			}
			if missing := missingEvidenceItems(t, responses); len(missing) > 0 {
				return missingEvidence(missing)
			}
		}

		ok, err := tx.SetRoomTaskStatus(t.ID, t.Status, next, issueNote, e.timestamp())
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		if !ok {
			return conflict("room task", t.ID)
		}
		out, err = tx.GetRoomTask(t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("task completed", "task_id", taskID, "status", out.Status, "by", actor.UserID)
	return out, nil
}

// Inspect records a supervisor's result on a done or has_issues task. A
// failed inspection opens a deficiency for the task unless one is open.
func (e *Engine) Inspect(ctx context.Context, actor Actor, taskID int64, in InspectionInput) (*Inspection, error) {
	if err := actor.requireSupervisor("inspect tasks"); err != nil {
		return nil, err
	}
	if in.Result != model.InspectionPass && in.Result != model.InspectionFail {
		return nil, invalidInput("inspection result must be %s or %s, got %q", model.InspectionPass, model.InspectionFail, in.Result)
	}
	if in.Severity == "" {
		in.Severity = model.SeverityMedium
	}
	if !ValidSeverity(in.Severity) {
		return nil, invalidInput("unknown severity %q", in.Severity)
	}
	in.Note = strings.TrimSpace(in.Note)

	var (
		out     Inspection
		notices []Notice
	)
	err := e.run(ctx, "inspect task", func(tx Tx) error {
		t, a, err := loadTask(tx, actor, taskID)
		if err != nil {
			return err
		}
		if t.Inspection != model.InspectionNone {
			return newError(CodeAlreadyInspected, "room task %d was already inspected (%s)", t.ID, t.Inspection)
		}
		if !Inspectable(t.Status) {
			return newError(CodeNotReadyForInspection, "room task %d is %s", t.ID, t.Status)
		}

		ok, err := tx.SetInspection(t.ID, in.Result, in.Note, actor.UserID, e.timestamp())
		if err != nil {
			return fmt.Errorf("set inspection: %w", err)
		}
		if !ok {
			cur, err := tx.GetRoomTask(t.ID)
			if err != nil {
				return fmt.Errorf("reload room task: %w", err)
			}
			if cur != nil && cur.Inspection != model.InspectionNone {
				return newError(CodeAlreadyInspected, "room task %d was already inspected (%s)", t.ID, cur.Inspection)
			}
			return conflict("room task", t.ID)
		}

		if in.Result == model.InspectionFail {
			existing, err := tx.GetOpenDeficiency(t.ID)
			if err != nil {
				return fmt.Errorf("get open deficiency: %w", err)
			}
			if existing == nil {
				description := in.Note
				if description == "" {
					description = "Failed inspection"
				}
				d, err := tx.CreateDeficiency(model.Deficiency{
					OrgID:       a.OrgID,
					RoomTaskID:  t.ID,
					Description: description,
					Severity:    in.Severity,
					Status:      model.DeficiencyOpen,
					ReportedBy:  actor.UserID,
					AssignedTo:  t.AssignedTo,
				})
				if errors.Is(err, ErrDuplicateOpenDeficiency) {
					return conflict("room task", t.ID)
				}
				if err != nil {
					return fmt.Errorf("insert deficiency: %w", err)
				}
				out.Deficiency = d
				if d.AssignedTo != nil {
					notices = append(notices, deficiencyOpenedNotice(*d.AssignedTo, d, a))
				}
			}
		}

		out.Task, err = tx.GetRoomTask(t.ID)
		if err != nil {
			return fmt.Errorf("reload room task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("task inspected", "task_id", taskID, "result", in.Result, "by", actor.UserID)
	e.dispatch(ctx, notices)
	return &out, nil
}

// ReassignTask changes the worker of a task that has not been started.
func (e *Engine) ReassignTask(ctx context.Context, actor Actor, taskID, workerID int64) (*model.RoomTask, error) {
	if err := actor.requireSupervisor("assign tasks"); err != nil {
		return nil, err
	}

	var (
		out     *model.RoomTask
		notices []Notice
	)
	err := e.run(ctx, "reassign task", func(tx Tx) error {
		t, a, err := loadTask(tx, actor, taskID)
		if err != nil {
			return err
		}
		if t.Status != model.TaskNotStarted {
			return newError(CodeInvalidTransition, "room task %d cannot be reassigned while %s", t.ID, t.Status)
		}
		if err := requireMember(tx, a.OrgID, workerID); err != nil {
			return err
		}
		if t.AssignedTo != nil && *t.AssignedTo == workerID {
			out = t
			return nil
		}
		ok, err := tx.SetRoomTaskAssignee(t.ID, t.Status, workerID)
		if err != nil {
			return fmt.Errorf("update task assignee: %w", err)
		}
		if !ok {
			return conflict("room task", t.ID)
		}
		room, err := tx.GetRoom(t.RoomID)
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		roomName := fmt.Sprintf("room %d", t.RoomID)
		if room != nil {
			roomName = room.Name
		}
		notices = append(notices, Notice{
			UserID: workerID,
			Type:   model.NotifTypeTaskAssigned,
			Title:  fmt.Sprintf("New cleaning task: %s", roomName),
			Body:   a.Name,
			Link:   fmt.Sprintf("/tasks/%d", t.ID),
		})
		out, err = tx.GetRoomTask(t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.dispatch(ctx, notices)
	return out, nil
}

func deficiencyOpenedNotice(userID int64, d *model.Deficiency, a *model.Activity) Notice {
	return Notice{
		UserID: userID,
		Type:   model.NotifTypeDeficiencyOpened,
		Title:  fmt.Sprintf("Deficiency (%s): %s", d.Severity, a.Name),
		Body:   d.Description,
		Link:   fmt.Sprintf("/deficiencies/%d", d.ID),
	}
}
