package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/cleanround/internal/model"
)

type DeficiencyInput struct {
	Description string
	Severity    model.Severity
	AssigneeID  *int64
}

func loadDeficiency(tx Tx, actor Actor, id int64) (*model.Deficiency, error) {
	d, err := tx.GetDeficiency(id)
	if err != nil {
		return nil, fmt.Errorf("get deficiency: %w", err)
	}
	if d == nil {
		return nil, notFound("deficiency", id)
	}
	if err := actor.requireOrg(d.OrgID); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenDeficiency raises a deficiency on a task. A task has at most one
// deficiency that is open or in progress.
func (e *Engine) OpenDeficiency(ctx context.Context, actor Actor, taskID int64, in DeficiencyInput) (*model.Deficiency, error) {
	if err := actor.requireSupervisor("open deficiencies"); err != nil {
		return nil, err
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return nil, invalidInput("description is required")
	}
	if in.Severity == "" {
		in.Severity = model.SeverityMedium
	}
	if !ValidSeverity(in.Severity) {
		return nil, invalidInput("unknown severity %q", in.Severity)
	}

	var (
		out     *model.Deficiency
		notices []Notice
	)
	err := e.run(ctx, "open deficiency", func(tx Tx) error {
		t, err := tx.GetRoomTask(taskID)
		if err != nil {
			return fmt.Errorf("get room task: %w", err)
		}
		if t == nil {
			return notFound("room task", taskID)
		}
		a, err := loadActivity(tx, actor, t.ActivityID)
		if err != nil {
			return err
		}
		if in.AssigneeID != nil {
			if err := requireMember(tx, a.OrgID, *in.AssigneeID); err != nil {
				return err
			}
		}

		existing, err := tx.GetOpenDeficiency(t.ID)
		if err != nil {
			return fmt.Errorf("get open deficiency: %w", err)
		}
		if existing != nil {
			return duplicateOpen(t.ID, existing.ID)
		}

		out, err = tx.CreateDeficiency(model.Deficiency{
			OrgID:       a.OrgID,
			RoomTaskID:  t.ID,
			Description: in.Description,
			Severity:    in.Severity,
			Status:      model.DeficiencyOpen,
			ReportedBy:  actor.UserID,
			AssignedTo:  in.AssigneeID,
		})
		if errors.Is(err, ErrDuplicateOpenDeficiency) {
			return duplicateOpen(t.ID, 0)
		}
		if err != nil {
			return fmt.Errorf("insert deficiency: %w", err)
		}
		if out.AssignedTo != nil && *out.AssignedTo != actor.UserID {
			notices = append(notices, deficiencyOpenedNotice(*out.AssignedTo, out, a))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("deficiency opened", "deficiency_id", out.ID, "task_id", taskID, "severity", out.Severity, "by", actor.UserID)
	e.dispatch(ctx, notices)
	return out, nil
}

// StartDeficiency marks an open deficiency as being worked on.
func (e *Engine) StartDeficiency(ctx context.Context, actor Actor, deficiencyID int64) (*model.Deficiency, error) {
	var out *model.Deficiency
	err := e.run(ctx, "start deficiency", func(tx Tx) error {
		d, err := loadDeficiency(tx, actor, deficiencyID)
		if err != nil {
			return err
		}
		if !actor.Supervises() && !actor.is(d.AssignedTo) {
			return forbidden("user %d is not assigned to deficiency %d", actor.UserID, d.ID)
		}
		next, err := nextDeficiencyStatus(d, EventStart)
		if err != nil {
			return err
		}
		ok, err := tx.SetDeficiencyStatus(d.ID, d.Status, next, "", actor.UserID, e.timestamp())
		if err != nil {
			return fmt.Errorf("update deficiency status: %w", err)
		}
		if !ok {
			return conflict("deficiency", d.ID)
		}
		out, err = tx.GetDeficiency(d.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveDeficiency closes a deficiency with a resolution note. The owning
// task keeps its status and inspection result.
func (e *Engine) ResolveDeficiency(ctx context.Context, actor Actor, deficiencyID int64, note string) (*model.Deficiency, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, invalidInput("resolution note is required")
	}

	var (
		out     *model.Deficiency
		notices []Notice
	)
	err := e.run(ctx, "resolve deficiency", func(tx Tx) error {
		d, err := loadDeficiency(tx, actor, deficiencyID)
		if err != nil {
			return err
		}
		if !actor.Supervises() && !actor.is(d.AssignedTo) {
			return forbidden("user %d is not assigned to deficiency %d", actor.UserID, d.ID)
		}
		if d.Status == model.DeficiencyResolved {
			return alreadyResolved(d.ID)
		}
		next, err := nextDeficiencyStatus(d, EventResolve)
		if err != nil {
			return err
		}
		ok, err := tx.SetDeficiencyStatus(d.ID, d.Status, next, note, actor.UserID, e.timestamp())
		if err != nil {
			return fmt.Errorf("update deficiency status: %w", err)
		}
		if !ok {
			cur, err := tx.GetDeficiency(d.ID)
			if err != nil {
				return fmt.Errorf("reload deficiency: %w", err)
			}
			if cur != nil && cur.Status == model.DeficiencyResolved {
				return alreadyResolved(d.ID)
			}
			return conflict("deficiency", d.ID)
		}

		out, err = tx.GetDeficiency(d.ID)
		if err != nil {
			return fmt.Errorf("reload deficiency: %w", err)
		}
		if out.ReportedBy != actor.UserID {
			notices = append(notices, Notice{
				UserID: out.ReportedBy,
				Type:   model.NotifTypeDeficiencyResolved,
				Title:  "Deficiency resolved",
				Body:   note,
				Link:   fmt.Sprintf("/deficiencies/%d", out.ID),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("deficiency resolved", "deficiency_id", deficiencyID, "by", actor.UserID)
	e.dispatch(ctx, notices)
	return out, nil
}

// ReassignDeficiency hands an unresolved deficiency to another member.
func (e *Engine) ReassignDeficiency(ctx context.Context, actor Actor, deficiencyID, assigneeID int64) (*model.Deficiency, error) {
	if err := actor.requireSupervisor("reassign deficiencies"); err != nil {
		return nil, err
	}

	var (
		out     *model.Deficiency
		notices []Notice
	)
	err := e.run(ctx, "reassign deficiency", func(tx Tx) error {
		d, err := loadDeficiency(tx, actor, deficiencyID)
		if err != nil {
			return err
		}
		if d.Status == model.DeficiencyResolved {
			return alreadyResolved(d.ID)
		}
		if err := requireMember(tx, d.OrgID, assigneeID); err != nil {
			return err
		}
		ok, err := tx.SetDeficiencyAssignee(d.ID, d.Status, assigneeID)
		if err != nil {
			return fmt.Errorf("update deficiency assignee: %w", err)
		}
		if !ok {
			return conflict("deficiency", d.ID)
		}
		out, err = tx.GetDeficiency(d.ID)
		if err != nil {
			return fmt.Errorf("reload deficiency: %w", err)
		}
		if assigneeID != actor.UserID {
			notices = append(notices, Notice{
				UserID: assigneeID,
				Type:   model.NotifTypeDeficiencyAssigned,
				Title:  fmt.Sprintf("Deficiency assigned to you (%s)", out.Severity),
				Body:   out.Description,
				Link:   fmt.Sprintf("/deficiencies/%d", out.ID),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch(ctx, notices)
	return out, nil
}

func duplicateOpen(taskID, existingID int64) *Error {
	if existingID == 0 {
		return newError(CodeDuplicateOpenDeficiency, "room task %d already has an open deficiency", taskID)
	}
	return newError(CodeDuplicateOpenDeficiency, "room task %d already has open deficiency %d", taskID, existingID)
}

func alreadyResolved(id int64) *Error {
	return newError(CodeAlreadyResolved, "deficiency %d is already resolved", id)
}
