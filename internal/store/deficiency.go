package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
)

type DeficiencyStore struct {
	db querier
}

func NewDeficiencyStore(db *sql.DB) *DeficiencyStore {
	return &DeficiencyStore{db: db}
}

// DeficiencyFilter narrows List. Zero values match everything.
type DeficiencyFilter struct {
	Status     model.DeficiencyStatus
	AssignedTo int64
	RoomTaskID int64
	// Unresolved selects open and in_progress; it overrides Status.
	Unresolved bool
}

func scanDeficiency(scanner interface{ Scan(...any) error }) (*model.Deficiency, error) {
	var d model.Deficiency
	var assignedTo, resolvedBy sql.NullInt64
	var resolvedAt sql.NullTime
	err := scanner.Scan(
		&d.ID, &d.OrgID, &d.RoomTaskID, &d.Description, &d.Severity, &d.Status, &d.ReportedBy,
		&assignedTo, &d.ResolutionNote, &resolvedBy, &resolvedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.AssignedTo = int64Ptr(assignedTo)
	d.ResolvedBy = int64Ptr(resolvedBy)
	d.ResolvedAt = timePtr(resolvedAt)
	return &d, nil
}

const deficiencyCols = `id, org_id, room_task_id, description, severity, status, reported_by,
	assigned_to, resolution_note, resolved_by, resolved_at, created_at, updated_at`

// Create inserts a deficiency. A second unresolved deficiency for the same
// task violates idx_deficiencies_one_open and is reported as
// lifecycle.ErrDuplicateOpenDeficiency.
func (s *DeficiencyStore) Create(d model.Deficiency) (*model.Deficiency, error) {
	if d.Status == "" {
		d.Status = model.DeficiencyOpen
	}
	result, err := s.db.Exec(
		`INSERT INTO deficiencies (org_id, room_task_id, description, severity, status, reported_by, assigned_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.OrgID, d.RoomTaskID, d.Description, d.Severity, d.Status, d.ReportedBy, nullInt64(d.AssignedTo),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("insert deficiency: %w", lifecycle.ErrDuplicateOpenDeficiency)
	}
	if err != nil {
		return nil, fmt.Errorf("insert deficiency: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *DeficiencyStore) GetByID(id int64) (*model.Deficiency, error) {
	row := s.db.QueryRow(`SELECT `+deficiencyCols+` FROM deficiencies WHERE id = ?`, id)
	d, err := scanDeficiency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deficiency: %w", err)
	}
	return d, nil
}

// GetOpenForTask returns the unresolved deficiency of a task, or nil.
func (s *DeficiencyStore) GetOpenForTask(taskID int64) (*model.Deficiency, error) {
	row := s.db.QueryRow(
		`SELECT `+deficiencyCols+` FROM deficiencies WHERE room_task_id = ? AND status IN (?, ?)`,
		taskID, model.DeficiencyOpen, model.DeficiencyInProgress,
	)
	d, err := scanDeficiency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open deficiency: %w", err)
	}
	return d, nil
}

func (s *DeficiencyStore) List(orgID int64, f DeficiencyFilter) ([]model.Deficiency, error) {
	where := []string{"org_id = ?"}
	args := []any{orgID}
	switch {
	case f.Unresolved:
		where = append(where, "status IN (?, ?)")
		args = append(args, model.DeficiencyOpen, model.DeficiencyInProgress)
	case f.Status != "":
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != 0 {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.RoomTaskID != 0 {
		where = append(where, "room_task_id = ?")
		args = append(args, f.RoomTaskID)
	}

	rows, err := s.db.Query(
		`SELECT `+deficiencyCols+` FROM deficiencies WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list deficiencies: %w", err)
	}
	defer rows.Close()

	var out []model.Deficiency
	for rows.Next() {
		d, err := scanDeficiency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deficiency: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// SetStatus moves a deficiency between statuses. note and by are recorded
// only when the target is resolved.
func (s *DeficiencyStore) SetStatus(id int64, from, to model.DeficiencyStatus, note string, by int64, at time.Time) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	if to == model.DeficiencyResolved {
		result, err = s.db.Exec(
			`UPDATE deficiencies
			 SET status = ?, resolution_note = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			to, note, by, at.UTC(), at.UTC(), id, from,
		)
	} else {
		result, err = s.db.Exec(
			`UPDATE deficiencies SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, at.UTC(), id, from,
		)
	}
	if err != nil {
		return false, fmt.Errorf("set deficiency status: %w", err)
	}
	return affected(result)
}

func (s *DeficiencyStore) SetAssignee(id int64, from model.DeficiencyStatus, assigneeID int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE deficiencies SET assigned_to = ?, updated_at = ? WHERE id = ? AND status = ?`,
		assigneeID, time.Now().UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("set deficiency assignee: %w", err)
	}
	return affected(result)
}
