package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

type RoomTaskStore struct {
	db querier
}

func NewRoomTaskStore(db *sql.DB) *RoomTaskStore {
	return &RoomTaskStore{db: db}
}

func scanRoomTask(scanner interface{ Scan(...any) error }) (*model.RoomTask, error) {
	var t model.RoomTask
	var assignedTo, inspectedBy sql.NullInt64
	var startedAt, completedAt, inspectedAt sql.NullTime
	var checklist string
	err := scanner.Scan(
		&t.ID, &t.ActivityID, &t.RoomID, &assignedTo, &t.Status, &t.Inspection, &t.InspectionNote,
		&inspectedBy, &t.IssueNote, &t.TemplateID, &checklist,
		&startedAt, &completedAt, &inspectedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(checklist), &t.Checklist); err != nil {
		return nil, fmt.Errorf("decode checklist snapshot: %w", err)
	}
	t.AssignedTo = int64Ptr(assignedTo)
	t.InspectedBy = int64Ptr(inspectedBy)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.InspectedAt = timePtr(inspectedAt)
	return &t, nil
}

const roomTaskCols = `id, activity_id, room_id, assigned_to, status, inspection, inspection_note,
	inspected_by, issue_note, template_id, checklist,
	started_at, completed_at, inspected_at, created_at, updated_at`

func (s *RoomTaskStore) Create(t model.RoomTask) (*model.RoomTask, error) {
	if t.Status == "" {
		t.Status = model.TaskNotStarted
	}
	if t.Inspection == "" {
		t.Inspection = model.InspectionNone
	}
	if t.Checklist == nil {
		t.Checklist = []model.SnapshotItem{}
	}
	snap, err := json.Marshal(t.Checklist)
	if err != nil {
		return nil, fmt.Errorf("encode checklist snapshot: %w", err)
	}
	result, err := s.db.Exec(
		`INSERT INTO room_tasks (activity_id, room_id, assigned_to, status, inspection, template_id, checklist)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ActivityID, t.RoomID, nullInt64(t.AssignedTo), t.Status, t.Inspection, t.TemplateID, string(snap),
	)
	if err != nil {
		return nil, fmt.Errorf("insert room task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RoomTaskStore) GetByID(id int64) (*model.RoomTask, error) {
	row := s.db.QueryRow(`SELECT `+roomTaskCols+` FROM room_tasks WHERE id = ?`, id)
	t, err := scanRoomTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room task: %w", err)
	}
	return t, nil
}

func (s *RoomTaskStore) ListByActivity(activityID int64) ([]model.RoomTask, error) {
	rows, err := s.db.Query(`SELECT `+roomTaskCols+` FROM room_tasks WHERE activity_id = ? ORDER BY id ASC`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list room tasks: %w", err)
	}
	defer rows.Close()
	return scanRoomTasks(rows)
}

// ListByAssignee returns the tasks assigned to userID in active activities
// of orgID.
func (s *RoomTaskStore) ListByAssignee(orgID, userID int64) ([]model.RoomTask, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.activity_id, t.room_id, t.assigned_to, t.status, t.inspection, t.inspection_note,
		        t.inspected_by, t.issue_note, t.template_id, t.checklist,
		        t.started_at, t.completed_at, t.inspected_at, t.created_at, t.updated_at
		 FROM room_tasks t
		 JOIN activities a ON a.id = t.activity_id
		 WHERE a.org_id = ? AND a.status = ? AND t.assigned_to = ?
		 ORDER BY a.window_start ASC, t.id ASC`,
		orgID, model.ActivityActive, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list room tasks by assignee: %w", err)
	}
	defer rows.Close()
	return scanRoomTasks(rows)
}

func scanRoomTasks(rows *sql.Rows) ([]model.RoomTask, error) {
	var tasks []model.RoomTask
	for rows.Next() {
		t, err := scanRoomTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// SetStatus moves a task from one status to another. issueNote is stored
// when the target is has_issues.
func (s *RoomTaskStore) SetStatus(id int64, from, to model.TaskStatus, issueNote string, at time.Time) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	switch to {
	case model.TaskInProgress:
		result, err = s.db.Exec(
			`UPDATE room_tasks SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, at.UTC(), at.UTC(), id, from,
		)
	case model.TaskDone, model.TaskHasIssues:
		result, err = s.db.Exec(
			`UPDATE room_tasks SET status = ?, issue_note = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, issueNote, at.UTC(), at.UTC(), id, from,
		)
	default:
		result, err = s.db.Exec(
			`UPDATE room_tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, at.UTC(), id, from,
		)
	}
	if err != nil {
		return false, fmt.Errorf("set room task status: %w", err)
	}
	return affected(result)
}

func (s *RoomTaskStore) SetAssignee(id int64, from model.TaskStatus, workerID int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE room_tasks SET assigned_to = ?, updated_at = ? WHERE id = ? AND status = ?`,
		workerID, time.Now().UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("set room task assignee: %w", err)
	}
	return affected(result)
}

// CancelOpen moves every not_started or in_progress task of an activity to
// cancelled and returns how many changed.
func (s *RoomTaskStore) CancelOpen(activityID int64, at time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE room_tasks SET status = ?, updated_at = ?
		 WHERE activity_id = ? AND status IN (?, ?)`,
		model.TaskCancelled, at.UTC(), activityID, model.TaskNotStarted, model.TaskInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel room tasks: %w", err)
	}
	return result.RowsAffected()
}

// SetInspection records an inspection result. It only applies to a finished
// task that has not been inspected yet.
func (s *RoomTaskStore) SetInspection(id int64, result model.InspectionResult, note string, by int64, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE room_tasks
		 SET inspection = ?, inspection_note = ?, inspected_by = ?, inspected_at = ?, updated_at = ?
		 WHERE id = ? AND inspection = ? AND status IN (?, ?)`,
		result, note, by, at.UTC(), at.UTC(),
		id, model.InspectionNone, model.TaskDone, model.TaskHasIssues,
	)
	if err != nil {
		return false, fmt.Errorf("set inspection: %w", err)
	}
	return affected(res)
}

// --- Item response methods ---

func scanItemResponse(scanner interface{ Scan(...any) error }) (*model.ItemResponse, error) {
	var r model.ItemResponse
	var completed int
	err := scanner.Scan(&r.TaskID, &r.ItemID, &completed, &r.Note, &r.PhotoKey, &r.RespondedBy, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Completed = completed != 0
	return &r, nil
}

const itemResponseCols = `task_id, item_id, completed, note, photo_key, responded_by, updated_at`

func (s *RoomTaskStore) GetResponse(taskID, itemID int64) (*model.ItemResponse, error) {
	row := s.db.QueryRow(
		`SELECT `+itemResponseCols+` FROM item_responses WHERE task_id = ? AND item_id = ?`,
		taskID, itemID,
	)
	r, err := scanItemResponse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item response: %w", err)
	}
	return r, nil
}

func (s *RoomTaskStore) ListResponses(taskID int64) ([]model.ItemResponse, error) {
	rows, err := s.db.Query(
		`SELECT `+itemResponseCols+` FROM item_responses WHERE task_id = ? ORDER BY item_id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list item responses: %w", err)
	}
	defer rows.Close()

	var responses []model.ItemResponse
	for rows.Next() {
		r, err := scanItemResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item response: %w", err)
		}
		responses = append(responses, *r)
	}
	return responses, rows.Err()
}

func (s *RoomTaskStore) UpsertResponse(r model.ItemResponse) (*model.ItemResponse, error) {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO item_responses (task_id, item_id, completed, note, photo_key, responded_by, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id, item_id) DO UPDATE SET
		   completed = excluded.completed,
		   note = excluded.note,
		   photo_key = excluded.photo_key,
		   responded_by = excluded.responded_by,
		   updated_at = excluded.updated_at`,
		r.TaskID, r.ItemID, boolInt(r.Completed), r.Note, r.PhotoKey, r.RespondedBy, r.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert item response: %w", err)
	}
	return s.GetResponse(r.TaskID, r.ItemID)
}
