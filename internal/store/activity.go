package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

type ActivityStore struct {
	db querier
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// ActivityFilter narrows List. Zero values match everything.
type ActivityFilter struct {
	FloorID int64
	Status  model.ActivityStatus
	From    time.Time
	To      time.Time
}

func scanActivity(scanner interface{ Scan(...any) error }) (*model.Activity, error) {
	var a model.Activity
	var passRate, threshold sql.NullFloat64
	var publishedAt, closedAt, cancelledAt sql.NullTime
	err := scanner.Scan(
		&a.ID, &a.OrgID, &a.FloorID, &a.Name, &a.ScheduledDate, &a.WindowStart, &a.WindowEnd,
		&a.Status, &a.Notes, &passRate, &a.Outcome, &threshold, &a.CreatedBy,
		&publishedAt, &closedAt, &cancelledAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.PassRate = float64Ptr(passRate)
	a.Threshold = float64Ptr(threshold)
	a.PublishedAt = timePtr(publishedAt)
	a.ClosedAt = timePtr(closedAt)
	a.CancelledAt = timePtr(cancelledAt)
	return &a, nil
}

const activityCols = `id, org_id, floor_id, name, scheduled_date, window_start, window_end,
	status, notes, pass_rate, outcome, threshold, created_by,
	published_at, closed_at, cancelled_at, created_at, updated_at`

func (s *ActivityStore) Create(a model.Activity) (*model.Activity, error) {
	if a.Status == "" {
		a.Status = model.ActivityDraft
	}
	result, err := s.db.Exec(
		`INSERT INTO activities (org_id, floor_id, name, scheduled_date, window_start, window_end, status, notes, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OrgID, a.FloorID, a.Name, a.ScheduledDate.UTC(), a.WindowStart.UTC(), a.WindowEnd.UTC(),
		a.Status, a.Notes, a.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ActivityStore) GetByID(id int64) (*model.Activity, error) {
	row := s.db.QueryRow(`SELECT `+activityCols+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

func (s *ActivityStore) List(orgID int64, f ActivityFilter) ([]model.Activity, error) {
	where := []string{"org_id = ?"}
	args := []any{orgID}
	if f.FloorID != 0 {
		where = append(where, "floor_id = ?")
		args = append(args, f.FloorID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		where = append(where, "scheduled_date >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "scheduled_date < ?")
		args = append(args, f.To.UTC())
	}

	rows, err := s.db.Query(
		`SELECT `+activityCols+` FROM activities WHERE `+strings.Join(where, " AND ")+
			` ORDER BY scheduled_date DESC, window_start DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// SetStatus moves an activity from one status to another and stamps the
// matching transition time. It reports false when the activity is no longer
// in from.
func (s *ActivityStore) SetStatus(id int64, from, to model.ActivityStatus, at time.Time) (bool, error) {
	var stamp string
	switch to {
	case model.ActivityActive:
		stamp = "published_at"
	case model.ActivityClosed:
		stamp = "closed_at"
	case model.ActivityCancelled:
		stamp = "cancelled_at"
	default:
		return false, fmt.Errorf("set activity status: unsupported target %q", to)
	}
	result, err := s.db.Exec(
		`UPDATE activities SET status = ?, `+stamp+` = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at.UTC(), at.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("set activity status: %w", err)
	}
	return affected(result)
}

// Close freezes the evaluation on an activity and marks it closed.
func (s *ActivityStore) Close(id int64, from model.ActivityStatus, passRate *float64, outcome model.Outcome, threshold float64, at time.Time) (bool, error) {
	var rate sql.NullFloat64
	if passRate != nil {
		rate = sql.NullFloat64{Float64: *passRate, Valid: true}
	}
	result, err := s.db.Exec(
		`UPDATE activities
		 SET status = ?, pass_rate = ?, outcome = ?, threshold = ?, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.ActivityClosed, rate, outcome, threshold, at.UTC(), at.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("close activity: %w", err)
	}
	return affected(result)
}
