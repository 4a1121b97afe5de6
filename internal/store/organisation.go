package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cleanround/internal/model"
)

type OrgStore struct {
	db querier
}

func NewOrgStore(db *sql.DB) *OrgStore {
	return &OrgStore{db: db}
}

func scanOrg(scanner interface{ Scan(...any) error }) (*model.Organisation, error) {
	var o model.Organisation
	err := scanner.Scan(&o.ID, &o.Name, &o.PassThreshold, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrgMember(scanner interface{ Scan(...any) error }) (*model.OrgMember, error) {
	var m model.OrgMember
	err := scanner.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const orgCols = `id, name, pass_threshold, created_at, updated_at`
const orgMemberCols = `id, org_id, user_id, role, created_at, updated_at`

func (s *OrgStore) Create(name string, passThreshold float64) (*model.Organisation, error) {
	result, err := s.db.Exec(
		`INSERT INTO organisations (name, pass_threshold) VALUES (?, ?)`,
		name, passThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("insert organisation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *OrgStore) GetByID(id int64) (*model.Organisation, error) {
	row := s.db.QueryRow(`SELECT `+orgCols+` FROM organisations WHERE id = ?`, id)
	o, err := scanOrg(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	return o, nil
}

func (s *OrgStore) List() ([]model.Organisation, error) {
	rows, err := s.db.Query(`SELECT ` + orgCols + ` FROM organisations ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list organisations: %w", err)
	}
	defer rows.Close()

	var orgs []model.Organisation
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organisation: %w", err)
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

// UpdateThreshold changes the pass threshold used for future closes.
// Activities already closed keep the threshold frozen on them.
func (s *OrgStore) UpdateThreshold(id int64, passThreshold float64) (*model.Organisation, error) {
	_, err := s.db.Exec(
		`UPDATE organisations SET pass_threshold = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passThreshold, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update organisation threshold: %w", err)
	}
	return s.GetByID(id)
}

func (s *OrgStore) AddMember(orgID, userID int64, role string) (*model.OrgMember, error) {
	result, err := s.db.Exec(
		`INSERT INTO org_members (org_id, user_id, role) VALUES (?, ?, ?)`,
		orgID, userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+orgMemberCols+` FROM org_members WHERE id = ?`, id)
	return scanOrgMember(row)
}

func (s *OrgStore) UpdateMemberRole(orgID, userID int64, role string) error {
	_, err := s.db.Exec(
		`UPDATE org_members SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE org_id = ? AND user_id = ?`,
		role, orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return nil
}

func (s *OrgStore) GetMember(orgID, userID int64) (*model.OrgMember, error) {
	row := s.db.QueryRow(
		`SELECT `+orgMemberCols+` FROM org_members WHERE org_id = ? AND user_id = ?`,
		orgID, userID,
	)
	m, err := scanOrgMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *OrgStore) ListMembers(orgID int64) ([]model.OrgMember, error) {
	rows, err := s.db.Query(
		`SELECT `+orgMemberCols+` FROM org_members WHERE org_id = ? ORDER BY created_at ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.OrgMember
	for rows.Next() {
		m, err := scanOrgMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
