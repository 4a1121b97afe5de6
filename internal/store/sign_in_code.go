package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

// SignInCodeTTL is how long an emailed code stays valid.
const SignInCodeTTL = 15 * time.Minute

type SignInCodeStore struct {
	db querier
}

func NewSignInCodeStore(db *sql.DB) *SignInCodeStore {
	return &SignInCodeStore{db: db}
}

func scanSignInCode(scanner interface{ Scan(...any) error }) (*model.SignInCode, error) {
	var c model.SignInCode
	var usedAt sql.NullTime
	err := scanner.Scan(
		&c.ID, &c.Code, &c.Email, &c.Purpose, &c.OrgID, &c.Role,
		&c.ExpiresAt, &usedAt, &c.Attempts, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.UsedAt = timePtr(usedAt)
	return &c, nil
}

const signInCodeCols = `id, code, email, purpose, org_id, role, expires_at, used_at, attempts, created_at`

// generateCode returns a 6-digit numeric code (100000-999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a new code for email. Pending codes for the same email are
// invalidated first so only the latest one works.
func (s *SignInCodeStore) Create(email, purpose string, orgID int64, role string) (*model.SignInCode, error) {
	email = normalizeEmail(email)
	now := time.Now().UTC()

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	var out *model.SignInCode
	err = atomically(s.db, func(q querier) error {
		_, err := q.Exec(
			`UPDATE sign_in_codes SET used_at = ? WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
			now, email, now,
		)
		if err != nil {
			return fmt.Errorf("invalidate previous codes: %w", err)
		}
		result, err := q.Exec(
			`INSERT INTO sign_in_codes (code, email, purpose, org_id, role, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
			code, email, purpose, orgID, role, now.Add(SignInCodeTTL),
		)
		if err != nil {
			return fmt.Errorf("insert sign-in code: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		out, err = scanSignInCode(q.QueryRow(`SELECT `+signInCodeCols+` FROM sign_in_codes WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetLatestByEmail returns the most recent unexpired, unused code for email,
// or nil when there is none.
func (s *SignInCodeStore) GetLatestByEmail(email string) (*model.SignInCode, error) {
	row := s.db.QueryRow(
		`SELECT `+signInCodeCols+` FROM sign_in_codes
		 WHERE email = ? AND expires_at > ? AND used_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		normalizeEmail(email), time.Now().UTC(),
	)
	c, err := scanSignInCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest sign-in code: %w", err)
	}
	return c, nil
}

// IncrementAttempts records a wrong guess and returns the new count.
func (s *SignInCodeStore) IncrementAttempts(id int64) (int, error) {
	var attempts int
	err := atomically(s.db, func(q querier) error {
		if _, err := q.Exec(`UPDATE sign_in_codes SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("increment attempts: %w", err)
		}
		if err := q.QueryRow(`SELECT attempts FROM sign_in_codes WHERE id = ?`, id).Scan(&attempts); err != nil {
			return fmt.Errorf("read attempts: %w", err)
		}
		return nil
	})
	return attempts, err
}

// MarkUsed consumes the code. It reports false when the code was already used.
func (s *SignInCodeStore) MarkUsed(id int64) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE sign_in_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark sign-in code used: %w", err)
	}
	return affected(result)
}

func (s *SignInCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sign_in_codes WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sign-in codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
