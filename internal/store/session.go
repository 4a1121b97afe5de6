package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/cleanround/internal/model"
)

// ErrInvalidToken is returned by Authenticate for malformed, unknown,
// expired or mismatched tokens.
var ErrInvalidToken = errors.New("invalid token")

// SessionStore issues and checks API tokens. A token has the form
// "<session id>.<hex secret>"; only a bcrypt hash of the secret is stored.
type SessionStore struct {
	db querier
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	var lastUsed sql.NullTime
	err := scanner.Scan(&s.ID, &s.UserID, &s.OrgID, &s.SecretHash, &s.Label, &s.ExpiresAt, &lastUsed, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.LastUsedAt = timePtr(lastUsed)
	return &s, nil
}

const sessionCols = `id, user_id, org_id, secret_hash, label, expires_at, last_used_at, created_at`

// Issue creates a session for userID in orgID valid for ttl and returns the
// plaintext token. The token cannot be recovered later.
func (s *SessionStore) Issue(userID, orgID int64, label string, ttl time.Duration) (string, *model.Session, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash secret: %w", err)
	}
	expiresAt := time.Now().UTC().Add(ttl)

	result, err := s.db.Exec(
		`INSERT INTO sessions (user_id, org_id, secret_hash, label, expires_at) VALUES (?, ?, ?, ?, ?)`,
		userID, orgID, hash, label, expiresAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", nil, fmt.Errorf("last insert id: %w", err)
	}
	sess, err := s.GetByID(id)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%d.%s", id, secret), sess, nil
}

func (s *SessionStore) GetByID(id int64) (*model.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Authenticate resolves a bearer token to its session and records the use.
func (s *SessionStore) Authenticate(token string) (*model.Session, error) {
	idPart, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return nil, ErrInvalidToken
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	sess, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sess == nil || time.Now().After(sess.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword(sess.SecretHash, []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(`UPDATE sessions SET last_used_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastUsedAt = &now
	return sess, nil
}

func (s *SessionStore) ListByUser(userID int64) ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionCols+` FROM sessions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) Revoke(id int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
