package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/cleanround/internal/database"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(t *testing.T, cfg Config) (*Manager, *mockS3Client, *clock, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if cfg.Passphrase == "" {
		cfg.Passphrase = "correct horse battery staple"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "backups/"
	}
	m := New(cfg, db, slog.New(slog.DiscardHandler))
	mock := newMockS3()
	m.client = mock
	c := &clock{t: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)}
	m.now = c.now
	return m, mock, c, db
}

func TestEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"empty", Config{}, false},
		{"no passphrase", Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}, false},
		{"no credentials", Config{Bucket: "b", Passphrase: "pw"}, false},
		{"complete", Config{Bucket: "b", AccessKey: "k", SecretKey: "s", Passphrase: "pw"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.cfg, nil, nil).Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunDisabled(t *testing.T) {
	m := New(Config{}, nil, nil)
	if _, err := m.Run(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Run() err = %v, want ErrDisabled", err)
	}
}

func TestRunAndRestore(t *testing.T) {
	m, mock, _, db := newTestManager(t, Config{})
	if _, err := store.NewOrgStore(db).Create("Acme Cleaning", 85); err != nil {
		t.Fatalf("create org: %v", err)
	}

	b, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if b.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", b.Status)
	}
	if b.S3Key != "backups/cleanround-20260301T020000.000Z.db.enc" {
		t.Errorf("key = %q", b.S3Key)
	}
	stored := mock.objects[b.S3Key]
	if int64(len(stored)) != b.SizeBytes {
		t.Errorf("size = %d, uploaded %d bytes", b.SizeBytes, len(stored))
	}
	if strings.Contains(string(stored), "Acme Cleaning") {
		t.Error("uploaded snapshot is not encrypted")
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(context.Background(), b, dst); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	orgs, err := store.NewOrgStore(restored).List()
	if err != nil {
		t.Fatalf("list orgs: %v", err)
	}
	if len(orgs) != 1 || orgs[0].Name != "Acme Cleaning" || orgs[0].PassThreshold != 85 {
		t.Errorf("restored orgs = %+v", orgs)
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	m, _, _, db := newTestManager(t, Config{})
	b, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	other := New(Config{Passphrase: "not it"}, db, slog.New(slog.DiscardHandler))
	other.client = m.client

	dst := filepath.Join(t.TempDir(), "restored.db")
	err = other.Restore(context.Background(), b, dst)
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Restore() err = %v, want ErrWrongPassphrase", err)
	}
}

func TestRunUploadFailureMarksRecord(t *testing.T) {
	m, mock, _, db := newTestManager(t, Config{})
	mock.putErr = errors.New("bucket gone")

	if _, err := m.Run(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	list, err := store.NewBackupStore(db).List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status != model.BackupStatusFailed {
		t.Fatalf("records = %+v, want one failed", list)
	}
	if !strings.Contains(list[0].ErrorMessage, "bucket gone") {
		t.Errorf("error_message = %q", list[0].ErrorMessage)
	}

	if err := m.Restore(context.Background(), &list[0], filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Error("restoring a failed backup should be refused")
	}
}

func TestCleanupRetention(t *testing.T) {
	m, mock, c, _ := newTestManager(t, Config{RetentionDays: 7})

	old, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run old: %v", err)
	}
	c.t = c.t.Add(10 * 24 * time.Hour)
	fresh, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("run fresh: %v", err)
	}

	n, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	keys := mock.keys()
	if len(keys) != 1 || keys[0] != fresh.S3Key {
		t.Errorf("objects left = %v, want only %s", keys, fresh.S3Key)
	}
	if _, ok := mock.objects[old.S3Key]; ok {
		t.Error("old object should be deleted")
	}
}

func TestCleanupKeepsEverythingWithoutRetention(t *testing.T) {
	m, _, _, _ := newTestManager(t, Config{})
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	n, err := m.Cleanup(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Cleanup() = %d, %v, want 0, nil", n, err)
	}
}

func TestStartStop(t *testing.T) {
	m, mock, _, _ := newTestManager(t, Config{Interval: 20 * time.Millisecond})

	m.Start(t.Context())
	deadline := time.Now().Add(2 * time.Second)
	for len(mock.keys()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()
	if len(mock.keys()) == 0 {
		t.Error("scheduled loop never uploaded a snapshot")
	}
	m.Stop()
}

func TestFirstDelay(t *testing.T) {
	m, _, c, _ := newTestManager(t, Config{Interval: 6 * time.Hour})

	if got := m.firstDelay(); got != 0 {
		t.Errorf("firstDelay() with no backups = %v, want 0", got)
	}
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	c.t = c.t.Add(time.Hour)
	if got := m.firstDelay(); got != 5*time.Hour {
		t.Errorf("firstDelay() an hour later = %v, want 5h", got)
	}
	c.t = c.t.Add(24 * time.Hour)
	if got := m.firstDelay(); got != 0 {
		t.Errorf("firstDelay() when overdue = %v, want 0", got)
	}
}

func TestStartWithoutInterval(t *testing.T) {
	m, _, _, _ := newTestManager(t, Config{})
	m.Start(t.Context())
	m.Stop()
}
