// Package backup snapshots the SQLite database, encrypts the snapshot with a
// passphrase and keeps it in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

var ErrDisabled = errors.New("backup not configured: S3 bucket, credentials and passphrase are required")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string

	Passphrase    string
	Prefix        string
	Interval      time.Duration
	RetentionDays int
}

// Manager takes snapshots on demand or on a schedule.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	db      *sql.DB
	records *store.BackupStore
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:     cfg,
		db:      db,
		records: store.NewBackupStore(db),
		logger:  logger,
		now:     time.Now,
	}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	return m.client != nil && m.cfg.Passphrase != ""
}

// Start runs Run and Cleanup every Interval. It does nothing when the
// manager is disabled or no interval is set.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || m.cfg.Interval <= 0 {
		return
	}
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		timer := time.NewTimer(m.firstDelay())
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if _, err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
				if _, err := m.Cleanup(ctx); err != nil {
					m.logger.Error("backup cleanup failed", "error", err)
				}
				timer.Reset(m.cfg.Interval)
			}
		}
	}()
}

// firstDelay is how long until the next scheduled run, counted from the last
// completed snapshot so restarts do not postpone backups indefinitely.
func (m *Manager) firstDelay() time.Duration {
	last, err := m.records.LatestCompleted()
	if err != nil {
		m.logger.Warn("read last backup", "error", err)
		return m.cfg.Interval
	}
	if last == nil || last.CompletedAt == nil {
		return 0
	}
	wait := m.cfg.Interval - m.now().Sub(*last.CompletedAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// Stop ends the loop and waits for a running backup to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Run snapshots the database, seals it and uploads it. The ledger row is
// marked failed when any step after its creation fails.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}

	started := m.now().UTC()
	filename := fmt.Sprintf("cleanround-%s.db.enc", started.Format("20060102T150405.000Z"))
	key := m.cfg.Prefix + filename

	record, err := m.records.Create(filename, key, started)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*model.Backup, error) {
		if uerr := m.records.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark backup failed", "backup_id", record.ID, "error", uerr)
		}
		return nil, err
	}

	plain, err := m.snapshot(ctx)
	if err != nil {
		return fail(err)
	}
	sealed, err := Seal(plain, m.cfg.Passphrase)
	if err != nil {
		return fail(fmt.Errorf("encrypt snapshot: %w", err))
	}

	if err := m.records.UpdateStatus(record.ID, model.BackupStatusUploading, ""); err != nil {
		return fail(err)
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fail(fmt.Errorf("upload snapshot: %w", err))
	}

	if err := m.records.MarkCompleted(record.ID, int64(len(sealed)), m.now()); err != nil {
		return nil, err
	}
	m.logger.Info("backup completed", "backup_id", record.ID, "key", key, "bytes", len(sealed))
	return m.records.Get(record.ID)
}

// snapshot writes a consistent copy of the live database with VACUUM INTO
// and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "cleanround-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into snapshot: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Restore downloads and decrypts b, checks the result with SQLite's
// integrity check and then replaces the file at dst. Nothing may hold dst
// open while this runs.
func (m *Manager) Restore(ctx context.Context, b *model.Backup, dst string) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	if b.Status != model.BackupStatusCompleted {
		return fmt.Errorf("backup %d is %s, not completed", b.ID, b.Status)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(b.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	sealed, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	plain, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt backup %d: %w", b.ID, err)
	}

	tmp := dst + ".restore"
	if err := os.WriteFile(tmp, plain, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	defer os.Remove(tmp)
	if err := checkIntegrity(ctx, tmp); err != nil {
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(dst + "-wal")
	os.Remove(dst + "-shm")
	m.logger.Info("backup restored", "backup_id", b.ID, "path", dst)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Cleanup deletes snapshots older than the retention period and returns how
// many ledger rows were removed. Zero retention keeps everything.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.client == nil || m.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	before := m.now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.records.DeleteOlderThan(before)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("old backups removed", "count", len(keys))
	}
	return len(keys), nil
}
