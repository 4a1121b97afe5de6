package store

import (
	"testing"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
)

var backupEpoch = time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

func TestBackupCreateAndGet(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))

	b, err := bs.Create("backup-1.db.enc", "backups/backup-1.db.enc", backupEpoch)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusPending)
	}

	got, err := bs.Get(b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.S3Key != "backups/backup-1.db.enc" || !got.StartedAt.Equal(backupEpoch) {
		t.Errorf("got = %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("pending backup should have no completed_at")
	}

	missing, err := bs.Get(b.ID + 100)
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v, want nil, nil", missing, err)
	}
}

func TestBackupStatusAndCompletion(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	b, _ := bs.Create("a.db.enc", "backups/a.db.enc", backupEpoch)

	if err := bs.UpdateStatus(b.ID, model.BackupStatusFailed, "upload failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := bs.Get(b.ID)
	if got.Status != model.BackupStatusFailed || got.ErrorMessage != "upload failed" {
		t.Errorf("got = %q %q, want failed with message", got.Status, got.ErrorMessage)
	}

	if err := bs.MarkCompleted(b.ID, 4096, backupEpoch.Add(time.Minute)); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, _ = bs.Get(b.ID)
	if got.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusCompleted)
	}
	if got.SizeBytes != 4096 {
		t.Errorf("size_bytes = %d, want 4096", got.SizeBytes)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error_message = %q, want cleared", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestBackupListAndLatest(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))

	for i, name := range []string{"first", "second", "third"} {
		b, err := bs.Create(name+".db.enc", "backups/"+name+".db.enc", backupEpoch.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if name != "third" {
			bs.MarkCompleted(b.ID, 100, b.StartedAt.Add(time.Minute))
		} else {
			bs.UpdateStatus(b.ID, model.BackupStatusFailed, "boom")
		}
	}

	all, err := bs.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Filename != "third.db.enc" {
		t.Fatalf("list = %+v, want 3 newest first", all)
	}
	limited, _ := bs.List(2)
	if len(limited) != 2 {
		t.Errorf("len = %d, want 2", len(limited))
	}

	latest, err := bs.LatestCompleted()
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest == nil || latest.Filename != "second.db.enc" {
		t.Errorf("latest = %+v, want second.db.enc", latest)
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))

	bs.Create("old.db.enc", "backups/old.db.enc", backupEpoch)
	bs.Create("new.db.enc", "backups/new.db.enc", backupEpoch.Add(48*time.Hour))

	keys, err := bs.DeleteOlderThan(backupEpoch.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(keys) != 1 || keys[0] != "backups/old.db.enc" {
		t.Errorf("deleted keys = %v, want [backups/old.db.enc]", keys)
	}

	remaining, _ := bs.List(10)
	if len(remaining) != 1 || remaining[0].Filename != "new.db.enc" {
		t.Errorf("remaining = %+v, want new.db.enc only", remaining)
	}
}
