package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cleanround.yaml")
	data := `
port: "9090"
db_path: /var/lib/cleanround/data.db
log:
  level: debug
  format: json
s3:
  bucket: evidence
  access_key: AK
  secret_key: SK
tokens:
  ttl: 720h
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CLEANROUND_PORT", "7070")
	t.Setenv("CLEANROUND_NOTIFY_QUEUE_SIZE", "32")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("port = %q, want env value 7070", cfg.Port)
	}
	if cfg.DBPath != "/var/lib/cleanround/data.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v, want debug/json", cfg.Log)
	}
	if !cfg.S3.Enabled() {
		t.Error("expected s3 to be enabled")
	}
	if cfg.S3.Region != "us-east-1" {
		t.Errorf("region = %q, want default us-east-1", cfg.S3.Region)
	}
	if cfg.Notify.QueueSize != 32 || cfg.Notify.Workers != 2 {
		t.Errorf("notify = %+v, want queue 32 workers 2", cfg.Notify)
	}
	if cfg.Tokens.TTL != 720*time.Hour {
		t.Errorf("token ttl = %v, want 720h", cfg.Tokens.TTL)
	}
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestAllowedOriginsFromEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{"CLEANROUND_ALLOWED_ORIGINS": "app.example.com, *.example.org ,"}
	if err := cfg.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	want := []string{"app.example.com", "*.example.org"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("origins = %q, want %q", cfg.AllowedOrigins, want)
	}
}

func TestBackupFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLEANROUND_BACKUP_PASSPHRASE", "correct horse")
	t.Setenv("CLEANROUND_BACKUP_INTERVAL", "6h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.Passphrase != "correct horse" {
		t.Errorf("passphrase = %q", cfg.Backup.Passphrase)
	}
	if cfg.Backup.Interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", cfg.Backup.Interval)
	}
	if cfg.Backup.Prefix != "backups/" || cfg.Backup.RetentionDays != 30 {
		t.Errorf("backup defaults = %+v", cfg.Backup)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestApplyEnvBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"queue size", map[string]string{"CLEANROUND_NOTIFY_QUEUE_SIZE": "lots"}},
		{"token ttl", map[string]string{"CLEANROUND_TOKEN_TTL": "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) string { return tt.env[k] })
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no port", func(c *Config) { c.Port = "" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"zero queue", func(c *Config) { c.Notify.QueueSize = 0 }, true},
		{"half vapid", func(c *Config) { c.Push.VAPIDPublicKey = "pub" }, true},
		{"scheduled backup without passphrase", func(c *Config) { c.Backup.Interval = time.Hour }, true},
		{"scheduled backup", func(c *Config) { c.Backup.Interval = time.Hour; c.Backup.Passphrase = "pw" }, false},
		{"negative retention", func(c *Config) { c.Backup.RetentionDays = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
