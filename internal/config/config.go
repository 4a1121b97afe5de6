// Package config loads cleanround settings from an optional YAML file and
// CLEANROUND_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing file is not
// an error.
const DefaultPath = "cleanround.yaml"

type Config struct {
	Port    string `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	BaseURL string `yaml:"base_url"`
	// AllowedOrigins are extra websocket origin patterns beyond the host.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Log    LogConfig    `yaml:"log"`
	Push   PushConfig   `yaml:"push"`
	Email  EmailConfig  `yaml:"email"`
	S3     S3Config     `yaml:"s3"`
	Notify NotifyConfig `yaml:"notify"`
	Tokens TokenConfig  `yaml:"tokens"`
	Backup BackupConfig `yaml:"backup"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
}

type EmailConfig struct {
	PostmarkToken string `yaml:"postmark_token"`
	FromEmail     string `yaml:"from_email"`
}

// S3Config holds S3-compatible storage for photo evidence.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether enough is set to build a client.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type NotifyConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

type TokenConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// BackupConfig controls encrypted database snapshots. Snapshots go to the
// S3 bucket under Prefix. Interval 0 disables the scheduled loop; the
// backup command still works.
type BackupConfig struct {
	Passphrase    string        `yaml:"passphrase"`
	Prefix        string        `yaml:"prefix"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
}

func Default() Config {
	return Config{
		Port:    "8080",
		DBPath:  "cleanround.db",
		BaseURL: "http://localhost:8080",
		Log:     LogConfig{Level: "info", Format: "text"},
		Push:    PushConfig{Subscriber: "mailto:noreply@cleanround.app"},
		S3:      S3Config{Region: "us-east-1"},
		Notify:  NotifyConfig{QueueSize: 256, Workers: 2},
		Tokens:  TokenConfig{TTL: 90 * 24 * time.Hour},
		Backup:  BackupConfig{Prefix: "backups/", RetentionDays: 30},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path or a missing DefaultPath yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("CLEANROUND_PORT", &c.Port)
	str("CLEANROUND_DB_PATH", &c.DBPath)
	str("CLEANROUND_BASE_URL", &c.BaseURL)
	str("CLEANROUND_LOG_LEVEL", &c.Log.Level)
	str("CLEANROUND_LOG_FORMAT", &c.Log.Format)
	str("CLEANROUND_VAPID_PUBLIC_KEY", &c.Push.VAPIDPublicKey)
	str("CLEANROUND_VAPID_PRIVATE_KEY", &c.Push.VAPIDPrivateKey)
	str("CLEANROUND_VAPID_SUBSCRIBER", &c.Push.Subscriber)
	str("CLEANROUND_POSTMARK_TOKEN", &c.Email.PostmarkToken)
	str("CLEANROUND_FROM_EMAIL", &c.Email.FromEmail)
	str("CLEANROUND_S3_ENDPOINT", &c.S3.Endpoint)
	str("CLEANROUND_S3_BUCKET", &c.S3.Bucket)
	str("CLEANROUND_S3_REGION", &c.S3.Region)
	str("CLEANROUND_S3_ACCESS_KEY", &c.S3.AccessKey)
	str("CLEANROUND_S3_SECRET_KEY", &c.S3.SecretKey)
	str("CLEANROUND_BACKUP_PASSPHRASE", &c.Backup.Passphrase)

	if v := getenv("CLEANROUND_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v := getenv("CLEANROUND_NOTIFY_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CLEANROUND_NOTIFY_QUEUE_SIZE: %w", err)
		}
		c.Notify.QueueSize = n
	}
	if v := getenv("CLEANROUND_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CLEANROUND_TOKEN_TTL: %w", err)
		}
		c.Tokens.TTL = d
	}
	if v := getenv("CLEANROUND_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CLEANROUND_BACKUP_INTERVAL: %w", err)
		}
		c.Backup.Interval = d
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("notify queue_size must be positive, got %d", c.Notify.QueueSize)
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("push needs both vapid_public_key and vapid_private_key")
	}
	if c.Backup.Interval > 0 && c.Backup.Passphrase == "" {
		return errors.New("scheduled backups need backup.passphrase")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup retention_days must not be negative, got %d", c.Backup.RetentionDays)
	}
	return nil
}
