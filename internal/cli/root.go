// Package cli holds the cleanround command tree.
package cli

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/config"
	"github.com/dukerupert/cleanround/internal/database"
	"github.com/dukerupert/cleanround/internal/logging"
)

var (
	Version = "dev"
	Commit  = "none"
)

var configPath string

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:     "cleanround",
	Version: Version,
	Short:   "Cleaning rounds, inspections and deficiencies for facility teams",
	Long: `cleanround schedules cleaning activities over the rooms of a floor,
tracks each room task through its checklist, records supervisor inspections,
and follows failed work up as deficiencies until they are resolved.`,
	SilenceUsage: true,
}

// Execute runs the command tree. It is called once by main.main.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ./"+config.DefaultPath+" if present)")
}

// env is what every command needs: settings, a logger and the database.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
}

// setup loads configuration, configures logging and opens the database,
// applying pending migrations.
func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}
