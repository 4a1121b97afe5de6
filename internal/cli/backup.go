package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/backup"
	"github.com/dukerupert/cleanround/internal/config"
	"github.com/dukerupert/cleanround/internal/store"
)

var (
	backupLimit     int
	backupRestoreTo string
)

func newBackupManager(e *env) *backup.Manager {
	return backup.New(backupConfig(e.cfg), e.db, e.logger.With("component", "backup"))
}

func backupConfig(cfg config.Config) backup.Config {
	return backup.Config{
		Endpoint:      cfg.S3.Endpoint,
		Bucket:        cfg.S3.Bucket,
		Region:        cfg.S3.Region,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		Passphrase:    cfg.Backup.Passphrase,
		Prefix:        cfg.Backup.Prefix,
		Interval:      cfg.Backup.Interval,
		RetentionDays: cfg.Backup.RetentionDays,
	}
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Encrypted database snapshots in S3-compatible storage",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Take a snapshot now and apply the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		m := newBackupManager(e)
		b, err := m.Run(cmd.Context())
		if err != nil {
			return err
		}
		removed, err := m.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backup %d uploaded to %s (%d bytes)\n", b.ID, b.S3Key, b.SizeBytes)
		if removed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired backups\n", removed)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		backups, err := store.NewBackupStore(e.db).List(backupLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tSIZE\tKEY")
		for _, b := range backups {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", b.ID, b.StartedAt.Format(time.RFC3339), b.Status, b.SizeBytes, b.S3Key)
		}
		return tw.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Replace the database with a snapshot. Stop the server first.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid backup id %q", args[0])
		}
		e, err := setup()
		if err != nil {
			return err
		}
		b, err := store.NewBackupStore(e.db).Get(id)
		if err != nil {
			e.Close()
			return err
		}
		if b == nil {
			e.Close()
			return fmt.Errorf("no backup with id %d", id)
		}
		m := newBackupManager(e)
		// The live database must be closed before its file is replaced.
		if err := e.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}

		dst := backupRestoreTo
		if dst == "" {
			dst = e.cfg.DBPath
		}
		if err := m.Restore(cmd.Context(), b, dst); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored backup %d to %s\n", b.ID, dst)
		return nil
	},
}

func init() {
	backupListCmd.Flags().IntVar(&backupLimit, "limit", 20, "maximum rows to show")
	backupRestoreCmd.Flags().StringVar(&backupRestoreTo, "to", "", "write the restored database here instead of the configured db_path")
	backupCmd.AddCommand(backupRunCmd, backupListCmd, backupRestoreCmd)
	RootCmd.AddCommand(backupCmd)
}
