package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cleanround/internal/evidence"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/notify"
	"github.com/dukerupert/cleanround/internal/server"
	"github.com/dukerupert/cleanround/internal/store"
	"github.com/dukerupert/cleanround/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, e)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, e *env) error {
	cfg, logger, db := e.cfg, e.logger, e.db

	hub := websocket.NewHub(logger.With("component", "websocket"))
	photos := evidence.New(evidence.Config{
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if !photos.Enabled() {
		logger.Warn("photo evidence storage not configured, uploads disabled")
	}
	push := notify.NewPushService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	if !push.Configured() {
		logger.Warn("VAPID keys not set, web push disabled")
	}
	mailer := notify.NewMailer(cfg.Email.PostmarkToken, cfg.Email.FromEmail, cfg.BaseURL)
	if !mailer.Configured() {
		logger.Warn("Postmark not configured, e-mail sign-in and notification e-mail disabled")
	}

	dispatcher := notify.NewDispatcher(
		store.NewNotificationStore(db), store.NewPushStore(db), store.NewUserStore(db), logger,
		notify.WithPusher(push),
		notify.WithEmailer(mailer),
		notify.WithRealtime(hub),
		notify.WithQueue(cfg.Notify.QueueSize, cfg.Notify.Workers),
	)
	dispatcher.Start()
	defer dispatcher.Stop()

	engine := lifecycle.NewEngine(store.NewLifecycle(db), dispatcher, logger.With("component", "lifecycle"))

	srv := server.New(server.Deps{
		DB:             db,
		Engine:         engine,
		Hub:            hub,
		Photos:         photos,
		Push:           push,
		Mailer:         mailer,
		TokenTTL:       cfg.Tokens.TTL,
		OriginPatterns: cfg.AllowedOrigins,
		Logger:         logger,
	})
	sweeper := srv.Sweeper(10 * time.Minute)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	backups := newBackupManager(e)
	if cfg.Backup.Interval > 0 && !backups.Enabled() {
		logger.Warn("backup interval set but S3 storage is not configured, scheduled backups disabled")
	}
	backups.Start(ctx)
	defer backups.Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
