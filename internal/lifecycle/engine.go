// Package lifecycle is the activity / room task / inspection / deficiency
// state engine. Every operation takes the caller as an explicit Actor, runs
// inside one store transaction, and applies its status change as a
// compare-and-swap on the status it read.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Engine struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over store. A nil notifier discards notices.
func NewEngine(store Store, notifier Notifier, logger *slog.Logger, opts ...Option) *Engine {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run executes fn in a transaction. Domain errors pass through untouched;
// anything else is logged and wrapped as an infrastructure failure.
func (e *Engine) run(ctx context.Context, op string, fn func(tx Tx) error) error {
	err := e.store.InTx(ctx, fn)
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	e.logger.Error("lifecycle operation failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// dispatch hands committed notices to the notifier. Failures are logged only.
func (e *Engine) dispatch(ctx context.Context, notices []Notice) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range notices {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.logger.Warn("notify failed", "user_id", n.UserID, "type", n.Type, "error", err)
		}
	}
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}
