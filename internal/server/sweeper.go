package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cleanround/internal/middleware"
	"github.com/dukerupert/cleanround/internal/store"
)

// Sweeper periodically deletes expired tokens and sign-in codes and prunes
// stale rate limit windows.
type Sweeper struct {
	mu       sync.Mutex
	sessions *store.SessionStore
	codes    *store.SignInCodeStore
	limiter  *middleware.RateLimiter
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(sessions *store.SessionStore, codes *store.SignInCodeStore, limiter *middleware.RateLimiter, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		sessions: sessions,
		codes:    codes,
		limiter:  limiter,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Stop ends the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep() {
	if n, err := s.sessions.DeleteExpired(); err != nil {
		s.logger.Error("delete expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("deleted expired sessions", "count", n)
	}
	if n, err := s.codes.DeleteExpired(); err != nil {
		s.logger.Error("delete expired sign-in codes", "error", err)
	} else if n > 0 {
		s.logger.Debug("deleted expired sign-in codes", "count", n)
	}
	s.limiter.Cleanup()
}
