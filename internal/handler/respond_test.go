package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/cleanround/internal/lifecycle"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind lifecycle.Kind
		want int
	}{
		{lifecycle.KindValidation, http.StatusBadRequest},
		{lifecycle.KindInvalidTransition, http.StatusConflict},
		{lifecycle.KindConflict, http.StatusConflict},
		{lifecycle.KindAuthorization, http.StatusForbidden},
		{lifecycle.KindNotFound, http.StatusNotFound},
		{lifecycle.KindInfrastructure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := statusForKind(tt.kind); got != tt.want {
				t.Errorf("statusForKind(%v) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestWriteLifecycleErrorHidesInfrastructure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeLifecycleError(rec, discardLogger(), "op", errors.New("disk on fire"))
	wantStatus(t, rec, http.StatusInternalServerError)
	if body := decode[lifecycleErrorBody](t, rec); body.Error != "internal error" || body.Code != "" {
		t.Errorf("body = %+v, want bare internal error", body)
	}
}

func TestWithConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries a conflict once", func(t *testing.T) {
		calls := 0
		got, err := withConflictRetry(ctx, func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, lifecycle.ErrConflict
			}
			return 42, nil
		})
		if err != nil || got != 42 {
			t.Errorf("got %d, %v, want 42, nil", got, err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("gives up after a second conflict", func(t *testing.T) {
		calls := 0
		_, err := withConflictRetry(ctx, func(context.Context) (int, error) {
			calls++
			return 0, fmt.Errorf("attempt %d: %w", calls, lifecycle.ErrConflict)
		})
		if !lifecycle.IsConflict(err) {
			t.Errorf("err = %v, want conflict", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		calls := 0
		_, err := withConflictRetry(ctx, func(context.Context) (int, error) {
			calls++
			return 0, lifecycle.ErrForbidden
		})
		if !errors.Is(err, lifecycle.ErrForbidden) {
			t.Errorf("err = %v, want forbidden", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
