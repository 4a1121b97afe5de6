package auth

import (
	"context"

	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID    int64
	OrgID     int64
	Role      string
	SessionID int64
}

// Actor is the lifecycle caller for this request.
func (ac AuthContext) Actor() lifecycle.Actor {
	return lifecycle.Actor{UserID: ac.UserID, OrgID: ac.OrgID, Role: ac.Role}
}

// ActorFrom returns the lifecycle caller for ctx. Without authentication it
// is the zero Actor, which every lifecycle operation rejects.
func ActorFrom(ctx context.Context) lifecycle.Actor {
	ac, ok := FromContext(ctx)
	if !ok {
		return lifecycle.Actor{}
	}
	return ac.Actor()
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func OrgID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.OrgID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == model.RoleAdmin
}

// Supervises reports whether the caller is a supervisor or admin.
func Supervises(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Actor().Supervises()
}
