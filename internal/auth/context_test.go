package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/cleanround/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:    1,
		OrgID:     2,
		Role:      model.RoleAdmin,
		SessionID: 3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got != ac {
		t.Errorf("AuthContext = %+v, want %+v", got, ac)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestOrgID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{OrgID: 42})
	if OrgID(ctx) != 42 {
		t.Errorf("OrgID = %d, want 42", OrgID(ctx))
	}
	if OrgID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		role       string
		admin      bool
		supervises bool
	}{
		{model.RoleAdmin, true, true},
		{model.RoleSupervisor, false, true},
		{model.RoleWorker, false, false},
	}
	for _, tt := range tests {
		ctx := WithAuth(context.Background(), AuthContext{Role: tt.role})
		if got := IsAdmin(ctx); got != tt.admin {
			t.Errorf("IsAdmin(%s) = %v, want %v", tt.role, got, tt.admin)
		}
		if got := Supervises(ctx); got != tt.supervises {
			t.Errorf("Supervises(%s) = %v, want %v", tt.role, got, tt.supervises)
		}
	}
	if IsAdmin(context.Background()) || Supervises(context.Background()) {
		t.Error("expected false for missing context")
	}
}

func TestActor(t *testing.T) {
	a := AuthContext{UserID: 5, OrgID: 9, Role: model.RoleWorker, SessionID: 11}.Actor()
	if a.UserID != 5 || a.OrgID != 9 || a.Role != model.RoleWorker {
		t.Errorf("Actor = %+v", a)
	}
}
