package lifecycle

import "github.com/dukerupert/cleanround/internal/model"

// Actor is the caller of a lifecycle operation. The transport resolves it
// from its own authentication and passes it explicitly.
type Actor struct {
	UserID int64
	OrgID  int64
	Role   string
}

// Supervises reports whether the actor may publish, cancel, close and inspect.
func (a Actor) Supervises() bool {
	return a.Role == model.RoleSupervisor || a.Role == model.RoleAdmin
}

func (a Actor) requireSupervisor(action string) error {
	if !a.Supervises() {
		return forbidden("role %q may not %s", a.Role, action)
	}
	return nil
}

func (a Actor) requireOrg(orgID int64) error {
	if a.OrgID != orgID {
		return forbidden("user %d is not a member of organisation %d", a.UserID, orgID)
	}
	return nil
}

func (a Actor) is(userID *int64) bool {
	return userID != nil && *userID == a.UserID
}
