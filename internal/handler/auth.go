package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

const maxCodeAttempts = 5

// CodeMailer delivers sign-in codes.
type CodeMailer interface {
	Configured() bool
	Send(ctx context.Context, to, tag, subject, body, link string) error
}

// AuthHandler exchanges e-mailed sign-in codes for API tokens and manages
// the caller's tokens.
type AuthHandler struct {
	users    *store.UserStore
	orgs     *store.OrgStore
	sessions *store.SessionStore
	codes    *store.SignInCodeStore
	mailer   CodeMailer
	tokenTTL time.Duration
	logger   *slog.Logger
}

func NewAuthHandler(us *store.UserStore, os *store.OrgStore, ss *store.SessionStore, cs *store.SignInCodeStore, mailer CodeMailer, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    us,
		orgs:     os,
		sessions: ss,
		codes:    cs,
		mailer:   mailer,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

func (h *AuthHandler) sendCode(ctx context.Context, c *model.SignInCode, orgName string) error {
	subject := fmt.Sprintf("Your %s sign-in code: %s", orgName, c.Code)
	body := fmt.Sprintf("Enter %s to sign in to %s. The code expires in %d minutes.", c.Code, orgName, int(store.SignInCodeTTL.Minutes()))
	if c.Purpose == model.CodePurposeInvite {
		subject = fmt.Sprintf("You're invited to %s", orgName)
		body = fmt.Sprintf("You have been invited to %s as %s. Enter %s to accept. The code expires in %d minutes.",
			orgName, c.Role, c.Code, int(store.SignInCodeTTL.Minutes()))
	}
	return h.mailer.Send(ctx, c.Email, "sign-in", subject, body, "/signin")
}

// RequestCode handles POST /api/auth/code. The response is the same whether
// or not the address belongs to a member.
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OrgID int64  `json:"org_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.OrgID == 0 {
		writeError(w, http.StatusBadRequest, "email and org_id are required")
		return
	}
	if h.mailer == nil || !h.mailer.Configured() {
		writeError(w, http.StatusServiceUnavailable, "e-mail sign-in is not configured")
		return
	}
	defer writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("sign-in lookup", "error", err)
		return
	}
	if user == nil {
		return
	}
	member, err := h.orgs.GetMember(req.OrgID, user.ID)
	if err != nil || member == nil {
		return
	}
	org, err := h.orgs.GetByID(req.OrgID)
	if err != nil || org == nil {
		h.logger.Error("sign-in organisation", "org_id", req.OrgID, "error", err)
		return
	}

	c, err := h.codes.Create(user.Email, model.CodePurposeLogin, org.ID, "")
	if err != nil {
		h.logger.Error("create sign-in code", "error", err)
		return
	}
	if err := h.sendCode(r.Context(), c, org.Name); err != nil {
		h.logger.Error("send sign-in code", "error", err)
	}
}

// validateCode checks code against the latest pending code for email and
// consumes it on success. It returns a user-facing message on failure.
func (h *AuthHandler) validateCode(email, code string) (*model.SignInCode, string) {
	if email == "" || code == "" {
		return nil, "email and code are required"
	}
	latest, err := h.codes.GetLatestByEmail(email)
	if err != nil {
		h.logger.Error("validate code lookup", "error", err)
		return nil, "internal error"
	}
	if latest == nil {
		return nil, "code has expired or already been used"
	}
	if latest.Attempts >= maxCodeAttempts {
		h.codes.MarkUsed(latest.ID)
		return nil, "too many incorrect attempts, request a new code"
	}
	if latest.Code != code {
		n, err := h.codes.IncrementAttempts(latest.ID)
		if err != nil {
			h.logger.Error("increment attempts", "error", err)
		}
		if n >= maxCodeAttempts {
			h.codes.MarkUsed(latest.ID)
			return nil, "too many incorrect attempts, request a new code"
		}
		return nil, "incorrect code"
	}
	ok, err := h.codes.MarkUsed(latest.ID)
	if err != nil {
		h.logger.Error("mark code used", "error", err)
		return nil, "internal error"
	}
	if !ok {
		return nil, "code has expired or already been used"
	}
	return latest, ""
}

// Token handles POST /api/auth/token. A login code signs in an existing
// member; an invite code also creates the user and membership.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, msg := h.validateCode(strings.TrimSpace(req.Email), strings.TrimSpace(req.Code))
	if msg != "" {
		writeError(w, http.StatusUnauthorized, msg)
		return
	}

	user, err := h.users.GetByEmail(c.Email)
	if err != nil {
		h.logger.Error("token user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch c.Purpose {
	case model.CodePurposeInvite:
		if user == nil {
			user, err = h.users.Create(c.Email, strings.TrimSpace(req.Name))
			if err != nil {
				h.logger.Error("create invited user", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
		existing, err := h.orgs.GetMember(c.OrgID, user.ID)
		if err != nil {
			h.logger.Error("invite member lookup", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if existing == nil {
			if _, err := h.orgs.AddMember(c.OrgID, user.ID, c.Role); err != nil {
				h.logger.Error("add invited member", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			h.logger.Info("invite accepted", "org_id", c.OrgID, "user_id", user.ID, "role", c.Role)
		}
	default:
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		member, err := h.orgs.GetMember(c.OrgID, user.ID)
		if err != nil || member == nil {
			writeError(w, http.StatusUnauthorized, "not a member of this organisation")
			return
		}
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = "sign-in"
	}
	token, sess, err := h.sessions.Issue(user.ID, c.OrgID, label, h.tokenTTL)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": token, "session": sess})
}

// Invite handles POST /api/org/invites (admin).
func (h *AuthHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleWorker
	}
	if !validRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be admin, supervisor or worker")
		return
	}
	if h.mailer == nil || !h.mailer.Configured() {
		writeError(w, http.StatusServiceUnavailable, "e-mail is not configured")
		return
	}

	orgID := auth.OrgID(r.Context())
	org, err := h.orgs.GetByID(orgID)
	if err != nil || org == nil {
		h.logger.Error("invite organisation", "org_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	c, err := h.codes.Create(req.Email, model.CodePurposeInvite, org.ID, req.Role)
	if err != nil {
		h.logger.Error("create invite code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.sendCode(r.Context(), c, org.Name); err != nil {
		h.logger.Error("send invite", "error", err)
		writeError(w, http.StatusBadGateway, "failed to send invitation")
		return
	}
	writeJSON(w, http.StatusAccepted, c)
}

// ListSessions handles GET /api/auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if list == nil {
		list = []model.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

// RevokeSession handles DELETE /api/auth/sessions/{id}
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	sess, err := h.sessions.GetByID(id)
	if err != nil {
		h.logger.Error("get session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if sess == nil || sess.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := h.sessions.Revoke(id); err != nil {
		h.logger.Error("revoke session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /api/auth/logout by revoking the calling token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.sessions.Revoke(ac.SessionID); err != nil {
		h.logger.Error("logout", "session_id", ac.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validRole(role string) bool {
	switch role {
	case model.RoleAdmin, model.RoleSupervisor, model.RoleWorker:
		return true
	}
	return false
}
