package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

type OrgHandler struct {
	orgs   *store.OrgStore
	logger *slog.Logger
}

func NewOrgHandler(os *store.OrgStore, logger *slog.Logger) *OrgHandler {
	return &OrgHandler{orgs: os, logger: logger}
}

// Get handles GET /api/org
func (h *OrgHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.GetByID(auth.OrgID(r.Context()))
	if err != nil {
		h.logger.Error("get organisation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get organisation")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organisation not found")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// UpdateThreshold handles PUT /api/org/threshold. Closed activities keep
// the threshold they were closed with.
func (h *OrgHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PassThreshold *float64 `json:"pass_threshold"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PassThreshold == nil || *req.PassThreshold < 0 || *req.PassThreshold > 100 {
		writeError(w, http.StatusBadRequest, "pass_threshold must be between 0 and 100")
		return
	}
	org, err := h.orgs.UpdateThreshold(auth.OrgID(r.Context()), *req.PassThreshold)
	if err != nil {
		h.logger.Error("update threshold", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update threshold")
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// Members handles GET /api/org/members
func (h *OrgHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.orgs.ListMembers(auth.OrgID(r.Context()))
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	if members == nil {
		members = []model.OrgMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

// UpdateMemberRole handles PUT /api/org/members/{id}/role where id is the
// member's user id. Admins cannot demote themselves.
func (h *OrgHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be admin, supervisor or worker")
		return
	}
	if userID == auth.UserID(r.Context()) && req.Role != model.RoleAdmin {
		writeError(w, http.StatusBadRequest, "cannot change your own admin role")
		return
	}

	orgID := auth.OrgID(r.Context())
	m, err := h.orgs.GetMember(orgID, userID)
	if err != nil {
		h.logger.Error("get member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if err := h.orgs.UpdateMemberRole(orgID, userID, req.Role); err != nil {
		h.logger.Error("update member role", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update role")
		return
	}
	m, err = h.orgs.GetMember(orgID, userID)
	if err != nil {
		h.logger.Error("reload member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
