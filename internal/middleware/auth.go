package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cleanround/internal/auth"
	"github.com/dukerupert/cleanround/internal/store"
)

// Failed token checks allowed per client IP per window before requests are
// refused outright.
const (
	authFailureLimit  = 10
	authFailureWindow = time.Minute
)

// TokenFromRequest returns the bearer token. Websocket upgrades may pass it
// as the token query parameter instead, since browsers cannot set headers on
// them.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// RequireToken validates the bearer token and populates AuthContext with the
// caller's current role in the token's organisation.
func RequireToken(sessions *store.SessionStore, orgs *store.OrgStore, limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			failKey := "auth-fail:" + RealIP(r)
			if limiter.Exceeded(failKey, authFailureLimit) {
				writeError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
				return
			}
			reject := func() {
				limiter.Allow(failKey, authFailureLimit, authFailureWindow)
				w.Header().Set("WWW-Authenticate", `Bearer realm="cleanround"`)
				writeError(w, http.StatusUnauthorized, "authentication required")
			}

			token := TokenFromRequest(r)
			if token == "" {
				reject()
				return
			}
			sess, err := sessions.Authenticate(token)
			if errors.Is(err, store.ErrInvalidToken) {
				reject()
				return
			}
			if err != nil {
				logger.Error("authenticate token", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			member, err := orgs.GetMember(sess.OrgID, sess.UserID)
			if err != nil {
				logger.Error("load membership", "user_id", sess.UserID, "org_id", sess.OrgID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if member == nil {
				reject()
				return
			}

			ac := auth.AuthContext{
				UserID:    sess.UserID,
				OrgID:     sess.OrgID,
				Role:      member.Role,
				SessionID: sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSupervisor checks for the supervisor or admin role.
func RequireSupervisor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.Supervises(r.Context()) {
			writeError(w, http.StatusForbidden, "supervisor role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
