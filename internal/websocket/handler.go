package websocket

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cleanround/internal/auth"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades an authenticated request and runs it as a hub
// client of the caller's organisation. originPatterns lists extra allowed
// origins; same-origin requests are always accepted.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "user_id", ac.UserID, "error", err)
			return
		}
		defer conn.CloseNow()

		logger.Debug("websocket connected", "user_id", ac.UserID, "org_id", ac.OrgID)
		NewClient(hub, conn, ac.OrgID, ac.UserID).Run(r.Context())
	}
}
