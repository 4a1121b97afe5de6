package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cleanround/internal/handler"
	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/middleware"
	"github.com/dukerupert/cleanround/internal/store"
	ws "github.com/dukerupert/cleanround/internal/websocket"
)

// Deps are the collaborators the HTTP surface is built from. Photos, Push
// and Mailer may be nil or unconfigured; their endpoints then answer 503.
type Deps struct {
	DB             *sql.DB
	Engine         *lifecycle.Engine
	Hub            *ws.Hub
	Photos         handler.PhotoStore
	Push           handler.PushSender
	Mailer         handler.CodeMailer
	TokenTTL       time.Duration
	OriginPatterns []string
	Logger         *slog.Logger
}

type Server struct {
	hub            *ws.Hub
	activityH      *handler.ActivityHandler
	taskH          *handler.TaskHandler
	deficiencyH    *handler.DeficiencyHandler
	facilityH      *handler.FacilityHandler
	checklistH     *handler.ChecklistHandler
	notificationH  *handler.NotificationHandler
	pushH          *handler.PushHandler
	orgH           *handler.OrgHandler
	authH          *handler.AuthHandler
	sessionStore   *store.SessionStore
	orgStore       *store.OrgStore
	codeStore      *store.SignInCodeStore
	rateLimiter    *middleware.RateLimiter
	originPatterns []string
	logger         *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db := d.DB

	orgStore := store.NewOrgStore(db)
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	codeStore := store.NewSignInCodeStore(db)
	facilityStore := store.NewFacilityStore(db)
	checklistStore := store.NewChecklistStore(db)
	activityStore := store.NewActivityStore(db)
	taskStore := store.NewRoomTaskStore(db)
	deficiencyStore := store.NewDeficiencyStore(db)

	return &Server{
		hub:            d.Hub,
		activityH:      handler.NewActivityHandler(d.Engine, activityStore, taskStore, orgStore, d.Hub, logger.With("component", "activity")),
		taskH:          handler.NewTaskHandler(d.Engine, taskStore, activityStore, d.Photos, d.Hub, logger.With("component", "task")),
		deficiencyH:    handler.NewDeficiencyHandler(d.Engine, deficiencyStore, d.Hub, logger.With("component", "deficiency")),
		facilityH:      handler.NewFacilityHandler(facilityStore, logger.With("component", "facility")),
		checklistH:     handler.NewChecklistHandler(d.Engine, checklistStore, facilityStore, logger.With("component", "checklist")),
		notificationH:  handler.NewNotificationHandler(store.NewNotificationStore(db), logger.With("component", "notification")),
		pushH:          handler.NewPushHandler(store.NewPushStore(db), d.Push, logger.With("component", "push_handler")),
		orgH:           handler.NewOrgHandler(orgStore, logger.With("component", "organisation")),
		authH:          handler.NewAuthHandler(userStore, orgStore, sessionStore, codeStore, d.Mailer, d.TokenTTL, logger.With("component", "auth")),
		sessionStore:   sessionStore,
		orgStore:       orgStore,
		codeStore:      codeStore,
		rateLimiter:    middleware.NewRateLimiter(),
		originPatterns: d.OriginPatterns,
		logger:         logger,
	}
}

// Sweeper returns a sweeper over the server's token, code and rate limit
// state.
func (s *Server) Sweeper(interval time.Duration) *Sweeper {
	return NewSweeper(s.sessionStore, s.codeStore, s.rateLimiter, interval, s.logger.With("component", "sweeper"))
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/code", s.rateLimitedHandler(s.authH.RequestCode))
	outerMux.HandleFunc("POST /api/auth/token", s.rateLimitedHandler(s.authH.Token))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	requireToken := middleware.RequireToken(s.sessionStore, s.orgStore, s.rateLimiter, s.logger.With("component", "auth"))
	outerMux.Handle("/", requireToken(protectedMux))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return r.URL.Path + ":" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	supervisor := func(h http.HandlerFunc) http.Handler { return middleware.RequireSupervisor(h) }
	admin := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

	// Tokens and membership
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/sessions", s.authH.ListSessions)
	mux.HandleFunc("DELETE /api/auth/sessions/{id}", s.authH.RevokeSession)
	mux.HandleFunc("GET /api/org", s.orgH.Get)
	mux.Handle("PUT /api/org/threshold", admin(s.orgH.UpdateThreshold))
	mux.Handle("GET /api/org/members", supervisor(s.orgH.Members))
	mux.Handle("PUT /api/org/members/{id}/role", admin(s.orgH.UpdateMemberRole))
	mux.Handle("POST /api/org/invites", admin(s.authH.Invite))

	// Activities. Role rules for transitions are enforced by the engine.
	mux.HandleFunc("POST /api/activities", s.activityH.Create)
	mux.HandleFunc("GET /api/activities", s.activityH.List)
	mux.HandleFunc("GET /api/activities/{id}", s.activityH.Get)
	mux.HandleFunc("POST /api/activities/{id}/publish", s.activityH.Publish)
	mux.HandleFunc("POST /api/activities/{id}/cancel", s.activityH.Cancel)
	mux.HandleFunc("POST /api/activities/{id}/close", s.activityH.Close)
	mux.HandleFunc("GET /api/activities/{id}/report", s.activityH.Report)

	// Room tasks
	mux.HandleFunc("GET /api/tasks/mine", s.taskH.Mine)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("POST /api/tasks/{id}/start", s.taskH.Start)
	mux.HandleFunc("POST /api/tasks/{id}/assign", s.taskH.Assign)
	mux.HandleFunc("PUT /api/tasks/{id}/items/{item_id}", s.taskH.RecordItem)
	mux.HandleFunc("POST /api/tasks/{id}/items/{item_id}/photo", s.taskH.UploadPhoto)
	mux.HandleFunc("GET /api/tasks/{id}/items/{item_id}/photo", s.taskH.Photo)
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.taskH.Complete)
	mux.HandleFunc("POST /api/tasks/{id}/inspect", s.taskH.Inspect)
	mux.HandleFunc("GET /api/tasks/{id}/responses", s.taskH.Responses)
	mux.HandleFunc("POST /api/tasks/{id}/deficiencies", s.deficiencyH.Open)

	// Deficiencies
	mux.HandleFunc("GET /api/deficiencies", s.deficiencyH.List)
	mux.HandleFunc("GET /api/deficiencies/{id}", s.deficiencyH.Get)
	mux.HandleFunc("POST /api/deficiencies/{id}/start", s.deficiencyH.Start)
	mux.HandleFunc("POST /api/deficiencies/{id}/resolve", s.deficiencyH.Resolve)
	mux.HandleFunc("POST /api/deficiencies/{id}/reassign", s.deficiencyH.Reassign)

	// Facilities
	mux.HandleFunc("GET /api/buildings", s.facilityH.ListBuildings)
	mux.Handle("POST /api/buildings", supervisor(s.facilityH.CreateBuilding))
	mux.HandleFunc("GET /api/floors", s.facilityH.ListFloors)
	mux.Handle("POST /api/floors", supervisor(s.facilityH.CreateFloor))
	mux.HandleFunc("GET /api/room-types", s.facilityH.ListRoomTypes)
	mux.Handle("POST /api/room-types", supervisor(s.facilityH.CreateRoomType))
	mux.HandleFunc("GET /api/rooms", s.facilityH.ListRooms)
	mux.Handle("POST /api/rooms", supervisor(s.facilityH.CreateRoom))

	// Checklists
	mux.HandleFunc("GET /api/checklists", s.checklistH.List)
	mux.Handle("POST /api/checklists", supervisor(s.checklistH.Create))
	mux.HandleFunc("GET /api/checklists/{id}", s.checklistH.Get)
	mux.Handle("PUT /api/checklists/{id}/items/{item_id}", supervisor(s.checklistH.UpdateItem))
	mux.Handle("PUT /api/rooms/{id}/checklist-override", supervisor(s.checklistH.SetOverride))
	mux.Handle("DELETE /api/rooms/{id}/checklist-override", supervisor(s.checklistH.ClearOverride))
	mux.HandleFunc("GET /api/rooms/{id}/checklist", s.checklistH.RoomChecklist)

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", s.notificationH.MarkAllRead)

	// Push
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
	mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))
}
