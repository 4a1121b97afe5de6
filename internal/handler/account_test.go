package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/notify"
	"github.com/dukerupert/cleanround/internal/store"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Configured() bool { return true }

func (m *fakeMailer) Send(_ context.Context, to, _, subject, body, _ string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fixture) authHandler(mailer CodeMailer) *AuthHandler {
	db := f.db
	return NewAuthHandler(store.NewUserStore(db), store.NewOrgStore(db), store.NewSessionStore(db), store.NewSignInCodeStore(db), mailer, time.Hour, f.logger)
}

func (f *fixture) latestCode(t *testing.T, email string) string {
	t.Helper()
	c, err := store.NewSignInCodeStore(f.db).GetLatestByEmail(email)
	if err != nil || c == nil {
		t.Fatalf("latest code for %s: %v, %v", email, c, err)
	}
	return c.Code
}

func TestAuthCodeLogin(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := f.authHandler(mailer)

	rec := call(t, h.RequestCode, "POST /api/auth/code", http.MethodPost, "/api/auth/code", f.worker, map[string]any{
		"email": "Wren@Example.com", "org_id": f.orgID,
	})
	wantStatus(t, rec, http.StatusAccepted)
	if len(mailer.sent) != 1 || mailer.sent[0].to != "wren@example.com" {
		t.Fatalf("sent = %+v, want one mail to wren@example.com", mailer.sent)
	}
	code := f.latestCode(t, "wren@example.com")
	if !strings.Contains(mailer.sent[0].subject, code) {
		t.Errorf("subject %q does not carry the code", mailer.sent[0].subject)
	}

	rec = call(t, h.Token, "POST /api/auth/token", http.MethodPost, "/api/auth/token", f.worker, map[string]any{
		"email": "wren@example.com", "code": "000000",
	})
	wantStatus(t, rec, http.StatusUnauthorized)

	rec = call(t, h.Token, "POST /api/auth/token", http.MethodPost, "/api/auth/token", f.worker, map[string]any{
		"email": "wren@example.com", "code": code, "label": "phone",
	})
	wantStatus(t, rec, http.StatusCreated)
	got := decode[struct {
		Token   string        `json:"token"`
		Session model.Session `json:"session"`
	}](t, rec)
	if got.Token == "" || got.Session.UserID != f.worker.UserID || got.Session.OrgID != f.orgID {
		t.Errorf("token response = %+v, want a token for user %d org %d", got, f.worker.UserID, f.orgID)
	}
	sess, err := store.NewSessionStore(f.db).Authenticate(got.Token)
	if err != nil || sess == nil {
		t.Errorf("Authenticate(issued token) = %v, %v, want session", sess, err)
	}

	rec = call(t, h.Token, "POST /api/auth/token", http.MethodPost, "/api/auth/token", f.worker, map[string]any{
		"email": "wren@example.com", "code": code,
	})
	wantStatus(t, rec, http.StatusUnauthorized)
}

func TestAuthCodeUnknownAddressLooksTheSame(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := f.authHandler(mailer)

	rec := call(t, h.RequestCode, "POST /api/auth/code", http.MethodPost, "/api/auth/code", f.worker, map[string]any{
		"email": "nobody@example.com", "org_id": f.orgID,
	})
	wantStatus(t, rec, http.StatusAccepted)
	rec = call(t, h.RequestCode, "POST /api/auth/code", http.MethodPost, "/api/auth/code", f.worker, map[string]any{
		"email": "ray@example.com", "org_id": f.orgID,
	})
	wantStatus(t, rec, http.StatusAccepted)
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d mails, want 0", len(mailer.sent))
	}
}

func TestAuthCodeLockout(t *testing.T) {
	f := setup(t)
	h := f.authHandler(&fakeMailer{})

	call(t, h.RequestCode, "POST /api/auth/code", http.MethodPost, "/api/auth/code", f.worker, map[string]any{
		"email": "wren@example.com", "org_id": f.orgID,
	})
	code := f.latestCode(t, "wren@example.com")
	for i := 0; i < maxCodeAttempts; i++ {
		rec := call(t, h.Token, "POST /api/auth/token", http.MethodPost, "/api/auth/token", f.worker, map[string]any{
			"email": "wren@example.com", "code": "bad",
		})
		wantStatus(t, rec, http.StatusUnauthorized)
	}
	rec := call(t, h.Token, "POST /api/auth/token", http.MethodPost, "/api/auth/token", f.worker, map[string]any{
		"email": "wren@example.com", "code": code,
	})
	wantStatus(t, rec, http.StatusUnauthorized)
}

func TestAuthInviteCreatesMember(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := f.authHandler(mailer)

	rec := call(t, h.Invite, "POST /api/org/invites", http.MethodPost, "/api/org/invites", f.admin, map[string]any{
		"email": "nia@example.com", "role": "janitor",
	})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = call(t, h.Invite, "POST /api/org/invites", http.MethodPost, "/api/org/invites", f.admin, map[string]any{
		"email": "nia@example.com", "role": model.RoleSupervisor,
	})
	wantStatus(t, rec, http.StatusAccepted)
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}

	rec = call(t, h.Token, "POST /api/auth/token", http.MethodPost, "/api/auth/token", f.admin, map[string]any{
		"email": "nia@example.com", "code": f.latestCode(t, "nia@example.com"), "name": "Nia",
	})
	wantStatus(t, rec, http.StatusCreated)

	user, err := store.NewUserStore(f.db).GetByEmail("nia@example.com")
	if err != nil || user == nil {
		t.Fatalf("invited user = %v, %v", user, err)
	}
	m, err := store.NewOrgStore(f.db).GetMember(f.orgID, user.ID)
	if err != nil || m == nil {
		t.Fatalf("membership = %v, %v", m, err)
	}
	if m.Role != model.RoleSupervisor {
		t.Errorf("role = %q, want %q", m.Role, model.RoleSupervisor)
	}
}

func TestAuthRevokeOwnSessionsOnly(t *testing.T) {
	f := setup(t)
	h := f.authHandler(nil)
	sessions := store.NewSessionStore(f.db)

	_, mine, err := sessions.Issue(f.worker.UserID, f.orgID, "laptop", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, theirs, err := sessions.Issue(f.sup.UserID, f.orgID, "tablet", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := call(t, h.RevokeSession, "DELETE /api/auth/sessions/{id}", http.MethodDelete,
		fmt.Sprintf("/api/auth/sessions/%d", theirs.ID), f.worker, nil)
	wantStatus(t, rec, http.StatusNotFound)

	rec = call(t, h.RevokeSession, "DELETE /api/auth/sessions/{id}", http.MethodDelete,
		fmt.Sprintf("/api/auth/sessions/%d", mine.ID), f.worker, nil)
	wantStatus(t, rec, http.StatusNoContent)

	rec = call(t, h.ListSessions, "GET /api/auth/sessions", http.MethodGet, "/api/auth/sessions", f.worker, nil)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[[]model.Session](t, rec); len(got) != 0 {
		t.Errorf("sessions = %d, want 0", len(got))
	}
}

func TestAuthRequestCodeWithoutMailer(t *testing.T) {
	f := setup(t)
	h := f.authHandler(nil)
	rec := call(t, h.RequestCode, "POST /api/auth/code", http.MethodPost, "/api/auth/code", f.worker, map[string]any{
		"email": "wren@example.com", "org_id": f.orgID,
	})
	wantStatus(t, rec, http.StatusServiceUnavailable)
}

type fakePush struct {
	expired map[string]bool
	sent    int
}

func (p *fakePush) Configured() bool       { return true }
func (p *fakePush) VAPIDPublicKey() string { return "BPublicKey" }

func (p *fakePush) Send(_ context.Context, sub *model.PushSubscription, _ notify.Payload) error {
	if p.expired[sub.Endpoint] {
		return notify.ErrExpired
	}
	p.sent++
	return nil
}

func TestPushPreferences(t *testing.T) {
	f := setup(t)
	h := NewPushHandler(store.NewPushStore(f.db), &fakePush{}, f.logger)

	rec := call(t, h.GetPreferences, "GET /api/push/preferences", http.MethodGet, "/api/push/preferences", f.worker, nil)
	wantStatus(t, rec, http.StatusOK)
	prefs := decode[[]model.NotificationPreference](t, rec)
	if len(prefs) != len(model.NotificationTypes) {
		t.Fatalf("preferences = %d, want %d", len(prefs), len(model.NotificationTypes))
	}
	for _, p := range prefs {
		if !p.PushEnabled || p.EmailEnabled {
			t.Errorf("default %s = push %v email %v, want push only", p.NotificationType, p.PushEnabled, p.EmailEnabled)
		}
	}

	rec = call(t, h.UpdatePreferences, "PUT /api/push/preferences", http.MethodPut, "/api/push/preferences", f.worker, map[string]any{
		"preferences": []map[string]any{{"type": "weather_alert", "push": true}},
	})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = call(t, h.UpdatePreferences, "PUT /api/push/preferences", http.MethodPut, "/api/push/preferences", f.worker, map[string]any{
		"preferences": []map[string]any{{"type": model.NotifTypeTaskAssigned, "push": false, "email": true}},
	})
	wantStatus(t, rec, http.StatusOK)
	for _, p := range decode[[]model.NotificationPreference](t, rec) {
		if p.NotificationType != model.NotifTypeTaskAssigned {
			continue
		}
		if p.PushEnabled || !p.EmailEnabled {
			t.Errorf("task_assigned = push %v email %v, want email only", p.PushEnabled, p.EmailEnabled)
		}
	}
}

func TestPushTestDropsExpiredSubscriptions(t *testing.T) {
	f := setup(t)
	ps := store.NewPushStore(f.db)
	push := &fakePush{expired: map[string]bool{"https://push.example/old": true}}
	h := NewPushHandler(ps, push, f.logger)

	for _, ep := range []string{"https://push.example/old", "https://push.example/new"} {
		rec := call(t, h.Subscribe, "POST /api/push/subscriptions", http.MethodPost, "/api/push/subscriptions", f.worker, map[string]any{
			"endpoint": ep, "p256dh": "key", "auth": "secret", "device_name": "phone",
		})
		wantStatus(t, rec, http.StatusCreated)
	}

	rec := call(t, h.TestNotification, "POST /api/push/test", http.MethodPost, "/api/push/test", f.worker, nil)
	wantStatus(t, rec, http.StatusOK)
	if got := decode[map[string]int](t, rec); got["sent"] != 1 {
		t.Errorf("sent = %d, want 1", got["sent"])
	}
	subs, err := ps.ListByUser(f.worker.UserID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/new" {
		t.Errorf("subscriptions = %+v, want only the new endpoint", subs)
	}
}

func TestNotificationsReadFlow(t *testing.T) {
	f := setup(t)
	ns := store.NewNotificationStore(f.db)
	h := NewNotificationHandler(ns, f.logger)

	n1, err := ns.Create(f.worker.UserID, model.NotifTypeTaskAssigned, "New cleaning task: 301", "", "/tasks/1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ns.Create(f.worker.UserID, model.NotifTypeDeficiencyOpened, "Deficiency opened", "", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := call(t, h.List, "GET /api/notifications", http.MethodGet, "/api/notifications?limit=0", f.worker, nil)
	wantStatus(t, rec, http.StatusBadRequest)

	rec = call(t, h.MarkRead, "POST /api/notifications/{id}/read", http.MethodPost,
		fmt.Sprintf("/api/notifications/%d/read", n1.ID), f.sup, nil)
	wantStatus(t, rec, http.StatusNotFound)

	rec = call(t, h.MarkRead, "POST /api/notifications/{id}/read", http.MethodPost,
		fmt.Sprintf("/api/notifications/%d/read", n1.ID), f.worker, nil)
	if rec.Code >= 300 {
		t.Fatalf("mark read status = %d", rec.Code)
	}

	rec = call(t, h.List, "GET /api/notifications", http.MethodGet, "/api/notifications?unread=true", f.worker, nil)
	wantStatus(t, rec, http.StatusOK)
	got := decode[struct {
		Notifications []model.Notification `json:"notifications"`
		Unread        int                  `json:"unread"`
	}](t, rec)
	if len(got.Notifications) != 1 || got.Unread != 1 {
		t.Errorf("unread list = %d items, count %d, want 1 and 1", len(got.Notifications), got.Unread)
	}

	rec = call(t, h.MarkAllRead, "POST /api/notifications/read-all", http.MethodPost, "/api/notifications/read-all", f.worker, nil)
	if rec.Code >= 300 {
		t.Fatalf("mark all read status = %d", rec.Code)
	}
	if n, err := ns.CountUnread(f.worker.UserID); err != nil || n != 0 {
		t.Errorf("CountUnread = %d, %v, want 0", n, err)
	}
}
