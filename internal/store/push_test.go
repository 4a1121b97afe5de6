package store

import (
	"testing"

	"github.com/dukerupert/cleanround/internal/model"
)

func TestCreateSubscriptionUpsert(t *testing.T) {
	f := seedFixture(t)
	ps := NewPushStore(f.db)

	sub1, err := ps.CreateSubscription(f.workerID, f.orgID, "https://push.example.com/sub1", "key1", "auth1", "Device A")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	sub2, err := ps.CreateSubscription(f.workerID, f.orgID, "https://push.example.com/sub1", "key2", "auth2", "Device B")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if sub2.ID != sub1.ID {
		t.Errorf("expected same ID on upsert, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want %q", sub2.P256dhKey, "key2")
	}
}

func TestDeleteSubscription(t *testing.T) {
	f := seedFixture(t)
	ps := NewPushStore(f.db)

	sub, _ := ps.CreateSubscription(f.workerID, f.orgID, "https://push.example.com/1", "k1", "a1", "D1")
	ps.CreateSubscription(f.workerID, f.orgID, "https://push.example.com/2", "k2", "a2", "D2")

	if err := ps.DeleteSubscription(sub.ID, f.supervisorID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ := ps.ListByUser(f.workerID)
	if len(subs) != 2 {
		t.Fatalf("another user deleted a subscription: %d left", len(subs))
	}

	ps.DeleteSubscription(sub.ID, f.workerID)
	ps.DeleteByEndpoint("https://push.example.com/2")
	subs, _ = ps.ListByUser(f.workerID)
	if len(subs) != 0 {
		t.Errorf("expected 0 subs after delete, got %d", len(subs))
	}
}

func TestPreferences(t *testing.T) {
	f := seedFixture(t)
	ps := NewPushStore(f.db)

	p, err := ps.GetPreference(f.workerID, model.NotifTypeTaskAssigned)
	if err != nil {
		t.Fatalf("get default pref: %v", err)
	}
	if !p.PushEnabled || p.EmailEnabled {
		t.Errorf("default = push %v email %v, want push on, email off", p.PushEnabled, p.EmailEnabled)
	}

	if err := ps.SetPreference(f.workerID, model.NotifTypeTaskAssigned, false, true); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	p, _ = ps.GetPreference(f.workerID, model.NotifTypeTaskAssigned)
	if p.PushEnabled || !p.EmailEnabled {
		t.Errorf("pref = push %v email %v, want push off, email on", p.PushEnabled, p.EmailEnabled)
	}

	prefs, err := ps.GetPreferences(f.workerID)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(prefs) != 1 {
		t.Fatalf("prefs len = %d, want 1", len(prefs))
	}
}
