// Package notify persists lifecycle notices as in-app notifications and
// fans them out to web push and e-mail according to user preferences.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/cleanround/internal/lifecycle"
	"github.com/dukerupert/cleanround/internal/model"
	"github.com/dukerupert/cleanround/internal/store"
)

// ErrQueueFull is returned by Notify when the delivery queue has no room.
// The notification is still stored in the feed.
var ErrQueueFull = errors.New("notification queue full")

// Pusher delivers one web push message.
type Pusher interface {
	Configured() bool
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Emailer delivers one notification e-mail.
type Emailer interface {
	Configured() bool
	Send(ctx context.Context, to, tag, subject, body, link string) error
}

// Realtime receives every stored notification for live clients.
type Realtime interface {
	SendToUser(userID int64, msg any)
}

type delivery struct {
	notice lifecycle.Notice
	id     int64
}

// Dispatcher implements lifecycle.Notifier.
type Dispatcher struct {
	notifications *store.NotificationStore
	push          *store.PushStore
	users         *store.UserStore
	pusher        Pusher
	mailer        Emailer
	realtime      Realtime
	logger        *slog.Logger

	queue   chan delivery
	workers int
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

type Option func(*Dispatcher)

func WithPusher(p Pusher) Option     { return func(d *Dispatcher) { d.pusher = p } }
func WithEmailer(m Emailer) Option   { return func(d *Dispatcher) { d.mailer = m } }
func WithRealtime(r Realtime) Option { return func(d *Dispatcher) { d.realtime = r } }

// WithQueue sets the queue capacity and worker count.
func WithQueue(size, workers int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan delivery, size)
		}
		if workers > 0 {
			d.workers = workers
		}
	}
}

func NewDispatcher(notifications *store.NotificationStore, push *store.PushStore, users *store.UserStore, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notifications: notifications,
		push:          push,
		users:         users,
		logger:        logger.With("component", "notify"),
		queue:         make(chan delivery, 256),
		workers:       2,
		timeout:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the delivery workers. They exit when Stop is called.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.queue {
				d.deliver(job)
			}
		}()
	}
}

// Stop closes the queue and waits for queued deliveries to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

// Notify stores the notice in the user's feed and queues external delivery.
func (d *Dispatcher) Notify(ctx context.Context, n lifecycle.Notice) error {
	stored, err := d.notifications.Create(n.UserID, n.Type, n.Title, n.Body, n.Link)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if d.realtime != nil {
		d.realtime.SendToUser(n.UserID, map[string]any{"type": "notification", "notification": stored})
	}

	select {
	case d.queue <- delivery{notice: n, id: stored.ID}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) deliver(job delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	n := job.notice
	pref, err := d.push.GetPreference(n.UserID, n.Type)
	if err != nil {
		d.logger.Error("load notification preference", "user_id", n.UserID, "type", n.Type, "error", err)
		return
	}

	if pref.PushEnabled && d.pusher != nil && d.pusher.Configured() {
		d.sendPush(ctx, job)
	}
	if pref.EmailEnabled && d.mailer != nil && d.mailer.Configured() {
		d.sendEmail(ctx, job)
	}
}

func (d *Dispatcher) sendPush(ctx context.Context, job delivery) {
	n := job.notice
	subs, err := d.push.ListByUser(n.UserID)
	if err != nil {
		d.logger.Error("list push subscriptions", "user_id", n.UserID, "error", err)
		return
	}

	payload := Payload{
		Title: n.Title,
		Body:  n.Body,
		URL:   n.Link,
		Tag:   fmt.Sprintf("%s-%d", n.Type, job.id),
	}
	for i := range subs {
		sub := &subs[i]
		err := d.pusher.Send(ctx, sub, payload)
		switch {
		case errors.Is(err, ErrExpired):
			d.logger.Info("removing expired push subscription", "subscription_id", sub.ID, "user_id", n.UserID)
			if err := d.push.DeleteByEndpoint(sub.Endpoint); err != nil {
				d.logger.Error("delete expired subscription", "subscription_id", sub.ID, "error", err)
			}
		case err != nil:
			d.logger.Warn("push failed", "subscription_id", sub.ID, "user_id", n.UserID, "error", err)
		}
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, job delivery) {
	n := job.notice
	u, err := d.users.GetByID(n.UserID)
	if err != nil {
		d.logger.Error("load user for email", "user_id", n.UserID, "error", err)
		return
	}
	if u == nil || u.Email == "" {
		return
	}
	if err := d.mailer.Send(ctx, u.Email, n.Type, n.Title, n.Body, n.Link); err != nil {
		d.logger.Warn("email failed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

var _ lifecycle.Notifier = (*Dispatcher)(nil)
