package lifecycle

import "context"

// Notice is a message for one user, handed to the Notifier after the
// transition that produced it has committed.
type Notice struct {
	UserID int64
	Type   string
	Title  string
	Body   string
	Link   string
}

// Notifier delivers notices. Delivery is best effort: a failure is logged and
// never affects the transition.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Notice) error { return nil }
