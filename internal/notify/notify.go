// Package notify fans gateway events out to operator-facing channels. All
// notifiers are fire-and-forget: a failed notification is logged, never
// surfaced to the webhook caller.
package notify

import "context"

// Field is one labeled value in an event.
type Field struct {
	Name  string
	Value string
}

// Event describes one notable gateway occurrence.
type Event struct {
	Title   string
	Status  string
	OrderID string
	Fields  []Field
}

// Notifier delivers events to one channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Noop discards all events.
type Noop struct{}

func (Noop) Notify(context.Context, Event) {}

// Multi fans one event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}
