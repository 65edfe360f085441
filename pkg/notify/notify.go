// Package notify announces newly saved configuration versions so that
// consumers can reload without polling.
package notify

import (
	"context"
	"time"
)

// Event describes a committed save.
type Event struct {
	Service   string    `json:"service"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	RequestID string    `json:"request_id,omitempty"`
}

// Notifier publishes save events. Publishing happens after commit, so a
// failure never undoes a save.
type Notifier interface {
	Saved(ctx context.Context, event Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

// Saved does nothing.
func (Noop) Saved(context.Context, Event) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

var _ Notifier = Noop{}
