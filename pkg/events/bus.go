// Package events carries coarse change notifications for the bots
// collection. Consumers treat any event as an invalidation signal and
// re-fetch the full list; payloads identify the record but carry no data.
package events

import "context"

// Type enumerates change notification kinds.
type Type string

const (
	TypeCreated Type = "created"
	TypeUpdated Type = "updated"
	TypeDeleted Type = "deleted"
)

// Event is a single change notification.
type Event struct {
	Collection string `json:"collection"`
	Type       Type   `json:"type"`
	ID         string `json:"id"`
}

// Bus publishes and subscribes to change notifications.
type Bus interface {
	// Publish sends an event to all current subscribers.
	Publish(ctx context.Context, e Event) error
	// Subscribe returns a channel of events. The channel is closed and the
	// underlying subscription released when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan Event, error)
}
