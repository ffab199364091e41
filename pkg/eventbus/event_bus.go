// Package eventbus carries stepflow events between the engine, the row store
// and the trigger dispatcher.
package eventbus

import (
	"context"

	"github.com/dukex/stepflow/pkg/events"
)

// Event is anything published on the bus.
type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.RowChanged.
// Returning an error asks the transport to redeliver.
type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber

	Close() error
	GenerateID() string
}

var _ EventBus = (*WatermillEventBus)(nil)
