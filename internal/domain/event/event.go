// Package event defines the change notifications emitted after successful writes.
package event

import (
	"context"
	"time"
)

// Change types published by the record services.
const (
	TypeCreated              = "created"
	TypeUpdated              = "updated"
	TypeDeleted              = "deleted"
	TypeRelationConnected    = "relation.connected"
	TypeRelationDisconnected = "relation.disconnected"
	TypeRelationReplaced     = "relation.replaced"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	// EventType returns the event type, e.g. "claim.updated"
	EventType() string

	// AggregateID returns the id of the record the event is about
	AggregateID() string

	// AggregateType returns the entity name
	AggregateType() string

	// OccurredAt returns the time when the event occurred
	OccurredAt() time.Time

	// Metadata returns the event metadata
	Metadata() Metadata
}

// Bus is an interface for publishing events
type Bus interface {
	// Publish publishes an event
	Publish(ctx context.Context, event DomainEvent) error
}
