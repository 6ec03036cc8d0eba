// Package events publishes engine lifecycle events for downstream consumers
// (dashboards, ticketing bridges, long-term audit). Publishing is fail-open:
// the engines log and count publish failures but never fail an evaluation
// because the feed is down.
package events

import (
	"context"
	"time"
)

// Kind identifies a lifecycle event type.
type Kind string

const (
	KindAlertCreated      Kind = "alert.created"
	KindAlertAutoResolved Kind = "alert.auto_resolved"
	KindAlertsPurged      Kind = "alerts.purged"
	KindWorkflowStarted   Kind = "workflow.started"
	KindWorkflowCompleted Kind = "workflow.completed"
	KindWorkflowFailed    Kind = "workflow.failed"
)

// Event is one engine lifecycle record.
type Event struct {
	Kind       Kind              `json:"kind"`
	EntityType string            `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Publisher emits engine lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards all events. Used when no broker is configured and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
