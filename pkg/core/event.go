package core

import (
	"context"
	"time"
)

// EventTypeName is a string alias for event type identifiers (e.g., "reconcile_now")
type EventTypeName string

const (
	EventReconcileNow  EventTypeName = "reconcile_now"
	EventDeploySuccess EventTypeName = "deploy_success"
	EventDeployFailed  EventTypeName = "deploy_failed"
)

// EventTypeDesc defines the "class" for an event type
type EventTypeDesc struct {
	Name        EventTypeName           // Unique ID, e.g., "deploy_success"
	Description string                  // Human-readable
	PayloadSpec map[string]PayloadField // Expected fields in event.Details
}

// PayloadField describes a field in the event payload
type PayloadField struct {
	Type        string
	Description string
	Required    bool
}

// InternalEvent is the payload sent over the bus. String and textual Details
// are masked by the broker before dispatch.
type InternalEvent struct {
	Type      EventTypeName          `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // "reconciler", "webhook_trigger", ...
	Repo      string                 `json:"repo,omitempty"`
	JobID     string                 `json:"job_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	String    string                 `json:"string,omitempty"`
}

// Listener is a handler func for subscribers
type Listener func(ctx context.Context, event InternalEvent)
