package services

import (
	"context"
	"time"
)

// Notifier delivers stage-transition notifications.
type Notifier interface {
	// NotifyTransition sends one transition event. Delivery failures are
	// reported but never undo the transition.
	NotifyTransition(ctx context.Context, event TransitionEvent) error
}

// TransitionEvent describes an applied stage transition.
type TransitionEvent struct {
	EventID         string    `json:"event_id"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	InstanceID      int64     `json:"instance_id"`
	WorkflowID      int64     `json:"workflow_id"`
	WorkflowName    string    `json:"workflow_name"`
	ProjectID       int64     `json:"project_id"`
	ProjectName     string    `json:"project_name"`
	FromStage       string    `json:"from_stage"`
	ToStage         string    `json:"to_stage"`
	Notes           string    `json:"notes,omitempty"`
	TriggeredBy     *int64    `json:"triggered_by"`
	TriggeredByName string    `json:"triggered_by_name,omitempty"`
	Recipients      []string  `json:"recipients,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) NotifyTransition(context.Context, TransitionEvent) error { return nil }
