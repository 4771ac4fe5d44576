package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types emitted by the risk dashboard core.
const (
	// Intervention lifecycle events
	EventInterventionTransitioned     EventType = "intervention.transitioned"
	EventInterventionTransitionFailed EventType = "intervention.transition_failed"
	EventInterventionCreated          EventType = "intervention.created"

	// View events
	EventSelectionChanged EventType = "view.selection_changed"

	// Data source events
	EventDataUnavailable EventType = "data.unavailable"
	EventInputClamped    EventType = "risk.input_clamped"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler handles a published event.
type EventHandler func(event Event) error

// EventPublisher is the notification collaborator. How events are surfaced
// (toast, log, pub/sub) is up to the implementation.
type EventPublisher interface {
	Publish(event Event) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Intervention Events
// ═══════════════════════════════════════════════════════════════════════════

// TransitionEvent is emitted after a lifecycle transition was attempted.
// Failed attempts use EventInterventionTransitionFailed and carry Reason.
type TransitionEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Action    string `json:"action"`
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e TransitionEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"student_id": e.StudentID,
		"action":     e.Action,
		"from":       e.From,
		"to":         e.To,
		"actor":      e.Actor,
	}
	if e.Reason != "" {
		p["reason"] = e.Reason
	}
	return p
}

// InterventionCreatedEvent is emitted when staff assign a new support action.
type InterventionCreatedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Type      string `json:"intervention_type"`
	Assignee  string `json:"assignee"`
}

// Payload implements Event interface.
func (e InterventionCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":        e.StudentID,
		"intervention_type": e.Type,
		"assignee":          e.Assignee,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// View & Source Events
// ═══════════════════════════════════════════════════════════════════════════

// SelectionChangedEvent is emitted when the focused student changes.
// Fallback is true when the requested student was gone and another was chosen.
type SelectionChangedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Requested string `json:"requested"`
	Selected  string `json:"selected"`
	Fallback  bool   `json:"fallback"`
}

// Payload implements Event interface.
func (e SelectionChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"requested":  e.Requested,
		"selected":   e.Selected,
		"fallback":   e.Fallback,
	}
}

// DataUnavailableEvent is emitted when a snapshot load failed.
type DataUnavailableEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// Payload implements Event interface.
func (e DataUnavailableEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"error": e.Error}
}

// InputClampedEvent is emitted when a student record arrived out of range.
type InputClampedEvent struct {
	BaseEvent
	Field    string `json:"field"`
	Received int    `json:"received"`
	Clamped  int    `json:"clamped"`
}

// Payload implements Event interface.
func (e InputClampedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"field":    e.Field,
		"received": e.Received,
		"clamped":  e.Clamped,
	}
}
