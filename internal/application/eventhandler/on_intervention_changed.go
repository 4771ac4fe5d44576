// Package eventhandler contains handlers for domain events.
package eventhandler

import (
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON INTERVENTION CHANGED HANDLER
// Keeps the recent intervention activity shown in the dashboard feed:
// created interventions, applied transitions and rejected actions.
// ═══════════════════════════════════════════════════════════════════════════

// FeedItem is one line of the activity feed.
type FeedItem struct {
	Type           shared.EventType `json:"type"`
	InterventionID string           `json:"intervention_id"`
	StudentID      string           `json:"student_id"`
	Actor          string           `json:"actor,omitempty"`
	Message        string           `json:"message"`
	At             time.Time        `json:"at"`
}

// InterventionFeedConfig contains the feed configuration.
type InterventionFeedConfig struct {
	// Capacity is how many items the feed keeps.
	Capacity int
}

// DefaultInterventionFeedConfig returns the default configuration.
func DefaultInterventionFeedConfig() InterventionFeedConfig {
	return InterventionFeedConfig{Capacity: 200}
}

// OnInterventionChangedHandler turns intervention events into feed items.
type OnInterventionChangedHandler struct {
	mu    sync.RWMutex
	items []FeedItem
	next  int
	full  bool

	logger *logger.Logger
}

// NewOnInterventionChangedHandler creates the feed handler.
func NewOnInterventionChangedHandler(log *logger.Logger, config InterventionFeedConfig) *OnInterventionChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultInterventionFeedConfig().Capacity
	}
	return &OnInterventionChangedHandler{
		items:  make([]FeedItem, config.Capacity),
		logger: log.With(logger.Component("on_intervention_changed")),
	}
}

// Handle implements shared.EventHandler. Events arriving from another
// instance carry only their payload, so nothing here relies on concrete types.
func (h *OnInterventionChangedHandler) Handle(event shared.Event) error {
	p := event.Payload()
	item := FeedItem{
		Type:           event.EventType(),
		InterventionID: event.AggregateID(),
		StudentID:      payloadString(p, "student_id"),
		At:             event.OccurredAt(),
	}

	switch event.EventType() {
	case shared.EventInterventionCreated:
		item.Actor = payloadString(p, "assignee")
		item.Message = fmt.Sprintf("%s assigned to %s", payloadString(p, "intervention_type"), item.Actor)
	case shared.EventInterventionTransitioned:
		item.Actor = payloadString(p, "actor")
		item.Message = fmt.Sprintf("%s: %s → %s", payloadString(p, "action"), payloadString(p, "from"), payloadString(p, "to"))
	case shared.EventInterventionTransitionFailed:
		item.Actor = payloadString(p, "actor")
		item.Message = fmt.Sprintf("%s rejected in %s: %s", payloadString(p, "action"), payloadString(p, "from"), payloadString(p, "reason"))
	default:
		h.logger.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.mu.Lock()
	h.items[h.next] = item
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()

	h.logger.Debug("feed item added",
		logger.InterventionID(item.InterventionID),
		logger.StudentID(item.StudentID),
		logger.String("event_type", string(item.Type)),
	)
	return nil
}

// Recent returns up to limit items, newest first. limit <= 0 returns all.
func (h *OnInterventionChangedHandler) Recent(limit int) []FeedItem {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = len(h.items)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]FeedItem, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

// ForStudent returns the retained items of one student, newest first.
func (h *OnInterventionChangedHandler) ForStudent(studentID string) []FeedItem {
	var out []FeedItem
	for _, item := range h.Recent(0) {
		if item.StudentID == studentID {
			out = append(out, item)
		}
	}
	return out
}

func payloadString(p map[string]interface{}, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
