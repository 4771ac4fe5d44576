package eventhandler

import (
	"sync"
	"time"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SOURCE DEGRADED HANDLER
// Tracks failed snapshot loads and clamped input records so the health
// endpoint can report whether the population source is trustworthy.
// ═══════════════════════════════════════════════════════════════════════════

// SourceHealth is the current view of the population source.
type SourceHealth struct {
	// Healthy is false while a load failure is more recent than FailureWindow.
	Healthy       bool           `json:"healthy"`
	Failures      int            `json:"failures"`
	LastFailure   string         `json:"last_failure,omitempty"`
	LastFailureAt *time.Time     `json:"last_failure_at,omitempty"`
	Clamps        map[string]int `json:"clamps"`
}

// SourceMonitorConfig contains the monitor configuration.
type SourceMonitorConfig struct {
	// FailureWindow is how long a load failure marks the source unhealthy.
	FailureWindow time.Duration
}

// DefaultSourceMonitorConfig returns the default configuration.
func DefaultSourceMonitorConfig() SourceMonitorConfig {
	return SourceMonitorConfig{FailureWindow: 5 * time.Minute}
}

// OnSourceDegradedHandler counts data.unavailable and risk.input_clamped events.
type OnSourceDegradedHandler struct {
	mu            sync.RWMutex
	failures      int
	lastFailure   string
	lastFailureAt time.Time
	clamps        map[string]int

	config SourceMonitorConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewOnSourceDegradedHandler creates the monitor.
func NewOnSourceDegradedHandler(log *logger.Logger, config SourceMonitorConfig) *OnSourceDegradedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = DefaultSourceMonitorConfig().FailureWindow
	}
	return &OnSourceDegradedHandler{
		clamps: make(map[string]int),
		config: config,
		logger: log.With(logger.Component("on_source_degraded")),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (h *OnSourceDegradedHandler) WithClock(now func() time.Time) *OnSourceDegradedHandler {
	h.now = now
	return h
}

// Handle implements shared.EventHandler.
func (h *OnSourceDegradedHandler) Handle(event shared.Event) error {
	p := event.Payload()

	h.mu.Lock()
	defer h.mu.Unlock()

	switch event.EventType() {
	case shared.EventDataUnavailable:
		h.failures++
		h.lastFailure = payloadString(p, "error")
		h.lastFailureAt = event.OccurredAt()
		h.logger.Warn("population source unavailable",
			logger.SessionID(event.AggregateID()),
			logger.String("error", h.lastFailure),
		)
	case shared.EventInputClamped:
		field := payloadString(p, "field")
		h.clamps[field]++
	}
	return nil
}

// Health returns a copy of the current state.
func (h *OnSourceDegradedHandler) Health() SourceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health := SourceHealth{
		Healthy:  true,
		Failures: h.failures,
		Clamps:   make(map[string]int, len(h.clamps)),
	}
	for k, v := range h.clamps {
		health.Clamps[k] = v
	}
	if h.failures > 0 {
		at := h.lastFailureAt
		health.LastFailure = h.lastFailure
		health.LastFailureAt = &at
		health.Healthy = h.now().Sub(at) > h.config.FailureWindow
	}
	return health
}
