package eventhandler

import "github.com/alem-hub/wellness-hub/internal/domain/shared"

// Registrar is the dispatcher surface the handlers are registered on.
type Registrar interface {
	Register(eventType shared.EventType, name string, handler shared.EventHandler) error
}

// Register wires the feed and the source monitor to their events.
func Register(r Registrar, feed *OnInterventionChangedHandler, monitor *OnSourceDegradedHandler) error {
	routes := []struct {
		eventType shared.EventType
		name      string
		handler   shared.EventHandler
	}{
		{shared.EventInterventionCreated, "feed", feed.Handle},
		{shared.EventInterventionTransitioned, "feed", feed.Handle},
		{shared.EventInterventionTransitionFailed, "feed", feed.Handle},
		{shared.EventDataUnavailable, "source_monitor", monitor.Handle},
		{shared.EventInputClamped, "source_monitor", monitor.Handle},
	}
	for _, route := range routes {
		if err := r.Register(route.eventType, route.name, route.handler); err != nil {
			return err
		}
	}
	return nil
}
