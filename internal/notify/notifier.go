package notify

import "log/slog"

// Event represents a flight lifecycle notification.
type Event struct {
	Type     string // "flight.started", "flight.turbulence", "flight.forgiven", "flight.landed", "flight.forced_landing", "flight.discarded"
	FlightID string
	Message  string
}

// Notifier sends flight lifecycle notifications.
type Notifier interface {
	Notify(event Event)
}

// Hub dispatches events to multiple notifiers.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Add registers another notifier. It must be called before the hub is used.
func (h *Hub) Add(n Notifier) {
	h.notifiers = append(h.notifiers, n)
}

// Notify sends an event to all registered notifiers.
func (h *Hub) Notify(event Event) {
	for _, n := range h.notifiers {
		go n.Notify(event)
	}
}

// LogNotifier writes every event to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(event Event) {
	slog.Info("flight event",
		"type", event.Type,
		"flight_id", event.FlightID,
		"message", event.Message)
}
