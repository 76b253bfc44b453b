package notify

import (
	"log/slog"
	"sync"
	"time"
)

// MCPSender abstracts the mcp-go server notification methods.
// Defined consumer-side per Go convention.
type MCPSender interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes flight updates to connected MCP clients.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time // flightID → last turbulence notification time
}

// NewMCPNotifier creates an MCPNotifier with the given debounce interval
// for turbulence events. Landings are always sent immediately.
func NewMCPNotifier(sender MCPSender, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event Event) {
	switch event.Type {
	case "flight.turbulence":
		n.sendProgress(event)
	case "flight.started", "flight.forgiven":
		n.sendMessage(event, "info")
	case "flight.landed", "flight.discarded":
		n.clearDebounce(event.FlightID)
		n.sendMessage(event, "info")
	case "flight.forced_landing":
		n.clearDebounce(event.FlightID)
		n.sendMessage(event, "warning")
	default:
		slog.Debug("mcp notifier: unknown event type", "type", event.Type)
	}
}

// sendProgress sends a notifications/progress with debounce.
func (n *MCPNotifier) sendProgress(event Event) {
	n.mu.Lock()
	now := n.now()
	last, ok := n.lastSent[event.FlightID]
	if ok && now.Sub(last) < n.debounce {
		n.mu.Unlock()
		return
	}
	n.lastSent[event.FlightID] = now
	n.mu.Unlock()

	n.sender.SendNotificationToAllClients("notifications/progress", map[string]any{
		"progressToken": event.FlightID,
		"progress":      -1, // indeterminate
		"total":         1,
		"message":       event.Message,
	})
}

// sendMessage sends a notifications/message for state changes.
func (n *MCPNotifier) sendMessage(event Event, level string) {
	n.sender.SendNotificationToAllClients("notifications/message", map[string]any{
		"level":  level,
		"logger": "focus",
		"data": map[string]any{
			"type":      event.Type,
			"flight_id": event.FlightID,
			"message":   event.Message,
		},
	})
}

func (n *MCPNotifier) clearDebounce(flightID string) {
	n.mu.Lock()
	delete(n.lastSent, flightID)
	n.mu.Unlock()
}
