package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	method string
	params map[string]any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSender) SendNotificationToAllClients(method string, params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{method: method, params: params})
}

func (r *recordingSender) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func TestMCPNotifier_DebouncesTurbulence(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	n := NewMCPNotifier(s, time.Minute)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	n.Notify(Event{Type: "flight.turbulence", FlightID: "f1", Message: "Turbulence 1/5"})
	n.Notify(Event{Type: "flight.turbulence", FlightID: "f1", Message: "Turbulence 2/5"})
	now = now.Add(2 * time.Minute)
	n.Notify(Event{Type: "flight.turbulence", FlightID: "f1", Message: "Turbulence 3/5"})

	got := s.all()
	require.Len(t, got, 2)
	assert.Equal(t, "notifications/progress", got[0].method)
	assert.Equal(t, "Turbulence 3/5", got[1].params["message"])
}

func TestMCPNotifier_LandingClearsDebounce(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	n := NewMCPNotifier(s, time.Hour)

	n.Notify(Event{Type: "flight.turbulence", FlightID: "f1"})
	n.Notify(Event{Type: "flight.forced_landing", FlightID: "f1", Message: "Forced landing"})
	n.Notify(Event{Type: "flight.turbulence", FlightID: "f1"})

	got := s.all()
	require.Len(t, got, 3)
	assert.Equal(t, "notifications/message", got[1].method)
	assert.Equal(t, "warning", got[1].params["level"])
	data := got[1].params["data"].(map[string]any)
	assert.Equal(t, "f1", data["flight_id"])
}

func TestMCPNotifier_IgnoresUnknownTypes(t *testing.T) {
	t.Parallel()
	s := &recordingSender{}
	NewMCPNotifier(s, 0).Notify(Event{Type: "flight.unknown"})
	assert.Empty(t, s.all())
}

type chanNotifier chan Event

func (c chanNotifier) Notify(e Event) { c <- e }

func TestHub_FansOut(t *testing.T) {
	t.Parallel()
	a, b := make(chanNotifier, 1), make(chanNotifier, 1)
	h := NewHub(a)
	h.Add(b)

	h.Notify(Event{Type: "flight.started", FlightID: "f1"})

	for _, c := range []chanNotifier{a, b} {
		select {
		case e := <-c:
			assert.Equal(t, "f1", e.FlightID)
		case <-time.After(time.Second):
			t.Fatal("notifier not called")
		}
	}
}
