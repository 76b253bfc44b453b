// Package flight tracks focus sessions ("flights"): an optional active flight
// that accumulates turbulence, lands on request or when turbulence reaches the
// limit, and leaves a bounded history behind.
package flight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neoromantics/focus/internal/store"
)

// Persister stores the flight section.
type Persister interface {
	LoadFlightState() (*store.FlightState, error)
	SaveFlightState(s *store.FlightState) error
}

// Options configures a Manager. Zero values use the defaults.
type Options struct {
	MinDuration     time.Duration
	TurbulenceLimit int
	HistoryLimit    int
	// Goal returns the focus goal to snapshot when a flight starts.
	Goal func() string
	Now  func() time.Time
}

// Manager owns the current flight and its history.
type Manager struct {
	mu      sync.Mutex
	current *Flight
	history []Record

	persister       Persister
	minDuration     time.Duration
	turbulenceLimit int
	historyLimit    int
	goal            func() string
	now             func() time.Time
	onNotify        NotifyFunc
}

// NewManager creates an idle Manager.
func NewManager(persister Persister, opts Options) *Manager {
	if opts.MinDuration <= 0 {
		opts.MinDuration = DefaultMinDuration
	}
	if opts.TurbulenceLimit <= 0 {
		opts.TurbulenceLimit = DefaultTurbulenceLimit
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Goal == nil {
		opts.Goal = func() string { return "" }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		persister:       persister,
		minDuration:     opts.MinDuration,
		turbulenceLimit: opts.TurbulenceLimit,
		historyLimit:    opts.HistoryLimit,
		goal:            opts.Goal,
		now:             opts.Now,
	}
}

// SetNotifyFunc sets the callback for flight transitions.
func (m *Manager) SetNotifyFunc(fn NotifyFunc) {
	m.onNotify = fn
}

// SetGoalFunc sets the source of the goal snapshotted by Start.
func (m *Manager) SetGoalFunc(fn func() string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goal = fn
}

// Limit returns the turbulence count that forces a landing.
func (m *Manager) Limit() int {
	return m.turbulenceLimit
}

// Load restores the persisted flight and history.
func (m *Manager) Load(_ context.Context) error {
	if m.persister == nil {
		return nil
	}
	state, err := m.persister.LoadFlightState()
	if err != nil {
		return fmt.Errorf("loading flight state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = fromActiveRecord(state.Current)
	m.history = make([]Record, 0, len(state.History))
	for _, h := range state.History {
		m.history = append(m.history, fromHistoryRecord(h))
	}
	if len(m.history) > m.historyLimit {
		m.history = m.history[:m.historyLimit]
	}
	return nil
}

// IsActive reports whether a flight is in progress.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() bool {
	return m.current != nil && m.current.Status == StatusInflight
}

// Snapshot returns a read-only view of the current flight.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	if m.current == nil {
		return Snapshot{Limit: m.turbulenceLimit}
	}
	f := m.current
	return Snapshot{
		Active:     f.Status == StatusInflight,
		Status:     f.Status,
		Turbulence: f.Turbulence,
		Limit:      m.turbulenceLimit,
		StartedAt:  f.StartedAt.UnixMilli(),
		Goal:       goalText(f.GoalSnapshot),
		DurationMs: m.now().Sub(f.StartedAt).Milliseconds(),
		ID:         f.ID,
	}
}

// History returns completed flights, most recent first.
func (m *Manager) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyLocked()
}

func (m *Manager) historyLocked() []Record {
	return append([]Record{}, m.history...)
}

// Start begins a new flight. When one is already active it returns
// ErrFlightInProgress together with the current state.
func (m *Manager) Start(_ context.Context) (StartResult, error) {
	m.mu.Lock()
	if m.activeLocked() {
		res := StartResult{Flight: m.snapshotLocked(), History: m.historyLocked()}
		m.mu.Unlock()
		return res, ErrFlightInProgress
	}

	now := m.now()
	m.current = &Flight{
		ID:           fmt.Sprintf("flight-%d", now.UnixMilli()),
		StartedAt:    now,
		GoalSnapshot: goalPtr(m.goal()),
		Status:       StatusInflight,
	}
	err := m.persistLocked()
	res := StartResult{Flight: m.snapshotLocked(), History: m.historyLocked()}
	id := m.current.ID
	m.mu.Unlock()

	slog.Info("flight started", "flight_id", id, "goal", res.Flight.Goal)
	m.notify(Notification{Type: "flight.started", FlightID: id, Message: "Flight started"})
	return res, err
}

// RegisterTurbulence counts a distraction against the active flight. It is a
// no-op when idle. Reaching the limit lands the flight with OutcomeFail.
func (m *Manager) RegisterTurbulence(_ context.Context, url string) (TurbulenceResult, error) {
	m.mu.Lock()
	if !m.activeLocked() {
		m.mu.Unlock()
		return TurbulenceResult{}, nil
	}

	f := m.current
	f.Turbulence++
	f.Events = append(f.Events, Event{Type: eventTurbulence, URL: url, At: m.now()})
	count := f.Turbulence
	err := m.persistLocked()
	if count < m.turbulenceLimit {
		m.mu.Unlock()
		slog.Info("turbulence registered", "flight_id", f.ID, "turbulence", count, "url", url)
		m.notify(Notification{Type: "flight.turbulence", FlightID: f.ID,
			Message: fmt.Sprintf("Turbulence %d/%d", count, m.turbulenceLimit)})
		return TurbulenceResult{Applied: true}, err
	}

	landing, endErr := m.endLocked(EndOptions{ForcedOutcome: OutcomeFail, SkipDurationCheck: true})
	m.mu.Unlock()
	if endErr != nil {
		err = endErr
	}

	slog.Warn("forced landing", "flight_id", f.ID, "turbulence", count)
	m.notify(Notification{Type: "flight.forced_landing", FlightID: f.ID,
		Message: fmt.Sprintf("Forced landing after %d turbulence events", count)})
	return TurbulenceResult{Applied: true, ForcedLanding: true, Landing: &landing}, err
}

// RollbackTurbulence forgives the most recent turbulence event.
func (m *Manager) RollbackTurbulence(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	if !m.activeLocked() {
		m.mu.Unlock()
		return Snapshot{}, ErrNoFlight
	}
	f := m.current
	if f.Turbulence <= 0 {
		m.mu.Unlock()
		return Snapshot{}, ErrNoTurbulence
	}

	f.Turbulence = max(0, f.Turbulence-1)
	for i := len(f.Events) - 1; i >= 0; i-- {
		if f.Events[i].Type == eventTurbulence {
			f.Events = append(f.Events[:i], f.Events[i+1:]...)
			break
		}
	}
	err := m.persistLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	slog.Info("turbulence forgiven", "flight_id", f.ID, "turbulence", snap.Turbulence)
	m.notify(Notification{Type: "flight.forgiven", FlightID: f.ID, Message: "Turbulence forgiven"})
	return snap, err
}

// End lands the active flight. A flight shorter than the minimum duration is
// discarded unless an outcome is forced or the check is skipped.
func (m *Manager) End(_ context.Context, opts EndOptions) (EndResult, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return EndResult{}, ErrNoFlight
	}
	id := m.current.ID
	res, err := m.endLocked(opts)
	m.mu.Unlock()

	if res.TooShort {
		slog.Info("flight discarded", "flight_id", id, "duration_ms", res.DurationMs)
		m.notify(Notification{Type: "flight.discarded", FlightID: id, Message: "Flight too short to record"})
		return res, err
	}
	slog.Info("flight landed", "flight_id", id, "outcome", string(res.Record.Outcome))
	m.notify(Notification{Type: "flight.landed", FlightID: id,
		Message: fmt.Sprintf("Landed: %s", res.Record.Outcome)})
	return res, err
}

func (m *Manager) endLocked(opts EndOptions) (EndResult, error) {
	f := m.current
	now := m.now()
	duration := now.Sub(f.StartedAt).Milliseconds()

	if !opts.SkipDurationCheck && opts.ForcedOutcome == "" && duration < m.minDuration.Milliseconds() {
		m.current = nil
		return EndResult{TooShort: true, DurationMs: duration}, m.persistLocked()
	}

	outcome := opts.ForcedOutcome
	if outcome == "" {
		outcome = m.outcomeFor(f.Turbulence)
	}
	record := Record{
		ID:           f.ID,
		GoalSnapshot: f.GoalSnapshot,
		StartedAt:    f.StartedAt.UnixMilli(),
		CompletedAt:  now.UnixMilli(),
		DurationMs:   duration,
		Turbulence:   f.Turbulence,
		Outcome:      outcome,
	}

	m.history = append([]Record{record}, m.history...)
	if len(m.history) > m.historyLimit {
		m.history = m.history[:m.historyLimit]
	}
	m.current = nil
	err := m.persistLocked()
	return EndResult{Record: &record, History: m.historyLocked()}, err
}

func (m *Manager) outcomeFor(turbulence int) Outcome {
	switch {
	case turbulence <= 0:
		return OutcomePerfect
	case turbulence < m.turbulenceLimit:
		return OutcomeDelayed
	default:
		return OutcomeFail
	}
}

// persistLocked writes the whole flight section. The in-memory state stays
// authoritative when the write fails.
func (m *Manager) persistLocked() error {
	if m.persister == nil {
		return nil
	}
	state := &store.FlightState{Current: toActiveRecord(m.current)}
	for _, h := range m.history {
		state.History = append(state.History, toHistoryRecord(h))
	}
	if err := m.persister.SaveFlightState(state); err != nil {
		slog.Error("persisting flight state failed", "error", err)
		return fmt.Errorf("persisting flight state: %w", err)
	}
	return nil
}

func (m *Manager) notify(n Notification) {
	if m.onNotify != nil {
		m.onNotify(n)
	}
}

func toActiveRecord(f *Flight) *store.ActiveFlightRecord {
	if f == nil {
		return nil
	}
	rec := &store.ActiveFlightRecord{
		ID:           f.ID,
		StartedAt:    f.StartedAt,
		GoalSnapshot: goalText(f.GoalSnapshot),
		Turbulence:   f.Turbulence,
		Status:       string(f.Status),
	}
	for _, e := range f.Events {
		rec.Events = append(rec.Events, store.FlightEventRecord{Type: e.Type, URL: e.URL, CreatedAt: e.At})
	}
	return rec
}

func fromActiveRecord(rec *store.ActiveFlightRecord) *Flight {
	if rec == nil {
		return nil
	}
	f := &Flight{
		ID:           rec.ID,
		StartedAt:    rec.StartedAt,
		GoalSnapshot: goalPtr(rec.GoalSnapshot),
		Turbulence:   max(0, rec.Turbulence),
		Status:       Status(rec.Status),
	}
	for _, e := range rec.Events {
		f.Events = append(f.Events, Event{Type: e.Type, URL: e.URL, At: e.CreatedAt})
	}
	return f
}

func toHistoryRecord(r Record) store.FlightHistoryRecord {
	return store.FlightHistoryRecord{
		ID:           r.ID,
		GoalSnapshot: goalText(r.GoalSnapshot),
		StartedAt:    time.UnixMilli(r.StartedAt),
		CompletedAt:  time.UnixMilli(r.CompletedAt),
		DurationMs:   r.DurationMs,
		Turbulence:   r.Turbulence,
		Outcome:      string(r.Outcome),
	}
}

func fromHistoryRecord(h store.FlightHistoryRecord) Record {
	return Record{
		ID:           h.ID,
		GoalSnapshot: goalPtr(h.GoalSnapshot),
		StartedAt:    h.StartedAt.UnixMilli(),
		CompletedAt:  h.CompletedAt.UnixMilli(),
		DurationMs:   h.DurationMs,
		Turbulence:   h.Turbulence,
		Outcome:      Outcome(h.Outcome),
	}
}

// goalPtr maps the stored goal to a snapshot. Goals are trimmed before they
// are set, so an empty string always means no goal.
func goalPtr(goal string) *string {
	if goal == "" {
		return nil
	}
	return &goal
}

func goalText(goal *string) string {
	if goal == nil {
		return ""
	}
	return *goal
}
