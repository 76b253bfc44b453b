package flight

import (
	"errors"
	"time"
)

// Status of the active flight.
type Status string

const StatusInflight Status = "inflight"

// Outcome grades a completed flight.
type Outcome string

const (
	OutcomePerfect Outcome = "perfect"
	OutcomeDelayed Outcome = "delayed"
	OutcomeFail    Outcome = "fail"
)

const eventTurbulence = "turbulence"

// Misuse of the state machine. The error text is the name reported to callers.
var (
	ErrFlightInProgress = errors.New("flight-in-progress")
	ErrNoFlight         = errors.New("no-flight")
	ErrNoTurbulence     = errors.New("no-turbulence")
)

const (
	DefaultMinDuration     = 3 * time.Minute
	DefaultTurbulenceLimit = 5
	DefaultHistoryLimit    = 20
)

// Event is one entry in a flight's log.
type Event struct {
	Type string    `json:"type"`
	URL  string    `json:"url,omitempty"`
	At   time.Time `json:"-"`
}

// Flight is the in-progress focus session. GoalSnapshot is nil when no goal
// was set at takeoff.
type Flight struct {
	ID           string
	StartedAt    time.Time
	GoalSnapshot *string
	Turbulence   int
	Status       Status
	Events       []Event
}

// Record summarizes a finished flight. Times are Unix milliseconds.
type Record struct {
	ID           string  `json:"id"`
	GoalSnapshot *string `json:"goalSnapshot"`
	StartedAt    int64   `json:"startedAt"`
	CompletedAt  int64   `json:"completedAt"`
	DurationMs   int64   `json:"durationMs"`
	Turbulence   int     `json:"turbulence"`
	Outcome      Outcome `json:"outcome"`
}

// Snapshot is the read-only view of the current flight.
type Snapshot struct {
	Active     bool   `json:"active"`
	Status     Status `json:"status,omitempty"`
	Turbulence int    `json:"turbulence"`
	Limit      int    `json:"limit"`
	StartedAt  int64  `json:"startedAt,omitempty"`
	Goal       string `json:"goal,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	ID         string `json:"id,omitempty"`
}

// EndOptions controls how End grades the flight.
type EndOptions struct {
	ForcedOutcome     Outcome
	SkipDurationCheck bool
}

// StartResult is returned by Start, including when a flight is already active.
type StartResult struct {
	Flight  Snapshot `json:"flight"`
	History []Record `json:"history"`
}

// EndResult describes a landing. When TooShort is set the flight was
// discarded and Record is nil.
type EndResult struct {
	Record     *Record  `json:"record,omitempty"`
	History    []Record `json:"flightHistory,omitempty"`
	TooShort   bool     `json:"tooShort,omitempty"`
	DurationMs int64    `json:"durationMs"`
}

// TurbulenceResult reports whether turbulence was counted and whether it
// forced a landing.
type TurbulenceResult struct {
	Applied       bool       `json:"applied"`
	ForcedLanding bool       `json:"forcedLanding,omitempty"`
	Landing       *EndResult `json:"result,omitempty"`
}

// Notification is emitted on every flight transition.
type Notification struct {
	Type     string // "flight.started", "flight.turbulence", "flight.forgiven", "flight.landed", "flight.forced_landing", "flight.discarded"
	FlightID string
	Message  string
}

// NotifyFunc receives flight notifications.
type NotifyFunc func(Notification)
