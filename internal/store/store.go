package store

import (
	"time"
)

// Store is the persistence interface for focus.
// Each logical section is read and written as a whole.
type Store interface {
	// Settings
	GetSetting(key string) (string, bool, error)
	PutSettings(values map[string]string) error

	// Decision cache
	LoadCache() ([]CacheRecord, error)
	ReplaceCache(entries []CacheRecord) error

	// Stats
	LoadStats() (map[string]int64, error)
	SaveStats(values map[string]int64) error

	// Flights
	LoadFlightState() (*FlightState, error)
	SaveFlightState(s *FlightState) error

	Close() error
}

// CacheRecord is a persisted URL decision. Decision holds the JSON encoding
// produced by the cache package.
type CacheRecord struct {
	URL       string
	Decision  string
	WrittenAt time.Time
}

// FlightState is the persisted flight section: the active flight (nil when
// idle) and the bounded history, most recent first.
type FlightState struct {
	Current *ActiveFlightRecord
	History []FlightHistoryRecord
}

// ActiveFlightRecord represents the in-progress focus session.
type ActiveFlightRecord struct {
	ID           string
	StartedAt    time.Time
	GoalSnapshot string
	Turbulence   int
	Status       string
	Events       []FlightEventRecord
}

// FlightEventRecord is one entry of a flight's event log.
type FlightEventRecord struct {
	Type      string
	URL       string
	CreatedAt time.Time
}

// FlightHistoryRecord is a completed flight summary.
type FlightHistoryRecord struct {
	ID           string
	GoalSnapshot string
	StartedAt    time.Time
	CompletedAt  time.Time
	DurationMs   int64
	Turbulence   int
	Outcome      string
}
