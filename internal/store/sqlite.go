package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	timeFormat = time.RFC3339Nano
	memoryPath = ":memory:"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := memoryPath
	if path != memoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	// Ensure schema_version table exists
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Settings ---

func (s *SQLiteStore) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) PutSettings(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning settings write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for key, value := range values {
		if _, err := tx.Exec(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now); err != nil {
			return fmt.Errorf("writing setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

// --- Decision cache ---

func (s *SQLiteStore) LoadCache() ([]CacheRecord, error) {
	rows, err := s.db.Query("SELECT url, decision, written_at FROM url_cache")
	if err != nil {
		return nil, fmt.Errorf("loading cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []CacheRecord
	for rows.Next() {
		var e CacheRecord
		var writtenAt string
		if err := rows.Scan(&e.URL, &e.Decision, &writtenAt); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		e.WrittenAt = parseTime(writtenAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ReplaceCache(entries []CacheRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cache write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM url_cache"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.Exec("INSERT INTO url_cache (url, decision, written_at) VALUES (?, ?, ?)",
			e.URL, e.Decision, formatTime(e.WrittenAt)); err != nil {
			return fmt.Errorf("inserting cache entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache: %w", err)
	}
	return nil
}

// --- Stats ---

func (s *SQLiteStore) LoadStats() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT name, value FROM stats")
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning stat: %w", err)
		}
		values[name] = value
	}
	return values, rows.Err()
}

func (s *SQLiteStore) SaveStats(values map[string]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stats write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for name, value := range values {
		if _, err := tx.Exec(`INSERT INTO stats (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value); err != nil {
			return fmt.Errorf("writing stat %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing stats: %w", err)
	}
	return nil
}

// --- Flights ---

func (s *SQLiteStore) LoadFlightState() (*FlightState, error) {
	state := &FlightState{}

	var cur ActiveFlightRecord
	var startedAt string
	err := s.db.QueryRow("SELECT flight_id, started_at, goal, turbulence, status FROM flight_state WHERE slot = 1").
		Scan(&cur.ID, &startedAt, &cur.GoalSnapshot, &cur.Turbulence, &cur.Status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("loading current flight: %w", err)
	default:
		cur.StartedAt = parseTime(startedAt)
		events, err := s.flightEvents(cur.ID)
		if err != nil {
			return nil, err
		}
		cur.Events = events
		state.Current = &cur
	}

	rows, err := s.db.Query(`SELECT flight_id, goal, started_at, completed_at, duration_ms, turbulence, outcome
		FROM flight_history ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("loading flight history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var h FlightHistoryRecord
		var started, completed string
		if err := rows.Scan(&h.ID, &h.GoalSnapshot, &started, &completed, &h.DurationMs, &h.Turbulence, &h.Outcome); err != nil {
			return nil, fmt.Errorf("scanning flight history: %w", err)
		}
		h.StartedAt = parseTime(started)
		h.CompletedAt = parseTime(completed)
		state.History = append(state.History, h)
	}
	return state, rows.Err()
}

func (s *SQLiteStore) flightEvents(flightID string) ([]FlightEventRecord, error) {
	rows, err := s.db.Query("SELECT event_type, url, created_at FROM flight_events WHERE flight_id = ? ORDER BY seq ASC", flightID)
	if err != nil {
		return nil, fmt.Errorf("loading flight events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []FlightEventRecord
	for rows.Next() {
		var e FlightEventRecord
		var createdAt string
		if err := rows.Scan(&e.Type, &e.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning flight event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) SaveFlightState(state *FlightState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning flight write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{"DELETE FROM flight_state", "DELETE FROM flight_events", "DELETE FROM flight_history"} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clearing flight tables: %w", err)
		}
	}

	if cur := state.Current; cur != nil {
		if _, err := tx.Exec(`INSERT INTO flight_state (slot, flight_id, started_at, goal, turbulence, status)
			VALUES (1, ?, ?, ?, ?, ?)`,
			cur.ID, formatTime(cur.StartedAt), cur.GoalSnapshot, cur.Turbulence, cur.Status); err != nil {
			return fmt.Errorf("inserting current flight: %w", err)
		}
		for _, e := range cur.Events {
			if _, err := tx.Exec("INSERT INTO flight_events (flight_id, event_type, url, created_at) VALUES (?, ?, ?, ?)",
				cur.ID, e.Type, e.URL, formatTime(e.CreatedAt)); err != nil {
				return fmt.Errorf("inserting flight event: %w", err)
			}
		}
	}

	for i, h := range state.History {
		if _, err := tx.Exec(`INSERT INTO flight_history (position, flight_id, goal, started_at, completed_at, duration_ms, turbulence, outcome)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, h.ID, h.GoalSnapshot, formatTime(h.StartedAt), formatTime(h.CompletedAt),
			h.DurationMs, h.Turbulence, h.Outcome); err != nil {
			return fmt.Errorf("inserting flight history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing flight state: %w", err)
	}
	return nil
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
