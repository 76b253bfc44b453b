package store

// migrations are applied in order; index i creates schema version i+1.
var migrations = []string{
	`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE url_cache (
		url TEXT PRIMARY KEY,
		decision TEXT NOT NULL,
		written_at TEXT NOT NULL
	);

	CREATE TABLE stats (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);`,

	`CREATE TABLE flight_state (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		flight_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		goal TEXT NOT NULL DEFAULT '',
		turbulence INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	);

	CREATE TABLE flight_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		flight_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE flight_history (
		position INTEGER PRIMARY KEY,
		flight_id TEXT NOT NULL,
		goal TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		turbulence INTEGER NOT NULL,
		outcome TEXT NOT NULL
	);`,
}
