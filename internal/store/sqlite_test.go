package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_FileDatabase_CreatedWithRestrictivePermissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "focus.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSQLiteStore_Reopen_DoesNotReapplyMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "focus.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.PutSettings(map[string]string{"goal": "ship it"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	v, ok, err := s.GetSetting("goal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ship it", v)
}

func TestSQLiteStore_Settings_MissingKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, ok, err := s.GetSetting("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestSQLiteStore_Settings_Upsert(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.PutSettings(map[string]string{"goal": "a", "enabled": "true"}))
	require.NoError(t, s.PutSettings(map[string]string{"goal": "b"}))

	goal, _, err := s.GetSetting("goal")
	require.NoError(t, err)
	assert.Equal(t, "b", goal)

	enabled, _, err := s.GetSetting("enabled")
	require.NoError(t, err)
	assert.Equal(t, "true", enabled)
}

func TestSQLiteStore_ReplaceCache_OverwritesWholeSection(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.ReplaceCache([]CacheRecord{
		{URL: "https://a.com", Decision: `{"shouldWarn":true}`, WrittenAt: now},
		{URL: "https://b.com", Decision: `{"shouldWarn":false}`, WrittenAt: now.Add(time.Millisecond)},
	}))
	require.NoError(t, s.ReplaceCache([]CacheRecord{
		{URL: "https://c.com", Decision: `{}`, WrittenAt: now},
	}))

	entries, err := s.LoadCache()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://c.com", entries[0].URL)
	assert.True(t, now.Equal(entries[0].WrittenAt), "millisecond precision survives the round trip")
}

func TestSQLiteStore_Stats_SaveAndLoad(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SaveStats(map[string]int64{"pagesAnalyzed": 3, "warningsShown": 1}))
	require.NoError(t, s.SaveStats(map[string]int64{"pagesAnalyzed": 4}))

	stats, err := s.LoadStats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats["pagesAnalyzed"])
	assert.Equal(t, int64(1), stats["warningsShown"])
}

func TestSQLiteStore_FlightState_EmptyByDefault(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	state, err := s.LoadFlightState()
	require.NoError(t, err)
	assert.Nil(t, state.Current)
	assert.Empty(t, state.History)
}

func TestSQLiteStore_FlightState_RoundTripPreservesOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	start := time.Now().UTC().Truncate(time.Millisecond)
	state := &FlightState{
		Current: &ActiveFlightRecord{
			ID:           "flight-3",
			StartedAt:    start,
			GoalSnapshot: "Learning Go",
			Turbulence:   2,
			Status:       "inflight",
			Events: []FlightEventRecord{
				{Type: "turbulence", URL: "https://a.com", CreatedAt: start.Add(time.Minute)},
				{Type: "turbulence", URL: "https://b.com", CreatedAt: start.Add(2 * time.Minute)},
			},
		},
		History: []FlightHistoryRecord{
			{ID: "flight-2", Outcome: "delayed", Turbulence: 1, DurationMs: 200000, StartedAt: start.Add(-time.Hour), CompletedAt: start.Add(-50 * time.Minute)},
			{ID: "flight-1", Outcome: "perfect", DurationMs: 300000, StartedAt: start.Add(-2 * time.Hour), CompletedAt: start.Add(-time.Hour)},
		},
	}
	require.NoError(t, s.SaveFlightState(state))

	got, err := s.LoadFlightState()
	require.NoError(t, err)
	require.NotNil(t, got.Current)
	assert.Equal(t, "flight-3", got.Current.ID)
	assert.Equal(t, "Learning Go", got.Current.GoalSnapshot)
	assert.Equal(t, 2, got.Current.Turbulence)
	assert.True(t, start.Equal(got.Current.StartedAt))
	require.Len(t, got.Current.Events, 2)
	assert.Equal(t, "https://b.com", got.Current.Events[1].URL)

	require.Len(t, got.History, 2)
	assert.Equal(t, "flight-2", got.History[0].ID, "most recent first")
	assert.Equal(t, "perfect", got.History[1].Outcome)
}

func TestSQLiteStore_FlightState_ClearingCurrentRemovesEvents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.SaveFlightState(&FlightState{
		Current: &ActiveFlightRecord{ID: "f", StartedAt: time.Now(), Status: "inflight",
			Events: []FlightEventRecord{{Type: "turbulence", CreatedAt: time.Now()}}},
	}))
	require.NoError(t, s.SaveFlightState(&FlightState{}))

	got, err := s.LoadFlightState()
	require.NoError(t, err)
	assert.Nil(t, got.Current)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM flight_events").Scan(&n))
	assert.Zero(t, n)
}
