package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoromantics/focus/internal/cache"
	"github.com/neoromantics/focus/internal/classifier"
	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/flight"
	"github.com/neoromantics/focus/internal/pipeline"
	"github.com/neoromantics/focus/internal/stats"
	"github.com/neoromantics/focus/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubClassifier struct {
	mu      sync.Mutex
	verdict classifier.Verdict
	calls   int
}

func (s *stubClassifier) Classify(context.Context, string, string, string, string) (classifier.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.verdict, nil
}

func (s *stubClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	e          *Engine
	store      *store.SQLiteStore
	clock      *clock
	classifier *stubClassifier
	opts       Options
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fx := &fixture{
		store:      s,
		clock:      &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		classifier: &stubClassifier{},
	}
	opts.Now = fx.clock.Now
	fx.opts = opts
	fx.e = fx.build(t)
	require.NoError(t, fx.e.Load(context.Background()))
	return fx
}

// build wires a fresh engine over the fixture's store, as a restart would.
func (fx *fixture) build(t *testing.T) *Engine {
	t.Helper()
	c := cache.New(fx.store, cache.Options{Now: fx.clock.Now})
	counters := stats.New(fx.store, nil)
	flights := flight.NewManager(fx.store, flight.Options{Now: fx.clock.Now})
	p := pipeline.New(pipeline.Deps{
		Cache:      c,
		Classifier: fx.classifier,
		Counter:    counters,
		Flights:    flights,
		Factory:    decision.Factory{Now: fx.clock.Now},
	})
	return New(Deps{Store: fx.store, Cache: c, Stats: counters, Flights: flights, Pipeline: p}, fx.opts)
}

func TestLoad_SeedsFreshInstall(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{
		DefaultBlockList: []string{"Netflix.com", "https://youtube.com/"},
		InitialEnabled:   true,
	})

	s := fx.e.Snapshot()
	assert.True(t, s.Enabled)
	assert.Equal(t, []string{"netflix.com", "youtube.com"}, s.BlockList)
	assert.Empty(t, s.AllowList)
	assert.Empty(t, s.Goal)

	installed, ok, err := fx.store.GetSetting(keyInstallTime)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-05-04T09:00:00Z", installed)

	for _, v := range fx.e.Stats() {
		assert.Zero(t, v)
	}
}

func TestLoad_DoesNotReseedExistingInstall(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{DefaultBlockList: []string{"netflix.com"}, InitialEnabled: true})
	ctx := context.Background()

	_, err := fx.e.UpdateBlockList(ctx, []string{"reddit.com"})
	require.NoError(t, err)
	require.NoError(t, fx.e.SetEnabled(ctx, false))

	restarted := fx.build(t)
	require.NoError(t, restarted.Load(ctx))

	s := restarted.Snapshot()
	assert.Equal(t, []string{"reddit.com"}, s.BlockList)
	assert.False(t, s.Enabled)
}

func TestUpdateGoal_TrimsPersistsAndClearsCache(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()
	require.NoError(t, fx.e.UpdateAPIKey(ctx, "key"))
	require.NoError(t, fx.e.UpdateGoal(ctx, "  Learning Python  "))

	fx.classifier.verdict = classifier.Verdict{Reason: "tutorial"}
	d := fx.e.CheckURL(ctx, "https://example.com/py", "<title>Python</title>")
	require.Equal(t, decision.SourceAI, d.Source)
	assert.Equal(t, "Learning Python", d.CurrentTask)
	assert.Equal(t, 1, fx.e.Config().CacheSize)

	require.NoError(t, fx.e.UpdateGoal(ctx, "Learning Python"))
	assert.Zero(t, fx.e.Config().CacheSize)

	goal, _, err := fx.store.GetSetting(keyGoal)
	require.NoError(t, err)
	assert.Equal(t, "Learning Python", goal)

	d = fx.e.CheckURL(ctx, "https://example.com/py", "<title>Python</title>")
	assert.Equal(t, decision.SourceAI, d.Source)
	assert.Equal(t, 2, fx.classifier.Calls())
}

func TestListUpdates_ClearCacheAndSanitize(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()

	fx.e.cache.Set("https://a.example", decision.Decision{Source: decision.SourceAI})
	block, err := fx.e.UpdateBlockList(ctx, []string{" Reddit.com ", "", "reddit.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"reddit.com"}, block)
	assert.Zero(t, fx.e.Config().CacheSize)

	fx.e.cache.Set("https://a.example", decision.Decision{Source: decision.SourceAI})
	allow, err := fx.e.UpdateAllowList(ctx, []string{"http://Python.org/docs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"python.org"}, allow)
	assert.Zero(t, fx.e.Config().CacheSize)

	allow, err = fx.e.AddHostToAllowList(ctx, "Go.dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"python.org", "go.dev"}, allow)

	sigs, err := fx.e.UpdateAllowedURLs(ctx, []string{"https://www.google.com/search?q=Cats", "x.com|/home"})
	require.NoError(t, err)
	assert.Equal(t, []string{"www.google.com|/search|q|cats", "x.com|/home"}, sigs)

	_, err = fx.e.AddHostToAllowList(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestSetEnabled_KeepsCache(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()
	fx.e.cache.Set("https://a.example", decision.Decision{Source: decision.SourceAI})

	require.NoError(t, fx.e.SetEnabled(ctx, false))

	assert.Equal(t, 1, fx.e.Config().CacheSize)
	d := fx.e.CheckURL(ctx, "https://a.example", "")
	assert.Equal(t, decision.SourceDisabled, d.Source)
}

func TestUpdateAPIKey_ConfigRedactsKey(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true, Provider: "gemini"})

	require.NoError(t, fx.e.UpdateAPIKey(context.Background(), "secret-key"))

	cfg := fx.e.Config()
	assert.True(t, cfg.HasAPIKey)
	assert.Equal(t, 10, cfg.APIKeyLength)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.NotNil(t, cfg.AllowList)
}

func TestDefaultAPIKeyUsedWhenNoneStored(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true, DefaultAPIKey: "from-env"})

	assert.Equal(t, "from-env", fx.e.Snapshot().APIKey)
}

func TestUpdateAPIKey_EmptyClearsDefaultKey(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true, DefaultAPIKey: "from-env"})
	ctx := context.Background()

	require.NoError(t, fx.e.UpdateAPIKey(ctx, ""))
	assert.Empty(t, fx.e.Snapshot().APIKey)
	assert.False(t, fx.e.Config().HasAPIKey)

	restarted := fx.build(t)
	require.NoError(t, restarted.Load(ctx))
	assert.Empty(t, restarted.Snapshot().APIKey, "the clear survives a restart")

	require.NoError(t, restarted.UpdateAPIKey(ctx, "user-key"))
	assert.Equal(t, "user-key", restarted.Snapshot().APIKey)
}

func TestAllowCurrentURL_CachesAllowWithoutClearing(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()
	require.NoError(t, fx.e.UpdateGoal(ctx, "Write thesis"))
	fx.e.cache.Set("https://other.example", decision.Decision{Source: decision.SourceAI})

	res, err := fx.e.AllowCurrentURL(ctx, "https://www.youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, "www.youtube.com", res.Hostname)
	assert.Equal(t, "www.youtube.com|/watch", res.Signature)
	assert.Nil(t, res.Flight)
	assert.Equal(t, 2, fx.e.Config().CacheSize)

	cached, ok := fx.e.cache.Get("https://www.youtube.com/watch?v=abc")
	require.True(t, ok)
	assert.Equal(t, decision.SourceAllowURL, cached.Source)
	assert.Equal(t, "You allowed this page", cached.Reason)

	_, err = fx.e.AllowCurrentURL(ctx, "https://www.youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"www.youtube.com|/watch"}, fx.e.Snapshot().AllowedURLs)

	_, err = fx.e.AllowCurrentURL(ctx, "not a url", false)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestFlightScenario_WarningsForceLanding(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()
	require.NoError(t, fx.e.UpdateGoal(ctx, "Ship release"))

	start, err := fx.e.StartFlight(ctx)
	require.NoError(t, err)
	assert.True(t, start.Flight.Active)
	assert.Equal(t, "Ship release", start.Flight.Goal)

	var last flight.TurbulenceResult
	for i := 0; i < flight.DefaultTurbulenceLimit; i++ {
		last, err = fx.e.WarningShown(ctx, "https://netflix.com")
		require.NoError(t, err)
		assert.True(t, last.Applied)
	}

	assert.True(t, last.ForcedLanding)
	require.NotNil(t, last.Landing)
	require.NotNil(t, last.Landing.Record)
	assert.Equal(t, flight.OutcomeFail, last.Landing.Record.Outcome)

	status := fx.e.FlightStatus()
	assert.False(t, status.Flight.Active)
	assert.Len(t, status.History, 1)
	assert.Equal(t, int64(flight.DefaultTurbulenceLimit), fx.e.Stats()[string(stats.WarningsShown)])
}

func TestAllowFromWarning_ForgivesTurbulence(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()

	_, err := fx.e.StartFlight(ctx)
	require.NoError(t, err)
	_, err = fx.e.WarningShown(ctx, "https://en.wikipedia.org/wiki/Go")
	require.NoError(t, err)
	require.Equal(t, 1, fx.e.FlightStatus().Flight.Turbulence)

	res, err := fx.e.AllowCurrentURL(ctx, "https://en.wikipedia.org/wiki/Go", true)
	require.NoError(t, err)
	require.NotNil(t, res.Flight)
	assert.Zero(t, res.Flight.Turbulence)

	// Nothing left to forgive is not an error for the allow itself.
	res, err = fx.e.AllowCurrentURL(ctx, "https://en.wikipedia.org/wiki/Rust", true)
	require.NoError(t, err)
	assert.Nil(t, res.Flight)
}

func TestDisputeTurbulence(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()

	_, err := fx.e.DisputeTurbulence(ctx)
	assert.ErrorIs(t, err, flight.ErrNoFlight)

	_, err = fx.e.StartFlight(ctx)
	require.NoError(t, err)
	_, err = fx.e.DisputeTurbulence(ctx)
	assert.ErrorIs(t, err, flight.ErrNoTurbulence)

	_, err = fx.e.WarningShown(ctx, "https://reddit.com")
	require.NoError(t, err)
	snap, err := fx.e.DisputeTurbulence(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Turbulence)
}

func TestEndFlight_TooShortThenLanded(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()

	_, err := fx.e.StartFlight(ctx)
	require.NoError(t, err)
	fx.clock.Advance(time.Minute)
	res, err := fx.e.EndFlight(ctx, flight.EndOptions{})
	require.NoError(t, err)
	assert.True(t, res.TooShort)
	assert.Nil(t, res.Record)

	_, err = fx.e.StartFlight(ctx)
	require.NoError(t, err)
	fx.clock.Advance(25 * time.Minute)
	res, err = fx.e.EndFlight(ctx, flight.EndOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, flight.OutcomePerfect, res.Record.Outcome)
}

func TestWarningWithoutFlightOnlyCounts(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true})
	ctx := context.Background()

	res, err := fx.e.WarningShown(ctx, "https://netflix.com")
	require.NoError(t, err)
	assert.False(t, res.Applied)

	fx.e.UserWentBack(ctx, "https://netflix.com")
	fx.e.UserContinued(ctx, "https://netflix.com")
	fx.e.UserContinued(ctx, "https://netflix.com")

	got := fx.e.Stats()
	assert.Equal(t, int64(1), got[string(stats.WarningsShown)])
	assert.Equal(t, int64(1), got[string(stats.TimesWentBack)])
	assert.Equal(t, int64(2), got[string(stats.TimesContinued)])
}

func TestFlush_SurvivesRestart(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Options{InitialEnabled: true, DefaultBlockList: []string{"netflix.com"}})
	ctx := context.Background()

	d := fx.e.CheckURL(ctx, "https://netflix.com/browse", "")
	require.True(t, d.IsBlocked)
	fx.e.cache.Set("https://a.example", decision.Decision{Source: decision.SourceAI, Reason: "kept"})
	require.NoError(t, fx.e.Flush(ctx))

	restarted := fx.build(t)
	require.NoError(t, restarted.Load(ctx))

	assert.Equal(t, int64(1), restarted.Stats()[string(stats.PagesAnalyzed)])
	assert.Equal(t, 1, restarted.Config().CacheSize)
}
