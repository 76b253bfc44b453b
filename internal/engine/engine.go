// Package engine owns the application state and is the single writer for
// every mutation. Transport layers talk to the engine, never to the cache,
// stats or flight manager directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/neoromantics/focus/internal/cache"
	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/flight"
	"github.com/neoromantics/focus/internal/pipeline"
	"github.com/neoromantics/focus/internal/sitelist"
	"github.com/neoromantics/focus/internal/stats"
)

// ErrInvalidURL is returned when a URL has no usable hostname.
var ErrInvalidURL = errors.New("invalid-url")

// SettingsStore persists the settings section.
type SettingsStore interface {
	GetSetting(key string) (string, bool, error)
	PutSettings(values map[string]string) error
}

// Checker runs a page check against a settings snapshot.
type Checker interface {
	Check(ctx context.Context, req pipeline.Request, s pipeline.Settings) decision.Decision
}

// State is the user-controlled configuration.
type State struct {
	APIKey      string
	Goal        string
	BlockList   []string
	AllowList   []string
	AllowedURLs []string
	Enabled     bool
}

func (s State) clone() State {
	s.BlockList = slices.Clone(s.BlockList)
	s.AllowList = slices.Clone(s.AllowList)
	s.AllowedURLs = slices.Clone(s.AllowedURLs)
	return s
}

// Options carries install-time defaults.
type Options struct {
	DefaultBlockList []string
	DefaultAllowList []string
	// DefaultAPIKey is used when no key has been stored.
	DefaultAPIKey string
	// InitialEnabled seeds the enabled flag on a fresh install.
	InitialEnabled bool
	RequireFlight  bool
	Provider       string
	Now            func() time.Time
}

// Deps are the engine's collaborators.
type Deps struct {
	Store    SettingsStore
	Cache    *cache.Cache
	Stats    *stats.Counters
	Flights  *flight.Manager
	Pipeline Checker
}

// Engine coordinates state, cache, stats and flights.
type Engine struct {
	mu    sync.RWMutex
	state State

	store    SettingsStore
	cache    *cache.Cache
	stats    *stats.Counters
	flights  *flight.Manager
	pipeline Checker
	factory  decision.Factory
	opts     Options
}

// New creates an Engine. Call Load before serving requests.
func New(deps Deps, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		state:    State{Enabled: true},
		store:    deps.Store,
		cache:    deps.Cache,
		stats:    deps.Stats,
		flights:  deps.Flights,
		pipeline: deps.Pipeline,
		factory:  decision.Factory{Now: opts.Now},
		opts:     opts,
	}
	e.flights.SetGoalFunc(e.Goal)
	return e
}

// Load restores every section from the store, seeding a fresh install first.
func (e *Engine) Load(ctx context.Context) error {
	_, installed, err := e.store.GetSetting(keyEnabled)
	if err != nil {
		return fmt.Errorf("checking install state: %w", err)
	}
	if !installed {
		if err := e.seed(ctx); err != nil {
			return err
		}
	}
	return e.Reload(ctx)
}

// Reload re-reads settings, cache, stats and flights from the store.
func (e *Engine) Reload(ctx context.Context) error {
	if err := e.loadSettings(); err != nil {
		return err
	}
	if err := e.cache.Load(ctx); err != nil {
		return err
	}
	if err := e.stats.Load(ctx); err != nil {
		return err
	}
	if err := e.flights.Load(ctx); err != nil {
		return err
	}

	s := e.Snapshot()
	slog.Info("configuration loaded",
		"has_api_key", s.APIKey != "",
		"has_goal", s.Goal != "",
		"block_list", len(s.BlockList),
		"allow_list", len(s.AllowList),
		"allowed_urls", len(s.AllowedURLs),
		"cache_size", e.cache.Len(),
		"enabled", s.Enabled)
	return nil
}

func (e *Engine) seed(ctx context.Context) error {
	slog.Info("fresh install, seeding defaults")
	values := map[string]string{
		keyEnabled:     formatBool(e.opts.InitialEnabled),
		keyInstallTime: e.opts.Now().UTC().Format(time.RFC3339),
		keyBlockList:   encodeList(sitelist.Sanitize(e.opts.DefaultBlockList)),
		keyAllowList:   encodeList(sitelist.Sanitize(e.opts.DefaultAllowList)),
	}
	if err := e.store.PutSettings(values); err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}
	return e.stats.Reset(ctx)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.clone()
}

// Goal returns the current focus goal.
func (e *Engine) Goal() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Goal
}

func (e *Engine) settings() pipeline.Settings {
	s := e.Snapshot()
	return pipeline.Settings{
		Enabled:       s.Enabled,
		RequireFlight: e.opts.RequireFlight,
		APIKey:        s.APIKey,
		Goal:          s.Goal,
		BlockList:     s.BlockList,
		AllowList:     s.AllowList,
		AllowedURLs:   s.AllowedURLs,
	}
}

// CheckURL runs the decision pipeline for one page.
func (e *Engine) CheckURL(ctx context.Context, rawURL, html string) decision.Decision {
	return e.pipeline.Check(ctx, pipeline.Request{URL: rawURL, HTML: html}, e.settings())
}

// Flush writes the cache and stats sections.
func (e *Engine) Flush(ctx context.Context) error {
	return errors.Join(e.cache.Flush(ctx), e.stats.PersistAll(ctx))
}

func normalizeGoal(goal string) string {
	return strings.TrimSpace(goal)
}
