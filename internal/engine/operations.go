package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/neoromantics/focus/internal/flight"
	"github.com/neoromantics/focus/internal/sitelist"
	"github.com/neoromantics/focus/internal/stats"
)

// commitLocked persists values. Callers hold e.mu so writes to the settings
// section land in mutation order.
func (e *Engine) commitLocked(values map[string]string) error {
	if err := e.store.PutSettings(values); err != nil {
		slog.Error("saving settings failed", "error", err)
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// UpdateGoal sets the focus goal and invalidates every cached decision, even
// when the goal is unchanged.
func (e *Engine) UpdateGoal(_ context.Context, goal string) error {
	goal = normalizeGoal(goal)

	e.mu.Lock()
	e.state.Goal = goal
	err := e.commitLocked(map[string]string{keyGoal: goal})
	e.mu.Unlock()

	e.cache.Clear()
	slog.Info("goal updated, cache cleared", "has_goal", goal != "")
	return err
}

// UpdateBlockList replaces the block list and returns the sanitized result.
func (e *Engine) UpdateBlockList(_ context.Context, list []string) ([]string, error) {
	clean := sitelist.Sanitize(list)

	e.mu.Lock()
	e.state.BlockList = clean
	err := e.commitLocked(map[string]string{keyBlockList: encodeList(clean)})
	e.mu.Unlock()

	e.cache.Clear()
	slog.Info("block list updated", "size", len(clean))
	return slices.Clone(clean), err
}

// UpdateAllowList replaces the allow list and returns the sanitized result.
func (e *Engine) UpdateAllowList(_ context.Context, list []string) ([]string, error) {
	clean := sitelist.Sanitize(list)

	e.mu.Lock()
	e.state.AllowList = clean
	err := e.commitLocked(map[string]string{keyAllowList: encodeList(clean)})
	e.mu.Unlock()

	e.cache.Clear()
	slog.Info("allow list updated", "size", len(clean))
	return slices.Clone(clean), err
}

// AddHostToAllowList appends one hostname to the allow list.
func (e *Engine) AddHostToAllowList(_ context.Context, host string) ([]string, error) {
	host = sitelist.NormalizeHost(host)
	if host == "" {
		return nil, ErrInvalidURL
	}

	e.mu.Lock()
	if slices.Contains(e.state.AllowList, host) {
		out := slices.Clone(e.state.AllowList)
		e.mu.Unlock()
		return out, nil
	}
	e.state.AllowList = append(e.state.AllowList, host)
	out := slices.Clone(e.state.AllowList)
	err := e.commitLocked(map[string]string{keyAllowList: encodeList(out)})
	e.mu.Unlock()

	e.cache.Clear()
	slog.Info("host added to allow list", "host", host)
	return out, err
}

// UpdateAllowedURLs replaces the exact-page allow signatures. Bare URLs are
// converted to signatures.
func (e *Engine) UpdateAllowedURLs(_ context.Context, list []string) ([]string, error) {
	sigs := sitelist.LoadSignatures(list)

	e.mu.Lock()
	e.state.AllowedURLs = sigs
	err := e.commitLocked(map[string]string{keyAllowedURLs: encodeList(sigs)})
	e.mu.Unlock()

	e.cache.Clear()
	slog.Info("allowed urls updated", "size", len(sigs))
	return slices.Clone(sigs), err
}

// SetEnabled toggles checking. Cached decisions are kept.
func (e *Engine) SetEnabled(_ context.Context, enabled bool) error {
	e.mu.Lock()
	e.state.Enabled = enabled
	err := e.commitLocked(map[string]string{keyEnabled: formatBool(enabled)})
	e.mu.Unlock()

	slog.Info("checking toggled", "enabled", enabled)
	return err
}

// UpdateAPIKey stores a new classifier key and reloads settings.
func (e *Engine) UpdateAPIKey(ctx context.Context, key string) error {
	e.mu.Lock()
	err := e.commitLocked(map[string]string{keyAPIKey: key})
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.ReloadSettings(ctx)
}

// ReloadSettings re-reads the settings section only.
func (e *Engine) ReloadSettings(_ context.Context) error {
	if err := e.loadSettings(); err != nil {
		return err
	}
	slog.Info("settings reloaded", "has_api_key", e.Snapshot().APIKey != "")
	return nil
}

// AllowResult describes a page added to the exact-page allow list.
type AllowResult struct {
	Hostname  string           `json:"hostname"`
	Signature string           `json:"signature"`
	Flight    *flight.Snapshot `json:"flight,omitempty"`
}

// AllowCurrentURL always allows rawURL from now on and caches an allow
// decision for it. When the page was reached through a warning, the
// turbulence that warning caused is forgiven.
func (e *Engine) AllowCurrentURL(ctx context.Context, rawURL string, fromWarning bool) (AllowResult, error) {
	host, okHost := sitelist.Hostname(rawURL)
	sig, okSig := sitelist.Signature(rawURL)
	if !okHost || !okSig {
		return AllowResult{}, ErrInvalidURL
	}

	e.mu.Lock()
	var err error
	if !slices.Contains(e.state.AllowedURLs, sig) {
		e.state.AllowedURLs = append(e.state.AllowedURLs, sig)
		err = e.commitLocked(map[string]string{keyAllowedURLs: encodeList(e.state.AllowedURLs)})
	}
	goal := e.state.Goal
	e.mu.Unlock()

	e.cache.Set(rawURL, e.factory.UserAllowedPage(goal))
	slog.Info("page allowed", "signature", sig)

	res := AllowResult{Hostname: host, Signature: sig}
	if fromWarning {
		snap, rbErr := e.flights.RollbackTurbulence(ctx)
		switch {
		case rbErr == nil:
			res.Flight = &snap
		case errors.Is(rbErr, flight.ErrNoFlight), errors.Is(rbErr, flight.ErrNoTurbulence):
		default:
			err = errors.Join(err, rbErr)
		}
	}
	return res, err
}

// WarningShown counts a displayed warning as turbulence on the active flight.
func (e *Engine) WarningShown(ctx context.Context, rawURL string) (flight.TurbulenceResult, error) {
	e.stats.Increment(stats.WarningsShown)
	return e.flights.RegisterTurbulence(ctx, rawURL)
}

// UserWentBack records that the user left a warned page.
func (e *Engine) UserWentBack(_ context.Context, rawURL string) {
	e.stats.Increment(stats.TimesWentBack)
	slog.Debug("user went back", "url", rawURL)
}

// UserContinued records that the user proceeded past a warning.
func (e *Engine) UserContinued(_ context.Context, rawURL string) {
	e.stats.Increment(stats.TimesContinued)
	slog.Debug("user continued", "url", rawURL)
}

func (e *Engine) StartFlight(ctx context.Context) (flight.StartResult, error) {
	return e.flights.Start(ctx)
}

func (e *Engine) EndFlight(ctx context.Context, opts flight.EndOptions) (flight.EndResult, error) {
	return e.flights.End(ctx, opts)
}

// DisputeTurbulence forgives the latest turbulence when the user says a
// warning was wrong.
func (e *Engine) DisputeTurbulence(ctx context.Context) (flight.Snapshot, error) {
	return e.flights.RollbackTurbulence(ctx)
}

// FlightStatus is the current flight plus history.
type FlightStatus struct {
	Flight  flight.Snapshot `json:"flight"`
	History []flight.Record `json:"history"`
}

func (e *Engine) FlightStatus() FlightStatus {
	return FlightStatus{Flight: e.flights.Snapshot(), History: e.flights.History()}
}

// Stats returns every counter.
func (e *Engine) Stats() map[string]int64 {
	return e.stats.All()
}

// ConfigView is the state exposed to clients. The API key is reduced to its
// presence and length.
type ConfigView struct {
	HasAPIKey    bool             `json:"hasApiKey"`
	APIKeyLength int              `json:"apiKeyLength"`
	Provider     string           `json:"provider,omitempty"`
	CurrentTask  string           `json:"currentTask"`
	BlockList    []string         `json:"blockList"`
	AllowList    []string         `json:"allowList"`
	AllowedURLs  []string         `json:"allowedUrls"`
	Enabled      bool             `json:"enabled"`
	CacheSize    int              `json:"cacheSize"`
	Stats        map[string]int64 `json:"stats"`
}

func (e *Engine) Config() ConfigView {
	s := e.Snapshot()
	nonNil := func(l []string) []string {
		if l == nil {
			return []string{}
		}
		return l
	}
	return ConfigView{
		HasAPIKey:    s.APIKey != "",
		APIKeyLength: len(s.APIKey),
		Provider:     e.opts.Provider,
		CurrentTask:  s.Goal,
		BlockList:    nonNil(s.BlockList),
		AllowList:    nonNil(s.AllowList),
		AllowedURLs:  nonNil(s.AllowedURLs),
		Enabled:      s.Enabled,
		CacheSize:    e.cache.Len(),
		Stats:        e.stats.All(),
	}
}
