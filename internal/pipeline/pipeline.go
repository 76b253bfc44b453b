// Package pipeline decides whether a page should warn the user. Checks run in
// a fixed priority order and the first matching stage answers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/neoromantics/focus/internal/classifier"
	"github.com/neoromantics/focus/internal/decision"
	"github.com/neoromantics/focus/internal/sitelist"
	"github.com/neoromantics/focus/internal/stats"
)

// DefaultProductivityHosts are presumed non-distracting and never classified.
var DefaultProductivityHosts = []string{"docs.google.com", "drive.google.com", "gmail.com", "localhost"}

// Settings is the state snapshot a check runs against.
type Settings struct {
	Enabled       bool
	RequireFlight bool
	APIKey        string
	Goal          string
	BlockList     []string
	AllowList     []string
	AllowedURLs   []string
}

// Request is one page check.
type Request struct {
	URL  string `json:"url"`
	HTML string `json:"html,omitempty"`
}

// Cache is the decision cache consulted before classification.
type Cache interface {
	Get(url string) (decision.Decision, bool)
	Set(url string, d decision.Decision)
}

// Classifier judges page content against a goal.
type Classifier interface {
	Classify(ctx context.Context, apiKey, pageURL, pageText, goal string) (classifier.Verdict, error)
}

// Counter receives usage increments.
type Counter interface {
	Increment(key stats.Key)
}

// FlightStatus reports whether a focus flight is in progress.
type FlightStatus interface {
	IsActive() bool
}

// Deps are the collaborators of a Pipeline. Flights may be nil when flights
// are never required.
type Deps struct {
	Cache             Cache
	Classifier        Classifier
	Counter           Counter
	Flights           FlightStatus
	ProductivityHosts []string
	Factory           decision.Factory
	Registerer        prometheus.Registerer
}

// Pipeline produces one Decision per page check.
type Pipeline struct {
	cache        Cache
	classifier   Classifier
	counter      Counter
	flights      FlightStatus
	productivity []string
	factory      decision.Factory
	decisions    *prometheus.CounterVec
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	p := &Pipeline{
		cache:        deps.Cache,
		classifier:   deps.Classifier,
		counter:      deps.Counter,
		flights:      deps.Flights,
		productivity: deps.ProductivityHosts,
		factory:      deps.Factory,
	}
	if p.productivity == nil {
		p.productivity = DefaultProductivityHosts
	}
	if deps.Registerer != nil {
		p.decisions = promauto.With(deps.Registerer).NewCounterVec(prometheus.CounterOpts{
			Namespace: "focus",
			Name:      "decisions_total",
			Help:      "Page-check decisions by source",
		}, []string{"source", "warn"})
	}
	return p
}

// Check evaluates req. It never fails: every error condition resolves to an
// allow decision tagged with its source.
func (p *Pipeline) Check(ctx context.Context, req Request, s Settings) (d decision.Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("page check panicked", "url", req.URL, "panic", r)
			d = p.factory.Failure(s.Goal, fmt.Sprint(r))
		}
		p.record(d)
	}()
	return p.check(ctx, req, s)
}

func (p *Pipeline) check(ctx context.Context, req Request, s Settings) decision.Decision {
	f := p.factory

	if !s.Enabled {
		return f.Disabled(s.Goal)
	}
	if s.RequireFlight && p.flights != nil && !p.flights.IsActive() {
		return f.NoFlight(s.Goal)
	}

	host, ok := sitelist.Hostname(req.URL)
	if !ok {
		return f.InvalidURL(s.Goal)
	}

	p.increment(stats.PagesAnalyzed)

	if sitelist.Matches(s.BlockList, host) {
		slog.Info("blocked by list", "host", host)
		return f.Blocked(s.Goal)
	}

	if sitelist.Matches(s.AllowList, host) {
		return f.AllowListed(s.Goal)
	}
	if sig, ok := sitelist.Signature(req.URL); ok && sitelist.Contains(s.AllowedURLs, sig) {
		return f.AllowedURL(s.Goal)
	}

	if cached, ok := p.cache.Get(req.URL); ok {
		slog.Debug("cache hit", "host", host)
		return decision.FromCache(cached, goalOrFallback(s.Goal))
	}

	if sitelist.MatchesSuffix(p.productivity, host) || sitelist.Matches(s.AllowList, host) {
		return f.ProductivityAllow(s.Goal)
	}

	if s.APIKey == "" {
		return f.NoAPIKey(s.Goal)
	}
	if s.Goal == "" {
		return f.NoTask()
	}
	if req.HTML == "" {
		return f.NoHTML(s.Goal)
	}

	// Navigating away does not cancel classification; its result is still cached.
	verdict, err := p.classifier.Classify(context.WithoutCancel(ctx), s.APIKey, req.URL, req.HTML, s.Goal)
	if err != nil {
		slog.Warn("classification failed", "host", host, "error", err)
		return f.AIError(s.Goal, err)
	}

	p.increment(stats.AIAnalysisCount)
	d := f.Classified(s.Goal, verdict.IsDistraction, verdict.Reason, verdict.Confidence, verdict.Raw)
	p.cache.Set(req.URL, d)
	slog.Info("page classified", "host", host, "distraction", verdict.IsDistraction)
	return d
}

func (p *Pipeline) increment(key stats.Key) {
	if p.counter != nil {
		p.counter.Increment(key)
	}
}

func (p *Pipeline) record(d decision.Decision) {
	if p.decisions == nil {
		return
	}
	warn := "false"
	if d.ShouldWarn {
		warn = "true"
	}
	p.decisions.WithLabelValues(string(d.Source), warn).Inc()
}

func goalOrFallback(goal string) string {
	if goal == "" {
		return decision.FallbackTask
	}
	return goal
}
