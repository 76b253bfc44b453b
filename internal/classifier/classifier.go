// Package classifier asks a remote language model whether a page distracts
// from the user's goal. It tolerates malformed model output and never turns a
// parse failure into a block.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultAttemptTimeout = 10 * time.Second
	DefaultMaxPageChars   = 30000
	DefaultExcerptChars   = 5000

	reasonDistraction = "AI detected this site distracts from your goal"
	reasonRelevant    = "AI determined this site is relevant to your goal"
	reasonUnclear     = "AI did not provide clear answer - allowing access by default"
)

// Provider sends one prompt to a model and returns its raw text answer.
type Provider interface {
	Name() string
	Complete(ctx context.Context, apiKey, prompt string) (string, error)
}

// Verdict is the normalized classification of a page.
type Verdict struct {
	IsDistraction bool
	Confidence    *float64
	Reason        string
	// Raw is set when no attempt produced a usable answer.
	Raw string
	// Parser names the stage that produced the verdict.
	Parser string
}

// Options tunes retry and truncation behavior. Zero values use the defaults.
type Options struct {
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	MaxPageChars   int
	ExcerptChars   int
	Metrics        *Metrics
}

// Client classifies pages through a Provider.
type Client struct {
	provider       Provider
	maxRetries     int
	retryDelay     time.Duration
	attemptTimeout time.Duration
	maxPageChars   int
	excerptChars   int
	metrics        *Metrics
}

// New creates a Client.
func New(provider Provider, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.MaxPageChars <= 0 {
		opts.MaxPageChars = DefaultMaxPageChars
	}
	if opts.ExcerptChars <= 0 || opts.ExcerptChars > opts.MaxPageChars {
		opts.ExcerptChars = min(DefaultExcerptChars, opts.MaxPageChars)
	}
	return &Client{
		provider:       provider,
		maxRetries:     opts.MaxRetries,
		retryDelay:     opts.RetryDelay,
		attemptTimeout: opts.AttemptTimeout,
		maxPageChars:   opts.MaxPageChars,
		excerptChars:   opts.ExcerptChars,
		metrics:        opts.Metrics,
	}
}

// Provider returns the name of the backing provider.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Classify judges pageURL against goal. An error is returned only when the
// final attempt failed in transport; an unparseable final answer yields an
// allow verdict carrying the raw response.
func (c *Client) Classify(ctx context.Context, apiKey, pageURL, pageText, goal string) (Verdict, error) {
	page := truncate(pageText, c.maxPageChars)
	info := extractPageInfo(page)
	prompt := buildPrompt(goal, pageURL, info, truncate(page, c.excerptChars))

	var lastRaw string
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.retryDelay); err != nil {
				return Verdict{}, fmt.Errorf("classification interrupted: %w", err)
			}
		}

		raw, err := c.complete(ctx, apiKey, prompt)
		if err != nil {
			c.metrics.recordAttempt(c.provider.Name(), "error")
			slog.Warn("classification attempt failed",
				"provider", c.provider.Name(), "attempt", attempt, "url", pageURL, "error", err)
			if attempt == c.maxRetries {
				return Verdict{}, fmt.Errorf("classifying %s: %w", pageURL, err)
			}
			continue
		}

		if v, ok := parseVerdict(raw); ok {
			c.metrics.recordAttempt(c.provider.Name(), "ok")
			c.metrics.recordParser(v.Parser)
			slog.Debug("page classified",
				"url", pageURL, "distraction", v.IsDistraction, "parser", v.Parser, "attempt", attempt)
			return v, nil
		}

		c.metrics.recordAttempt(c.provider.Name(), "unparsed")
		slog.Warn("unparseable classification", "attempt", attempt, "url", pageURL, "raw", raw)
		lastRaw = raw
	}

	c.metrics.recordParser(parserDefault)
	slog.Info("no clear classification, allowing", "url", pageURL)
	return Verdict{Reason: reasonUnclear, Raw: lastRaw, Parser: parserDefault}, nil
}

func (c *Client) complete(ctx context.Context, apiKey, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	return c.provider.Complete(attemptCtx, apiKey, prompt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
