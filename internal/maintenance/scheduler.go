// Package maintenance runs the periodic cache cleanup and state flush.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Options wires the periodic jobs. A zero interval disables its job.
type Options struct {
	CleanupEvery time.Duration
	FlushEvery   time.Duration
	// Cleanup drops expired cache entries and trims the cache.
	Cleanup func()
	// Flush persists cache and counters. It also runs once on Stop.
	Flush func(ctx context.Context) error
	// FlushTimeout bounds each flush.
	FlushTimeout time.Duration
}

// Scheduler owns a cron instance with the maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	opts     Options
	mu       sync.Mutex
	entryIDs map[string]cron.EntryID
	stopOnce sync.Once
}

// New registers the jobs without starting them.
func New(opts Options) (*Scheduler, error) {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 30 * time.Second
	}
	logger := slogLogger{}
	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		opts:     opts,
		entryIDs: make(map[string]cron.EntryID),
	}

	if opts.Cleanup != nil && opts.CleanupEvery > 0 {
		if err := s.add("cache_cleanup", opts.CleanupEvery, opts.Cleanup); err != nil {
			return nil, err
		}
	}
	if opts.Flush != nil && opts.FlushEvery > 0 {
		if err := s.add("flush", opts.FlushEvery, func() { s.flush() }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, fn func()) error {
	if every < time.Second {
		return fmt.Errorf("maintenance job %s: interval %s is below one second", name, every)
	}
	id, err := s.cron.AddFunc("@every "+every.String(), fn)
	if err != nil {
		return fmt.Errorf("maintenance job %s: %w", name, err)
	}
	s.mu.Lock()
	s.entryIDs[name] = id
	s.mu.Unlock()
	slog.Debug("maintenance job registered", "job", name, "every", every.String())
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entryIDs))
	for name := range s.entryIDs {
		names = append(names, name)
	}
	return names
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("maintenance scheduler started", "jobs", len(s.Jobs()))
}

// Stop waits for running jobs, then flushes once more. Safe to call twice.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		if s.opts.Flush != nil {
			err = s.opts.Flush(ctx)
		}
		slog.Info("maintenance scheduler stopped")
	})
	return err
}

func (s *Scheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FlushTimeout)
	defer cancel()
	if err := s.opts.Flush(ctx); err != nil {
		slog.Error("periodic flush failed", "error", err)
	}
}

// slogLogger adapts cron's logger to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	if err == nil {
		err = errors.New("unknown")
	}
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
