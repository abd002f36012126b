// Package scheduling periodically reruns workflow processes left Waiting
// after a retryable step failure, backing off exponentially between
// attempts — the automated half of the resume path a human drives through
// callback.Server and a UI for Suspend/AwaitingCallback.
package scheduling

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	orchestrator "github.com/RichieB2B/orchestrator-core"
)

// attemptKey is the state key the Scheduler stamps with how many times it
// has retried a given Waiting process, used to compute the next backoff.
const attemptKey = "__retry_attempt"

// Scheduler polls a ProcessStatStore for Waiting processes and reruns them
// through a Driver once their backoff has elapsed.
type Scheduler struct {
	store       orchestrator.ProcessStatStore
	writer      orchestrator.LogWriter
	driver      *orchestrator.Driver
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	interval    time.Duration
	logger      *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxAttempts caps how many times a Waiting process is retried before
// the scheduler leaves it alone (default 5).
func WithMaxAttempts(n int) Option { return func(s *Scheduler) { s.maxAttempts = n } }

// WithBaseDelay sets the first backoff delay (default 10s); each later
// attempt doubles it, per retryBackoff.
func WithBaseDelay(d time.Duration) Option { return func(s *Scheduler) { s.baseDelay = d } }

// WithMaxDelay caps the backoff delay regardless of attempt count (default
// 15m).
func WithMaxDelay(d time.Duration) Option { return func(s *Scheduler) { s.maxDelay = d } }

// WithPollInterval sets how often the scheduler checks for due retries
// (default 30s).
func WithPollInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }

// WithLogger overrides the scheduler's logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// New builds a Scheduler driving processes in store through driver, writing
// results with writer.
func New(store orchestrator.ProcessStatStore, writer orchestrator.LogWriter, driver *orchestrator.Driver, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       store,
		writer:      writer,
		driver:      driver,
		maxAttempts: 5,
		baseDelay:   10 * time.Second,
		maxDelay:    15 * time.Minute,
		interval:    30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls for due Waiting processes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	waiting, err := s.store.ListWaiting(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, pstat := range waiting {
		attempt := attemptCount(pstat.State.Unwrap())
		if attempt >= s.maxAttempts {
			continue
		}
		startedAt := stepStartedAt(pstat.State.Unwrap())
		if now.Before(startedAt.Add(retryBackoff(s.baseDelay, s.maxDelay, attempt))) {
			continue
		}
		s.retry(ctx, pstat, attempt)
	}
	return nil
}

func (s *Scheduler) retry(ctx context.Context, pstat *orchestrator.ProcessStat, attempt int) {
	s.logger.Info("retrying waiting process", "process_id", pstat.ProcessID, "attempt", attempt+1)
	pstat.State = pstat.State.Map(func(st orchestrator.State) orchestrator.State {
		return st.Merge(orchestrator.State{attemptKey: attempt + 1})
	})
	logFn := func(step orchestrator.Step, result orchestrator.Process) orchestrator.Process {
		return s.writer.WriteLog(ctx, pstat, step, result)
	}
	pstat.State = s.driver.RunWorkflow(ctx, pstat, logFn)
	if err := s.store.Save(ctx, pstat); err != nil {
		s.logger.Error("failed to save retried process", "process_id", pstat.ProcessID, "error", err)
	}
}

func attemptCount(s orchestrator.State) int {
	v, ok := s[attemptKey]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func stepStartedAt(s orchestrator.State) time.Time {
	v, ok := s[orchestrator.KeyLastStepStartedAt]
	if !ok {
		return time.Time{}
	}
	switch n := v.(type) {
	case int64:
		return time.Unix(n, 0)
	case float64:
		return time.Unix(int64(n), 0)
	default:
		return time.Time{}
	}
}

// retryBackoff returns the delay before retry attempt i (0-indexed),
// exponential with jitter and capped at max: base * 2^i, plus up to 50%
// random jitter, never exceeding max.
func retryBackoff(base time.Duration, max time.Duration, i int) time.Duration {
	exp := base * time.Duration(int64(1)<<uint(i))
	if exp > max {
		exp = max
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	total := exp + jitter
	if total > max {
		return max
	}
	return total
}
