// Package reload keeps the active symbol index fresh. A Reloader loads a new
// index from its source and publishes it atomically; on any failure the
// previous index keeps serving.
package reload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/resilience"
)

// Reload triggers, used as metric labels and in analytics events.
const (
	TriggerStartup      = "startup"
	TriggerWatch        = "watch"
	TriggerNotification = "notification"
	TriggerManual       = "manual"
)

// CacheInvalidator drops results computed against an older index.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Reloader struct {
	holder   *symbolindex.Holder
	source   source.Source
	cache    CacheInvalidator
	metrics  *metrics.Metrics
	tracker  analytics.Tracker
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	// mu serializes reloads so generations follow load order.
	mu     sync.Mutex
	logger *slog.Logger
}

type Option func(*Reloader)

func WithCache(c CacheInvalidator) Option {
	return func(r *Reloader) { r.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reloader) { r.metrics = m }
}

func WithTracker(t analytics.Tracker) Option {
	return func(r *Reloader) { r.tracker = t }
}

// WithTimeout bounds each load attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Reloader) { r.timeout = d }
}

// WithRetry sets how many times a failing load is attempted and the initial
// backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *Reloader) {
		r.attempts = attempts
		r.backoff = backoff
	}
}

func New(holder *symbolindex.Holder, src source.Source, opts ...Option) *Reloader {
	r := &Reloader{
		holder:   holder,
		source:   src,
		timeout:  30 * time.Second,
		attempts: 3,
		backoff:  200 * time.Millisecond,
		logger:   slog.Default().With("component", "index-reloader", "source", src.Name()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload loads a fresh index and publishes it. Malformed or unparsable input
// fails immediately; other failures are retried. On error the holder is left
// untouched.
func (r *Reloader) Reload(ctx context.Context, trigger string) (symbolindex.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	var idx *symbolindex.Index
	err := resilience.Retry(ctx, "index-load", resilience.RetryConfig{
		MaxAttempts:  r.attempts,
		InitialDelay: r.backoff,
		Retryable:    retryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			r.logger.Warn("index load failed, retrying",
				"trigger", trigger,
				"source", r.source.Name(),
				"attempt", attempt,
				"next_delay", delay,
				"error", err,
			)
		},
	}, func() error {
		var loaded *symbolindex.Index
		err := resilience.WithTimeout(ctx, r.timeout, "index-load", func(ctx context.Context) error {
			var err error
			loaded, err = source.Load(ctx, r.source)
			return err
		})
		if err == nil {
			idx = loaded
		}
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		r.failed(trigger, elapsed, err)
		return symbolindex.Version{}, err
	}

	v, err := r.holder.Publish(idx)
	if err != nil {
		r.failed(trigger, elapsed, err)
		return symbolindex.Version{}, err
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			// Stale entries are keyed by the old generation and expire on
			// their own.
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	r.succeeded(trigger, elapsed, v)
	return v, nil
}

func retryable(err error) bool {
	return !apperrors.Is(err, apperrors.ErrMalformedEntry) && !apperrors.Is(err, apperrors.ErrInvalidInput)
}

func (r *Reloader) succeeded(trigger string, elapsed time.Duration, v symbolindex.Version) {
	r.logger.Info("symbol index published",
		"trigger", trigger,
		"generation", v.Generation,
		"entries", v.Index.Len(),
		"targets", v.Index.TargetCount(),
		"duration_ms", elapsed.Milliseconds(),
	)
	if r.metrics != nil {
		r.metrics.IndexReloadsTotal.WithLabelValues(trigger, "success").Inc()
		r.metrics.IndexLoadDuration.Observe(elapsed.Seconds())
		r.metrics.IndexEntries.Set(float64(v.Index.Len()))
		r.metrics.IndexTargets.Set(float64(v.Index.TargetCount()))
		r.metrics.IndexGeneration.Set(float64(v.Generation))
	}
	if r.tracker != nil {
		r.tracker.Track(analytics.ReloadEvent{
			Type:       analytics.EventReload,
			Trigger:    trigger,
			Success:    true,
			Generation: v.Generation,
			Entries:    v.Index.Len(),
			Targets:    v.Index.TargetCount(),
			LatencyMs:  elapsed.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	}
}

func (r *Reloader) failed(trigger string, elapsed time.Duration, err error) {
	current := r.holder.Current()
	r.logger.Error("symbol index reload failed, keeping current index",
		"trigger", trigger,
		"current_generation", current.Generation,
		"duration_ms", elapsed.Milliseconds(),
		"error", err,
	)
	if r.metrics != nil {
		r.metrics.IndexReloadsTotal.WithLabelValues(trigger, "failure").Inc()
	}
	if r.tracker != nil {
		r.tracker.Track(analytics.ReloadEvent{
			Type:       analytics.EventReload,
			Trigger:    trigger,
			Generation: current.Generation,
			LatencyMs:  elapsed.Milliseconds(),
			Error:      err.Error(),
			Timestamp:  time.Now().UTC(),
		})
	}
}
