package service

import (
	"context"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/metrics"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"
)

// ExpiringCache drops expired entries on demand
type ExpiringCache interface {
	Cleanup() int
}

// IdleSweeper forgets clients idle for longer than maxIdle
type IdleSweeper interface {
	Cleanup(maxIdle time.Duration) int
}

// Janitor periodically purges expired cache entries and idle rate-limit
// buckets. It runs as a supervised service.
type Janitor struct {
	cache    ExpiringCache
	limiter  IdleSweeper
	interval time.Duration
	maxIdle  time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
}

// NewJanitor creates a janitor; either target may be nil
func NewJanitor(c ExpiringCache, limiter IdleSweeper, interval time.Duration, logger *logrus.Logger) *Janitor {
	if interval <= 0 {
		interval = constants.DefaultJanitorIntervalSec * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Janitor{
		cache:    c,
		limiter:  limiter,
		interval: interval,
		maxIdle:  constants.DefaultRateLimiterMaxIdleSec * time.Second,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Serve runs until ctx is cancelled or Stop is called. After Stop the
// supervisor does not restart it.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.WithField(LogFieldComponent, j.String()).Info("Starting janitor")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Janitor context cancelled, stopping")
			return nil
		case <-j.stopCh:
			j.logger.Info("Janitor stop signal received, stopping")
			return suture.ErrDoNotRestart
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// Stop ends Serve; it must be called at most once
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) String() string {
	return "janitor"
}

// RunOnce performs a single sweep and returns the removed cache entries and limiter keys
func (j *Janitor) RunOnce() (int, int) {
	entries, keys := 0, 0
	if j.cache != nil {
		entries = j.cache.Cleanup()
	}
	if j.limiter != nil {
		keys = j.limiter.Cleanup(j.maxIdle)
	}

	metrics.AddToCounter("janitor_removed_total", float64(entries), map[string]string{"target": "cache"}, "Entries removed by the janitor")
	metrics.AddToCounter("janitor_removed_total", float64(keys), map[string]string{"target": "rate_limiter"}, "Entries removed by the janitor")

	if entries > 0 || keys > 0 {
		j.logger.WithFields(logrus.Fields{
			"cache_entries": entries,
			"limiter_keys":  keys,
		}).Debug("Janitor sweep removed stale entries")
	}
	return entries, keys
}
