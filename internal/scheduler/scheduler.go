// Package scheduler drives the periodic refresh of due feeds and the
// slower maintenance cadences.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/ingest"
	"github.com/bryan-buckman/newsriver/internal/model"
	"github.com/bryan-buckman/newsriver/internal/retention"
)

// Config tunes the cadences. Zero values fall back to the defaults.
type Config struct {
	TickInterval        time.Duration // due-feed sweep cadence
	BatchSize           int           // due feeds per tick
	InterFeedDelay      time.Duration // pacing between feeds in a tick
	WarmStartDelay      time.Duration // first sweep after process start
	MaintenanceInterval time.Duration // retention + compaction cadence
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 5 * time.Minute
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.InterFeedDelay == 0 {
		c.InterFeedDelay = time.Second
	}
	if c.WarmStartDelay == 0 {
		c.WarmStartDelay = 10 * time.Second
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = 24 * time.Hour
	}
	return c
}

// Scheduler owns the refresh timers. It is an explicit object with a
// Start/Stop lifecycle; the composition root holds the only reference.
type Scheduler struct {
	db        *database.DB
	pipeline  *ingest.Pipeline
	retention *retention.Engine
	cfg       Config
	log       *logrus.Entry
	now       func() time.Time

	tickMu sync.Mutex // held for the duration of one tick; overlaps are skipped
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler.
func New(db *database.DB, pipeline *ingest.Pipeline, ret *retention.Engine, cfg Config, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		db:        db,
		pipeline:  pipeline,
		retention: ret,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
	}
}

// Start launches the tick loop, the warm-start sweep, and the maintenance
// loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Warm start: a freshly booted process should not sit idle for a
		// whole tick before its first refresh.
		select {
		case <-time.After(s.cfg.WarmStartDelay):
			s.RunTick(ctx)
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunTick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.MaintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runMaintenance()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the timers and waits for an in-flight tick to finish. A tick
// is never cancelled mid-feed; per-feed timeouts are the only cancellation
// boundary.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunTick performs one due-feed sweep. If the previous tick is still
// running the new one is skipped entirely; ticks never overlap.
func (s *Scheduler) RunTick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.log.Debug("previous tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	feeds, err := s.db.DueFeeds(s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		s.log.WithError(err).Error("select due feeds")
		return
	}
	if len(feeds) == 0 {
		return
	}
	s.log.WithField("due", len(feeds)).Debug("tick started")

	// Strictly sequential with fixed pacing: one process never bursts
	// concurrent requests at remote origins.
	limiter := rate.NewLimiter(rate.Every(s.cfg.InterFeedDelay), 1)
	for i := range feeds {
		feed := feeds[i]
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		s.refreshOne(ctx, &feed)
	}
}

// refreshOne isolates a single feed's pipeline run; neither an error nor a
// panic in one feed aborts the rest of the batch.
func (s *Scheduler) refreshOne(ctx context.Context, feed *model.Feed) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"feed_id": feed.ID, "panic": r}).
				Error("feed refresh panicked")
		}
	}()
	newCount, err := s.pipeline.Refresh(ctx, feed)
	if err != nil {
		s.log.WithFields(logrus.Fields{"feed_id": feed.ID, "url": feed.URL}).
			WithError(err).Warn("feed refresh failed")
		return
	}
	if newCount > 0 {
		s.log.WithFields(logrus.Fields{"feed_id": feed.ID, "new": newCount}).
			Info("feed refreshed")
	}
}

// tombstoneTTL is how long soft-deleted feeds stay around for sync clients
// to pick up before the maintenance pass hard-deletes them.
const tombstoneTTL = 30 * 24 * time.Hour

// runMaintenance executes the daily retention pass, purges expired
// tombstones, and runs an opportunistic compaction when fragmentation
// clears the threshold.
func (s *Scheduler) runMaintenance() {
	s.retention.EnforceAll()

	if purged, err := s.db.PurgeDeletedFeeds(s.now().Add(-tombstoneTTL)); err != nil {
		s.log.WithError(err).Warn("tombstone purge")
	} else if purged > 0 {
		s.log.WithField("feeds", purged).Info("tombstones purged")
	}

	worthwhile, frag, err := s.db.CompactionWorthwhile(retention.CompactionFragThreshold())
	if err != nil {
		s.log.WithError(err).Warn("fragmentation check")
		return
	}
	if !worthwhile {
		return
	}
	reclaimed, elapsed, err := s.db.Vacuum()
	if err != nil {
		s.log.WithError(err).Warn("opportunistic compaction")
		return
	}
	s.log.WithFields(logrus.Fields{
		"fragmentation": frag,
		"bytes":         reclaimed,
		"elapsed":       elapsed,
	}).Info("storage compacted")
}
