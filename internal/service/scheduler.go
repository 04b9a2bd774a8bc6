package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agromind/internal/constants"
	"agromind/internal/metrics"

	"github.com/sirupsen/logrus"
)

// RetentionStore deletes old messages
type RetentionStore interface {
	CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error)
}

// FileCleaner removes uploaded files older than maxAge
type FileCleaner interface {
	CleanupOldFiles(maxAge time.Duration) (int, error)
}

// Scheduler periodically deletes messages older than the retention period
type Scheduler struct {
	store         RetentionStore
	files         FileCleaner
	retentionDays atomic.Int64
	interval      time.Duration
	logger        *logrus.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func NewScheduler(store RetentionStore, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.CleanupSchedulerIntervalHours
	}
	s := &Scheduler{
		store:    store,
		interval: time.Duration(intervalHours) * time.Hour,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	s.retentionDays.Store(int64(retentionDays))
	return s
}

// WithFileCleaner makes each run also remove uploads older than the
// retention period.
func (s *Scheduler) WithFileCleaner(files FileCleaner) *Scheduler {
	s.files = files
	return s
}

// SetRetentionDays changes the retention period used by the next run
func (s *Scheduler) SetRetentionDays(days int) {
	s.retentionDays.Store(int64(days))
}

// Start runs a cleanup immediately and then on every interval until ctx is
// done or Stop is called. Runs are skipped while retention is zero days.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("retention_days", s.retentionDays.Load()).Info("Starting cleanup scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	days := int(s.retentionDays.Load())
	if days <= 0 {
		s.logger.Debug("Message retention disabled, skipping cleanup")
		return
	}

	deleted, err := s.store.CleanupOldMessages(ctx, days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to cleanup old messages")
		return
	}

	metrics.AddToCounter(metrics.RetentionDeleted, float64(deleted), nil, "Messages deleted by retention")
	s.logger.WithField(LogFieldCount, deleted).Info("Completed message cleanup")

	if s.files == nil {
		return
	}
	removed, err := s.files.CleanupOldFiles(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		s.logger.WithError(err).Error("Failed to cleanup old uploads")
		return
	}
	s.logger.WithField(LogFieldCount, removed).Info("Completed upload cleanup")
}
