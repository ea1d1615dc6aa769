package ingest

import (
	"context"
	"time"

	"github.com/resourceburglar/localqa/internal/log"
)

// Scheduler periodically re-ingests files whose vectorization is pending or
// failed. A file that reaches the retry bound simply stops matching the fetch
// predicate; it is not flagged terminally, operators find it by its retry
// count.
type Scheduler struct {
	service    *Service
	interval   time.Duration
	retryLimit int
	fetchLimit int
	logger     log.Logger
}

// NewScheduler creates the reconciliation scheduler.
func NewScheduler(service *Service, interval time.Duration, retryLimit, fetchLimit int, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Scheduler{
		service:    service,
		interval:   interval,
		retryLimit: retryLimit,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Run blocks until ctx is canceled, reconciling one batch per tick. Ticks are
// serialized with each other by construction; callers must track the
// goroutine with a WaitGroup.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce reconciles a single batch. A failure on one file never aborts the
// rest of the batch.
func (s *Scheduler) runOnce(ctx context.Context) {
	files, err := s.service.files.ListReconcilable(ctx, s.retryLimit, s.fetchLimit)
	if err != nil {
		s.logger.Warn("reconciliation fetch failed", "error", err)
		return
	}
	if len(files) == 0 {
		return
	}

	s.logger.Debug("reconciling files", "count", len(files))

	for _, f := range files {
		ids, err := s.service.Vectorize(ctx, &f)
		if err != nil {
			s.logger.Warn("reconciliation failed for file",
				"file_id", f.ID, "file", f.FileName,
				"retry_count", f.RetryCount, "error", err)
			if markErr := s.service.files.MarkFailed(ctx, f.ID); markErr != nil {
				s.logger.Error("failed to mark file failed", "file_id", f.ID, "error", markErr)
			}
			continue
		}

		if err := s.service.files.MarkDone(ctx, f.ID, ids); err != nil {
			s.logger.Error("failed to mark file done", "file_id", f.ID, "error", err)
			continue
		}
		s.logger.Info("file reconciled", "file_id", f.ID, "file", f.FileName, "vectors", len(ids))
	}
}
