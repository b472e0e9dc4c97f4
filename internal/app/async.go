package service

import (
	"context"
	"errors"
	"fmt"

	refreshqueue "github.com/okian/codesync/internal/adapters/mq/queue"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/metrics"
)

// EnqueueRefresh schedules an async refresh of one platform, or of every
// platform when p is empty. It reports whether the work is pending: true
// when the job was queued or an identical job is already waiting, false
// with ErrQueueFull when the queue is at capacity.
func (s *Service) EnqueueRefresh(ctx context.Context, studentID string, p types.Platform) (bool, error) {
	s.mu.RLock()
	started, jobs := s.started, s.jobs
	s.mu.RUnlock()
	if !started {
		return false, ErrNotStarted
	}
	if p != "" && !p.Valid() {
		return false, fmt.Errorf("%w: %q", types.ErrUnknownPlatform, p)
	}
	if _, err := s.handles(ctx, studentID); err != nil {
		return false, err
	}

	job := model.RefreshJob{
		JobID:       s.newID(),
		StudentID:   studentID,
		Platform:    p,
		RequestedAt: s.now(),
	}
	if s.deduper.SeenAndRecord(ctx, job.Key()) {
		metrics.RecordJobDuplicate()
		s.logger.Debug(ctx, "refresh already pending",
			logger.String("studentID", studentID),
			logger.String("key", job.Key()),
		)
		return true, nil
	}

	if err := jobs.Enqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, job.Key())
		if errors.Is(err, refreshqueue.ErrFull) {
			s.logger.Warn(ctx, "refresh queue full",
				logger.String("studentID", studentID),
				logger.Int("queueSize", s.queueSize),
			)
			return false, ErrQueueFull
		}
		return false, fmt.Errorf("enqueue refresh: %w", err)
	}
	return true, nil
}

// HandleRefresh runs one queued job. The worker releases the job's claim
// once this returns.
func (s *Service) HandleRefresh(ctx context.Context, job refreshqueue.Job) error {
	var err error
	if job.Platform == "" {
		_, err = s.RefreshAll(ctx, job.StudentID)
	} else {
		_, err = s.RefreshOne(ctx, job.StudentID, job.Platform)
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", job.JobID, err)
	}
	return nil
}
