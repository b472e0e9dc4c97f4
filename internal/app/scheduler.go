package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/metrics"
)

// cronLogger routes cron's own logging through the service logger.
type cronLogger struct {
	ctx context.Context
	l   logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(c.ctx, msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(c.ctx, msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

// newScheduler builds the cron runner for periodic refreshes of every
// student. A run that is still going when the next one fires is skipped.
func (s *Service) newScheduler(ctx context.Context) (*cron.Cron, error) {
	cl := cronLogger{ctx: ctx, l: s.logger.Named("scheduler")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.refreshSpec, func() { s.scheduledRefresh(ctx) }); err != nil {
		return nil, fmt.Errorf("cron.AddFunc %q: %w", s.refreshSpec, err)
	}
	return c, nil
}

func (s *Service) scheduledRefresh(ctx context.Context) {
	start := time.Now()
	ids, err := s.store.Students(ctx)
	if err != nil {
		metrics.RecordRefresh(kindScheduled, "error")
		s.logger.Error(ctx, "scheduled refresh: list students", logger.Error(err))
		return
	}

	report := s.RefreshBatch(ctx, ids)
	outcome := "ok"
	if len(report.Failed) > 0 {
		outcome = "partial"
	}
	metrics.RecordRefresh(kindScheduled, outcome)
	metrics.RecordRefreshDuration(kindScheduled, float64(time.Since(start).Milliseconds()))
}
