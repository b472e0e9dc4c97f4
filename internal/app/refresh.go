package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/normalize"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/metrics"
)

// Refresh kinds, used as span names and metric labels.
const (
	kindAll       = "all"
	kindOne       = "one"
	kindBatch     = "batch"
	kindRecompute = "recompute"
	kindScheduled = "scheduled"
)

// Per-platform task outcomes.
const (
	outcomeFetched  = "ok"
	outcomeUnlinked = "unlinked"
)

// BatchReport summarizes a multi-student run. Failed maps a student id to
// the error that stopped its refresh.
type BatchReport struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RefreshAll fetches every platform for the student, then recomputes and
// persists the score. Platform failures keep the previous canonical record;
// only store failures are returned.
func (s *Service) RefreshAll(ctx context.Context, studentID string) (model.ScoreRecord, error) {
	return s.refresh(ctx, kindAll, studentID, types.AllPlatforms)
}

// RefreshOne refreshes a single platform, then recomputes the whole score.
func (s *Service) RefreshOne(ctx context.Context, studentID string, p types.Platform) (model.ScoreRecord, error) {
	if !p.Valid() {
		return model.ScoreRecord{}, fmt.Errorf("%w: %q", types.ErrUnknownPlatform, p)
	}
	return s.refresh(ctx, kindOne, studentID, []types.Platform{p})
}

func (s *Service) refresh(ctx context.Context, kind, studentID string, ps []types.Platform) (rec model.ScoreRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "refresh."+kind, trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.Int("platforms", len(ps)),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.RecordRefresh(kind, outcome)
		metrics.RecordRefreshDuration(kind, float64(time.Since(start).Milliseconds()))
		span.End()
	}()

	handles, err := s.handles(ctx, studentID)
	if err != nil {
		return model.ScoreRecord{}, err
	}

	// Every task runs to completion; a store error in one task does not
	// cancel adapter calls in the others.
	var g errgroup.Group
	g.SetLimit(s.platformConcurrency)
	for _, p := range ps {
		g.Go(func() error {
			return s.refreshPlatform(ctx, studentID, p, handles[p])
		})
	}
	if err := g.Wait(); err != nil {
		return model.ScoreRecord{}, err
	}

	return s.recompute(ctx, studentID)
}

// refreshPlatform runs one platform task. It returns an error only when the
// canonical store write fails.
func (s *Service) refreshPlatform(ctx context.Context, studentID string, p types.Platform, handle string) error {
	ctx, span := s.tracer.Start(ctx, "refresh.platform", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("platform", p.String()),
	))
	defer span.End()

	handle = strings.TrimSpace(handle)
	if handle == "" {
		span.SetAttributes(attribute.String("outcome", outcomeUnlinked))
		if err := s.store.DeleteRecord(ctx, studentID, p); err != nil {
			return fmt.Errorf("%w: delete %s record: %w", ErrPersist, p, err)
		}
		return nil
	}

	res := s.platforms.Fetch(ctx, p, handle)
	metrics.RecordPlatformFetchLatency(p.String(), float64(res.Latency.Milliseconds()))
	if !res.OK() {
		metrics.RecordPlatformFetch(p.String(), res.Reason)
		span.SetAttributes(attribute.String("outcome", res.Reason))
		s.logger.Warn(ctx, "platform fetch failed, keeping previous record",
			logger.String("studentID", studentID),
			logger.String("platform", p.String()),
			logger.String("reason", res.Reason),
			logger.Duration("latency", res.Latency),
			logger.Error(res.Err),
		)
		return nil
	}

	rec, ok := normalize.Normalize(p, handle, res.Raw)
	if !ok {
		metrics.RecordPlatformFetch(p.String(), "unnormalizable")
		return nil
	}
	rec.FetchedAt = s.now()
	if err := s.store.SetRecord(ctx, studentID, *rec); err != nil {
		return fmt.Errorf("%w: set %s record: %w", ErrPersist, p, err)
	}
	metrics.RecordPlatformFetch(p.String(), outcomeFetched)
	span.SetAttributes(attribute.String("outcome", outcomeFetched))
	return nil
}

// handles returns the student's linked handles or ErrUnknownStudent.
func (s *Service) handles(ctx context.Context, studentID string) (map[types.Platform]string, error) {
	h, err := s.store.Handles(ctx, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load handles: %w", ErrPersist, err)
	}
	return h, nil
}

// RefreshBatch refreshes students in fixed-size chunks. Each chunk runs
// concurrently and completes before the next one starts. Per-student
// failures are reported, not returned.
func (s *Service) RefreshBatch(ctx context.Context, studentIDs []string) BatchReport {
	return s.runBatch(ctx, kindBatch, studentIDs, func(ctx context.Context, id string) error {
		_, err := s.RefreshAll(ctx, id)
		return err
	})
}

// RecomputeAll recomputes every known student from stored canonical records
// without calling any adapter. Used after a formula change.
func (s *Service) RecomputeAll(ctx context.Context) (BatchReport, error) {
	ids, err := s.store.Students(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("%w: list students: %w", ErrPersist, err)
	}
	return s.runBatch(ctx, kindRecompute, ids, func(ctx context.Context, id string) error {
		_, err := s.recompute(ctx, id)
		return err
	}), nil
}

func (s *Service) runBatch(ctx context.Context, kind string, ids []string, fn func(context.Context, string) error) BatchReport {
	ctx, span := s.tracer.Start(ctx, "batch."+kind, trace.WithAttributes(attribute.Int("students", len(ids))))
	defer span.End()

	report := BatchReport{Total: len(ids)}
	var mu sync.Mutex
	fail := func(id string, err error) {
		if report.Failed == nil {
			report.Failed = make(map[string]string)
		}
		report.Failed[id] = err.Error()
	}

	done := 0
	for done < len(ids) && ctx.Err() == nil {
		end := min(done+s.batchSize, len(ids))

		var g errgroup.Group
		for _, id := range ids[done:end] {
			g.Go(func() error {
				err := fn(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					fail(id, err)
				} else {
					report.Succeeded++
				}
				return nil
			})
		}
		_ = g.Wait()
		done = end
	}
	// Chunks never started after cancellation count as failed.
	for _, id := range ids[done:] {
		fail(id, ctx.Err())
	}

	s.logger.Info(ctx, "batch finished",
		logger.String("kind", kind),
		logger.Int("total", report.Total),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", len(report.Failed)),
	)
	return report
}
