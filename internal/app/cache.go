package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/metrics"
)

const snapshotTimeLayout = "20060102T150405.000000000Z"

// GetScore returns the cached score record. A missing record is always
// computed and persisted. A stale record (expired or from an older formula
// version) is recomputed only when recomputeIfExpired is set.
func (s *Service) GetScore(ctx context.Context, studentID string, recomputeIfExpired bool) (model.ScoreRecord, error) {
	rec, err := s.store.GetScore(ctx, studentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.RecordScoreCacheMiss()
		if _, err := s.handles(ctx, studentID); err != nil {
			return model.ScoreRecord{}, err
		}
		return s.recompute(ctx, studentID)
	case err != nil:
		return model.ScoreRecord{}, fmt.Errorf("%w: load score: %w", ErrPersist, err)
	}

	if rec.Fresh(s.now(), scoring.FormulaVersion) {
		metrics.RecordScoreCacheHit()
		return rec, nil
	}
	metrics.RecordScoreCacheStale()
	if !recomputeIfExpired {
		return rec, nil
	}
	return s.recompute(ctx, studentID)
}

// History returns up to limit of the student's most recent snapshots,
// oldest first. limit <= 0 returns the full history.
func (s *Service) History(ctx context.Context, studentID string, limit int) ([]model.Snapshot, error) {
	if _, err := s.handles(ctx, studentID); err != nil {
		return nil, err
	}
	snaps, err := s.store.Snapshots(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: load snapshots: %w", ErrPersist, err)
	}
	return snaps, nil
}

// Explain runs the scoring pipeline over the stored records without
// persisting anything and returns the per-platform breakdown.
func (s *Service) Explain(ctx context.Context, studentID string) (scoring.Result, error) {
	if _, err := s.handles(ctx, studentID); err != nil {
		return scoring.Result{}, err
	}
	records, err := s.store.ListRecords(ctx, studentID)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("%w: list records: %w", ErrPersist, err)
	}
	return s.scorer.Score(ctx, scoring.Input{StudentID: studentID, Records: records})
}

// recompute merges the stored canonical records, scores them and commits
// the new record together with its snapshot. On a commit failure the
// previously committed record stays in place.
func (s *Service) recompute(ctx context.Context, studentID string) (rec model.ScoreRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "score.recompute", trace.WithAttributes(
		attribute.String("student.id", studentID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	metrics.RecordScoreRecompute()
	records, err := s.store.ListRecords(ctx, studentID)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("%w: list records: %w", ErrPersist, err)
	}

	start := time.Now()
	res, err := s.scorer.Score(ctx, scoring.Input{StudentID: studentID, Records: records})
	if err != nil {
		metrics.RecordScoringError()
		return model.ScoreRecord{}, fmt.Errorf("score %s: %w", studentID, err)
	}
	metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))

	now := s.now().UTC()
	rec = model.ScoreRecord{
		StudentID:           studentID,
		CodeSyncScore:       res.CodeSyncScore,
		DisplayScore:        res.DisplayScore,
		PlatformSkills:      res.PlatformSkills,
		TotalProblemsSolved: res.TotalProblemsSolved,
		ComputedAt:          now,
		ExpiresAt:           now.Add(s.scoreTTL),
		Version:             scoring.FormulaVersion,
	}
	snap := model.SnapshotOf(s.snapshotID(now), rec)

	if err := s.store.Commit(ctx, rec, snap); err != nil {
		metrics.RecordScoringError()
		s.logger.Error(ctx, "score commit failed, previous record kept",
			logger.String("studentID", studentID),
			logger.Error(err),
		)
		return model.ScoreRecord{}, fmt.Errorf("%w: commit score: %w", ErrPersist, err)
	}
	metrics.RecordSnapshotAppended()
	s.ranking.Upsert(ctx, studentID, rec.CodeSyncScore, rec.DisplayScore, rec.ComputedAt)

	span.SetAttributes(
		attribute.Float64("score", rec.CodeSyncScore),
		attribute.Int("display", rec.DisplayScore),
	)
	s.logger.Debug(ctx, "score recomputed",
		logger.String("studentID", studentID),
		logger.Float64("score", rec.CodeSyncScore),
		logger.Int("displayScore", rec.DisplayScore),
		logger.Int("platforms", len(res.Breakdown)),
	)
	return rec, nil
}

// snapshotID sorts by creation time; the suffix keeps equal timestamps apart.
func (s *Service) snapshotID(at time.Time) string {
	return at.Format(snapshotTimeLayout) + "-" + s.newID()
}
