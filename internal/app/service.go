// Package service orchestrates platform refreshes, score computation, the
// score cache and the async refresh pipeline behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	refreshqueue "github.com/okian/codesync/internal/adapters/mq/queue"
	workerpool "github.com/okian/codesync/internal/adapters/mq/worker"
	"github.com/okian/codesync/internal/adapters/platforms"
	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/dedupe"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/pkg/logger"
	"github.com/okian/codesync/pkg/metrics"
	"github.com/okian/codesync/pkg/tracing"
)

// Default service configuration.
const (
	defaultScoreTTL            = 7 * 24 * time.Hour
	defaultPlatformConcurrency = 6
	defaultBatchSize           = 10
	defaultQueueSize           = 10_000
	defaultDedupeSize          = 50_000
	systemSampleInterval       = 10 * time.Second
	// A job that never released its claim stops blocking its key after this.
	claimTTL = 30 * time.Minute
)

// Service implements the API dependencies for the CodeSync scoring system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ranking   repository.Ranking
	platforms *platforms.Registry
	scorer    scoring.Scorer
	deduper   dedupe.Deduper
	jobs      *refreshqueue.InMemoryQueue
	pool      *workerpool.Pool
	scheduler *cron.Cron
	tracer    trace.Tracer

	// Configuration
	scoreTTL            time.Duration
	platformConcurrency int
	batchSize           int
	workerCount         int
	queueSize           int
	dedupeSize          int
	refreshSpec         string
	now                 func() time.Time
	newID               func() string

	// State
	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service. Without options it uses an in-memory store,
// an in-memory leaderboard and a registry with no adapters.
func New(opts ...Option) *Service {
	s := &Service{
		scoreTTL:            defaultScoreTTL,
		platformConcurrency: defaultPlatformConcurrency,
		batchSize:           defaultBatchSize,
		workerCount:         runtime.NumCPU(),
		queueSize:           defaultQueueSize,
		dedupeSize:          defaultDedupeSize,
		now:                 time.Now,
		newID:               uuid.NewString,
		tracer:              tracing.Tracer("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.ranking == nil {
		s.ranking = repository.NewTreapLeaderboard()
	}
	if s.platforms == nil {
		s.platforms = platforms.NewRegistry()
	}
	if s.scorer == nil {
		s.scorer = scoring.NewPipelineScorer()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
		dedupe.WithClaimTTL(claimTTL),
		dedupe.WithClock(s.now),
	)
	return s
}

// Start rebuilds the leaderboard and starts the workers and the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting codesync service...")

	if err := s.rebuildLeaderboard(ctx); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}

	// Background work outlives the caller's ctx and ends on Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.jobs = refreshqueue.NewInMemoryQueue(refreshqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.jobs, workerpool.HandlerFunc(s.HandleRefresh),
		workerpool.WithReleaser(s.deduper))
	s.pool.Start(runCtx)

	if s.refreshSpec != "" {
		sched, err := s.newScheduler(runCtx)
		if err != nil {
			cancel()
			_ = s.pool.Shutdown(ctx)
			return err
		}
		s.scheduler = sched
		s.scheduler.Start()
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.sampleSystem(runCtx)
	}()

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "codesync service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("refreshSchedule", s.refreshSpec),
		logger.Duration("scoreTTL", s.scoreTTL),
	)
	return nil
}

// Stop gracefully shuts down the scheduler and the workers.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping codesync service...")

	if s.scheduler != nil {
		// Wait for a running scheduled batch, bounded by ctx.
		select {
		case <-s.scheduler.Stop().Done():
		case <-ctx.Done():
			s.logger.Warn(ctx, "scheduled refresh still running at shutdown")
		}
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	s.cancel()
	s.bg.Wait()

	s.started = false
	s.logger.Info(ctx, "codesync service stopped")
}

// rebuildLeaderboard loads every committed score into the ranking index.
func (s *Service) rebuildLeaderboard(ctx context.Context) error {
	ids, err := s.store.Students(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := s.store.GetScore(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		s.ranking.Upsert(ctx, id, rec.CodeSyncScore, rec.DisplayScore, rec.ComputedAt)
	}
	metrics.UpdateTotalStudents(len(ids))
	s.logger.Info(ctx, "leaderboard rebuilt",
		logger.Int("students", len(ids)),
		logger.Int("ranked", s.ranking.Count(ctx)),
	)
	return nil
}

// sampleSystem feeds the runtime gauges until ctx ends.
func (s *Service) sampleSystem(ctx context.Context) {
	ticker := time.NewTicker(systemSampleInterval)
	defer ticker.Stop()

	var lastGC uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			metrics.UpdateSystemMemoryUsage(ms.HeapInuse)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
			ring := uint32(len(ms.PauseNs))
			from := lastGC
			if ms.NumGC > ring && from < ms.NumGC-ring {
				from = ms.NumGC - ring
			}
			for n := from; n < ms.NumGC; n++ {
				pause := ms.PauseNs[n%ring]
				metrics.RecordSystemGCPauseTime(float64(pause) / float64(time.Millisecond))
			}
			lastGC = ms.NumGC
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":             s.started,
		"formulaVersion":      scoring.FormulaVersion,
		"scoreTTL":            s.scoreTTL.String(),
		"platformConcurrency": s.platformConcurrency,
		"batchSize":           s.batchSize,
		"workerCount":         s.workerCount,
		"queueSize":           s.queueSize,
		"refreshSchedule":     s.refreshSpec,
		"rankedStudents":      s.ranking.Count(ctx),
		"pendingJobs":         s.deduper.Size(),
	}

	if s.started {
		stats["queueLength"] = s.jobs.Len(ctx)
		stats["busyWorkers"] = s.pool.Busy()
	}
	if ids, err := s.store.Students(ctx); err == nil {
		stats["totalStudents"] = len(ids)
		metrics.UpdateTotalStudents(len(ids))
	}
	return stats
}
