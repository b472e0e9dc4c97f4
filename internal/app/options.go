package service

import (
	"time"

	"github.com/okian/codesync/internal/adapters/platforms"
	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the document store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRanking sets the leaderboard index.
func WithRanking(r repository.Ranking) Option {
	return func(s *Service) {
		if r != nil {
			s.ranking = r
		}
	}
}

// WithPlatforms sets the adapter registry.
func WithPlatforms(r *platforms.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.platforms = r
		}
	}
}

// WithScorer replaces the scoring pipeline.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithScoreTTL sets how long a computed score stays fresh.
func WithScoreTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.scoreTTL = ttl
		}
	}
}

// WithPlatformConcurrency bounds concurrent adapter calls per refresh.
func WithPlatformConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.platformConcurrency = n
		}
	}
}

// WithBatchSize sets how many students a batch refreshes at once.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithWorkerCount sets the number of async refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending refresh jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the number of tracked in-flight jobs.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRefreshSchedule sets the cron spec for refreshing every student.
// An empty spec disables the scheduler.
func WithRefreshSchedule(spec string) Option {
	return func(s *Service) {
		s.refreshSpec = spec
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the generator of snapshot and job id suffixes.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
