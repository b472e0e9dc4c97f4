// Package repository defines the document store contracts for canonical
// records, student profiles, score records and snapshots, plus the ranking
// index built on top of them.
package repository

import (
	"context"
	"time"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/types"
)

// Entry represents a leaderboard row.
type Entry struct {
	Rank         int
	StudentID    string
	Score        float64
	DisplayScore int
}

// CanonicalStore holds one canonical record per (student, platform).
type CanonicalStore interface {
	// GetRecord returns ErrNotFound if the student has no record for p.
	GetRecord(ctx context.Context, studentID string, p types.Platform) (model.CanonicalRecord, error)
	// SetRecord overwrites the record for (studentID, rec.Platform).
	SetRecord(ctx context.Context, studentID string, rec model.CanonicalRecord) error
	// DeleteRecord removes the record; deleting a missing record is not an error.
	DeleteRecord(ctx context.Context, studentID string, p types.Platform) error
	// ListRecords returns every record of the student in platform order.
	ListRecords(ctx context.Context, studentID string) ([]model.CanonicalRecord, error)
}

// ProfileStore holds each student's linked platform handles.
type ProfileStore interface {
	// Handles returns ErrNotFound for an unknown student.
	Handles(ctx context.Context, studentID string) (map[types.Platform]string, error)
	SetHandles(ctx context.Context, studentID string, handles map[types.Platform]string) error
	// Students lists every known student id in ascending order.
	Students(ctx context.Context) ([]string, error)
}

// ScoreStore holds the cached score record and the snapshot history.
type ScoreStore interface {
	// GetScore returns ErrNotFound if no record was ever committed.
	GetScore(ctx context.Context, studentID string) (model.ScoreRecord, error)
	// Commit appends snap and replaces the score record atomically: either
	// both are stored or neither is. A record whose ComputedAt is before the
	// stored one's leaves the stored record in place.
	Commit(ctx context.Context, rec model.ScoreRecord, snap model.Snapshot) error
	// Snapshots returns up to limit most recent snapshots, oldest first.
	// limit <= 0 returns all of them.
	Snapshots(ctx context.Context, studentID string, limit int) ([]model.Snapshot, error)
}

// Store bundles every persistence contract the service needs.
type Store interface {
	CanonicalStore
	ProfileStore
	ScoreStore
}

// Ranking orders students by CodeSync score.
type Ranking interface {
	// Upsert sets the student's score unless the ranked one was computed
	// later. It reports whether the score was applied.
	Upsert(ctx context.Context, studentID string, score float64, display int, computedAt time.Time) bool
	Remove(ctx context.Context, studentID string)
	// Rank returns ErrNotFound if the student is not ranked.
	Rank(ctx context.Context, studentID string) (Entry, error)
	// TopN returns the top-N entries ordered by score desc.
	TopN(ctx context.Context, n int) ([]Entry, error)
	// Count returns the number of ranked students.
	Count(ctx context.Context) int
}

// layeredStore serves score reads and writes from scores and everything
// else from the embedded Store.
type layeredStore struct {
	Store
	scores ScoreStore
}

// WithScoreStore returns base with its ScoreStore half replaced by scores,
// typically a RedisScoreCache wrapping base.
func WithScoreStore(base Store, scores ScoreStore) Store {
	if scores == nil {
		return base
	}
	return &layeredStore{Store: base, scores: scores}
}

func (s *layeredStore) GetScore(ctx context.Context, studentID string) (model.ScoreRecord, error) {
	return s.scores.GetScore(ctx, studentID)
}

func (s *layeredStore) Commit(ctx context.Context, rec model.ScoreRecord, snap model.Snapshot) error {
	return s.scores.Commit(ctx, rec, snap)
}

func (s *layeredStore) Snapshots(ctx context.Context, studentID string, limit int) ([]model.Snapshot, error) {
	return s.scores.Snapshots(ctx, studentID, limit)
}
