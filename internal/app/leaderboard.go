package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/types"
)

// TopN returns the n best-ranked students. Equal scores share a rank.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	entries, err := s.ranking.TopN(ctx, n)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, n)
	}
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = toEntry(e)
	}
	return out, nil
}

// Rank returns the student's leaderboard position. Students without a
// committed score are not ranked and yield ErrUnknownStudent.
func (s *Service) Rank(ctx context.Context, studentID string) (types.Entry, error) {
	e, err := s.ranking.Rank(ctx, studentID)
	if errors.Is(err, repository.ErrNotFound) {
		return types.Entry{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}
	if err != nil {
		return types.Entry{}, err
	}
	return toEntry(e), nil
}

func toEntry(e repository.Entry) types.Entry {
	return types.Entry{
		Rank:         e.Rank,
		StudentID:    e.StudentID,
		Score:        e.Score,
		DisplayScore: e.DisplayScore,
	}
}
