package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/logger"
)

// Handles returns the student's linked platform handles.
func (s *Service) Handles(ctx context.Context, studentID string) (map[types.Platform]string, error) {
	return s.handles(ctx, studentID)
}

// SetHandles replaces the student's linked handles, creating the student if
// needed. Keys are platform ids; a blank handle unlinks the platform.
// Records of platforms that are no longer linked are deleted, and an
// existing score is recomputed so it stops counting them.
func (s *Service) SetHandles(ctx context.Context, studentID string, raw map[string]string) (map[types.Platform]string, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, ErrInvalidStudent
	}

	next := make(map[types.Platform]string, len(raw))
	for k, v := range raw {
		p, err := types.ParsePlatform(k)
		if err != nil {
			return nil, err
		}
		if h := strings.TrimSpace(v); h != "" {
			next[p] = h
		}
	}

	prev, err := s.store.Handles(ctx, studentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: load handles: %w", ErrPersist, err)
	}
	if err := s.store.SetHandles(ctx, studentID, next); err != nil {
		return nil, fmt.Errorf("%w: set handles: %w", ErrPersist, err)
	}

	var unlinked []types.Platform
	for _, p := range types.AllPlatforms {
		if _, linked := next[p]; linked {
			continue
		}
		if err := s.store.DeleteRecord(ctx, studentID, p); err != nil {
			return nil, fmt.Errorf("%w: delete %s record: %w", ErrPersist, p, err)
		}
		if _, was := prev[p]; was {
			unlinked = append(unlinked, p)
		}
	}

	s.logger.Info(ctx, "handles updated",
		logger.String("studentID", studentID),
		logger.Int("linked", len(next)),
		logger.Int("unlinked", len(unlinked)),
	)

	if len(unlinked) > 0 {
		if _, err := s.store.GetScore(ctx, studentID); err == nil {
			if _, err := s.recompute(ctx, studentID); err != nil {
				return nil, err
			}
		}
	}
	return next, nil
}
