package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/metrics"
)

// MemoryStore is an in-process Store. Values are copied on every read and
// write so callers never alias stored data.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]map[types.Platform]string
	records   map[string]map[types.Platform]model.CanonicalRecord
	scores    map[string]model.ScoreRecord
	snapshots map[string][]model.Snapshot
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]map[types.Platform]string),
		records:   make(map[string]map[types.Platform]model.CanonicalRecord),
		scores:    make(map[string]model.ScoreRecord),
		snapshots: make(map[string][]model.Snapshot),
	}
}

func validStudent(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidStudent
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds()))
}

// GetRecord implements CanonicalStore.
func (s *MemoryStore) GetRecord(ctx context.Context, studentID string, p types.Platform) (model.CanonicalRecord, error) {
	defer observe("get_record", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[studentID][p]
	if !ok {
		return model.CanonicalRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// SetRecord implements CanonicalStore.
func (s *MemoryStore) SetRecord(ctx context.Context, studentID string, rec model.CanonicalRecord) error {
	defer observe("set_record", time.Now())
	if err := validStudent(studentID); err != nil {
		return err
	}
	if !rec.Platform.Valid() {
		return fmt.Errorf("%w: platform %q", ErrInvalidRecord, rec.Platform)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byPlatform, ok := s.records[studentID]
	if !ok {
		byPlatform = make(map[types.Platform]model.CanonicalRecord)
		s.records[studentID] = byPlatform
	}
	byPlatform[rec.Platform] = rec.Clone()
	return nil
}

// DeleteRecord implements CanonicalStore.
func (s *MemoryStore) DeleteRecord(ctx context.Context, studentID string, p types.Platform) error {
	defer observe("delete_record", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[studentID], p)
	return nil
}

// ListRecords implements CanonicalStore.
func (s *MemoryStore) ListRecords(ctx context.Context, studentID string) ([]model.CanonicalRecord, error) {
	defer observe("list_records", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPlatform := s.records[studentID]
	out := make([]model.CanonicalRecord, 0, len(byPlatform))
	for _, p := range types.AllPlatforms {
		if rec, ok := byPlatform[p]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Handles implements ProfileStore.
func (s *MemoryStore) Handles(ctx context.Context, studentID string) (map[types.Platform]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.profiles[studentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyHandles(h), nil
}

// SetHandles implements ProfileStore.
func (s *MemoryStore) SetHandles(ctx context.Context, studentID string, handles map[types.Platform]string) error {
	if err := validStudent(studentID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[studentID] = copyHandles(handles)
	return nil
}

// Students implements ProfileStore.
func (s *MemoryStore) Students(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// GetScore implements ScoreStore.
func (s *MemoryStore) GetScore(ctx context.Context, studentID string) (model.ScoreRecord, error) {
	defer observe("get_score", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.scores[studentID]
	if !ok {
		return model.ScoreRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Commit implements ScoreStore. Both writes happen under one lock; the
// snapshot is always appended, the record only replaces an older one.
func (s *MemoryStore) Commit(ctx context.Context, rec model.ScoreRecord, snap model.Snapshot) error {
	defer observe("commit", time.Now())
	if err := validStudent(rec.StudentID); err != nil {
		return err
	}
	if snap.StudentID != rec.StudentID {
		return fmt.Errorf("%w: snapshot belongs to %q", ErrInvalidStudent, snap.StudentID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.scores[rec.StudentID]; !ok || !cur.ComputedAt.After(rec.ComputedAt) {
		s.scores[rec.StudentID] = rec.Clone()
	}
	s.snapshots[rec.StudentID] = append(s.snapshots[rec.StudentID], cloneSnapshot(snap))
	return nil
}

// Snapshots implements ScoreStore.
func (s *MemoryStore) Snapshots(ctx context.Context, studentID string, limit int) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.snapshots[studentID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Snapshot, len(all))
	for i, snap := range all {
		out[i] = cloneSnapshot(snap)
	}
	return out, nil
}

func copyHandles(in map[types.Platform]string) map[types.Platform]string {
	out := make(map[types.Platform]string, len(in))
	for p, h := range in {
		out[p] = h
	}
	return out
}

func cloneSnapshot(s model.Snapshot) model.Snapshot {
	out := s
	if s.PlatformSkills != nil {
		out.PlatformSkills = make(map[types.Platform]float64, len(s.PlatformSkills))
		for k, v := range s.PlatformSkills {
			out.PlatformSkills[k] = v
		}
	}
	return out
}
