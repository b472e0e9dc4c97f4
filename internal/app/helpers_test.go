package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/codesync/internal/adapters/platforms"
	"github.com/okian/codesync/internal/adapters/repository"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/normalize"
	"github.com/okian/codesync/internal/domain/types"
	"github.com/okian/codesync/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

var errStoreDown = errors.New("store down")

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakePlatforms serves a payload per platform and can be told to fail.
type fakePlatforms struct {
	mu       sync.Mutex
	payloads map[types.Platform]normalize.Raw
	failing  map[types.Platform]bool
	calls    map[types.Platform]int
}

func newFakePlatforms() *fakePlatforms {
	f := &fakePlatforms{
		payloads: map[types.Platform]normalize.Raw{},
		failing:  map[types.Platform]bool{},
		calls:    map[types.Platform]int{},
	}
	for i, p := range types.AllPlatforms {
		f.payloads[p] = normalize.Raw{
			"problemsSolved": float64(100 * (i + 1)),
			"rating":         float64(1200 + 100*i),
			"contests":       float64(5 + i),
			"contributions":  float64(300),
			"publicRepos":    float64(12),
		}
	}
	return f
}

func (f *fakePlatforms) fail(ps ...types.Platform) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range ps {
		f.failing[p] = true
	}
}

func (f *fakePlatforms) set(p types.Platform, raw normalize.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[p] = raw
}

func (f *fakePlatforms) callCount(p types.Platform) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[p]
}

func (f *fakePlatforms) registry() *platforms.Registry {
	opts := []platforms.Option{platforms.WithTimeout(time.Second)}
	for _, p := range types.AllPlatforms {
		opts = append(opts, platforms.WithAdapter(p, platforms.AdapterFunc(
			func(ctx context.Context, handle string) (normalize.Raw, error) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.calls[p]++
				if f.failing[p] {
					return nil, errors.New("upstream unavailable")
				}
				out := make(normalize.Raw, len(f.payloads[p]))
				for k, v := range f.payloads[p] {
					out[k] = v
				}
				return out, nil
			})))
	}
	return platforms.NewRegistry(opts...)
}

// flakyStore fails selected writes on demand.
type flakyStore struct {
	*repository.MemoryStore
	failSet    atomic.Bool
	failCommit atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: repository.NewMemoryStore()}
}

func (s *flakyStore) SetRecord(ctx context.Context, studentID string, rec model.CanonicalRecord) error {
	if s.failSet.Load() {
		return errStoreDown
	}
	return s.MemoryStore.SetRecord(ctx, studentID, rec)
}

func (s *flakyStore) Commit(ctx context.Context, rec model.ScoreRecord, snap model.Snapshot) error {
	if s.failCommit.Load() {
		return errStoreDown
	}
	return s.MemoryStore.Commit(ctx, rec, snap)
}

func allHandles(prefix string) map[string]string {
	out := make(map[string]string, len(types.AllPlatforms))
	for _, p := range types.AllPlatforms {
		out[string(p)] = prefix + "-" + string(p)
	}
	return out
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
