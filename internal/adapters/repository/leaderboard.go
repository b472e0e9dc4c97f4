package repository

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/codesync/pkg/metrics"
)

// Treap-based, in-memory Ranking implementation.
//
// Ordering: score DESC, then studentID ASC (deterministic). "less" means
// ranks earlier, so in-order traversal yields the leaderboard best first.
// Students with equal scores share a rank (1, 1, 3).

type rankEntry struct {
	score      float64
	display    int
	computedAt time.Time
}

// treap node
type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, fresh *node) *node {
	if n == nil {
		return fresh
	}
	if less(fresh.score, fresh.id, n.score, n.id) {
		n.left = insert(n.left, fresh)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, fresh)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes have a strictly higher score.
func countAbove(n *node, score float64) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit nodes in rank order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// TreapLeaderboard ranks students by their latest CodeSync score.
type TreapLeaderboard struct {
	mu   sync.RWMutex
	root *node
	byID map[string]rankEntry
	rng  *rand.Rand
	seed int64
}

// NewTreapLeaderboard constructs an empty leaderboard.
func NewTreapLeaderboard(opts ...LeaderboardOption) *TreapLeaderboard {
	l := &TreapLeaderboard{
		byID: make(map[string]rankEntry),
		seed: time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.rng = rand.New(rand.NewSource(l.seed)) //nolint:gosec // priorities only need to be well spread
	return l
}

// Upsert implements Ranking.Upsert in O(log n) expected time. A score
// computed before the one already ranked is ignored and false is returned.
func (l *TreapLeaderboard) Upsert(ctx context.Context, studentID string, score float64, display int, computedAt time.Time) bool {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryLatency("leaderboard_upsert", float64(time.Since(start).Milliseconds()))
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.byID[studentID]; ok {
		if old.computedAt.After(computedAt) {
			metrics.RecordErrorByComponent("repository", "stale_ranking")
			return false
		}
		l.root = deleteNode(l.root, studentID, old.score)
	}
	l.byID[studentID] = rankEntry{score: score, display: display, computedAt: computedAt}
	l.root = insert(l.root, &node{id: studentID, score: score, prio: l.rng.Uint64(), size: 1})
	metrics.UpdateRankedStudents(len(l.byID))
	return true
}

// Remove drops the student from the ranking.
func (l *TreapLeaderboard) Remove(ctx context.Context, studentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.byID[studentID]; ok {
		l.root = deleteNode(l.root, studentID, old.score)
		delete(l.byID, studentID)
		metrics.UpdateRankedStudents(len(l.byID))
	}
}

// Rank returns the current rank and score for a student in O(log n).
func (l *TreapLeaderboard) Rank(ctx context.Context, studentID string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.byID[studentID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:         countAbove(l.root, e.score) + 1,
		StudentID:    studentID,
		Score:        e.score,
		DisplayScore: e.display,
	}, nil
}

// TopN returns the top N entries ordered by score desc.
func (l *TreapLeaderboard) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	nodes := make([]*node, 0, min(n, len(l.byID)))
	collectTopN(l.root, n, &nodes)

	out := make([]Entry, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.score == nodes[i-1].score {
			rank = out[i-1].Rank
		}
		out[i] = Entry{Rank: rank, StudentID: nd.id, Score: nd.score, DisplayScore: l.byID[nd.id].display}
	}
	return out, nil
}

// Count returns the total number of ranked students.
func (l *TreapLeaderboard) Count(ctx context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}
