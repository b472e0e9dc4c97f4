package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTreapLeaderboard_BasicOperations(t *testing.T) {
	Convey("Given an empty leaderboard", t, func() {
		ctx := context.Background()
		lb := NewTreapLeaderboard(WithPrioritySeed(7))
		t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		So(lb.Count(ctx), ShouldEqual, 0)

		Convey("When students are upserted", func() {
			lb.Upsert(ctx, "carol", 40, 400, t0)
			lb.Upsert(ctx, "alice", 90, 900, t0)
			lb.Upsert(ctx, "bob", 90, 900, t0)
			lb.Upsert(ctx, "dave", 10, 100, t0)

			Convey("Then TopN orders by score desc and id asc with shared ranks", func() {
				top, err := lb.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(top, ShouldResemble, []Entry{
					{Rank: 1, StudentID: "alice", Score: 90, DisplayScore: 900},
					{Rank: 1, StudentID: "bob", Score: 90, DisplayScore: 900},
					{Rank: 3, StudentID: "carol", Score: 40, DisplayScore: 400},
					{Rank: 4, StudentID: "dave", Score: 10, DisplayScore: 100},
				})
			})

			Convey("Then Rank agrees with TopN", func() {
				e, err := lb.Rank(ctx, "bob")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
				e, err = lb.Rank(ctx, "carol")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 3)
			})

			Convey("When a score computed earlier arrives late", func() {
				applied := lb.Upsert(ctx, "alice", 5, 50, t0.Add(-time.Minute))

				Convey("Then the newer ranked score is kept", func() {
					So(applied, ShouldBeFalse)
					e, err := lb.Rank(ctx, "alice")
					So(err, ShouldBeNil)
					So(e.Score, ShouldEqual, 90)
					So(e.Rank, ShouldEqual, 1)
				})
			})

			Convey("When a score goes down", func() {
				So(lb.Upsert(ctx, "alice", 5, 50, t0.Add(time.Minute)), ShouldBeTrue)

				Convey("Then the student is re-ranked rather than kept at the best", func() {
					e, err := lb.Rank(ctx, "alice")
					So(err, ShouldBeNil)
					So(e.Rank, ShouldEqual, 4)
					So(e.Score, ShouldEqual, 5)
					So(lb.Count(ctx), ShouldEqual, 4)
				})
			})

			Convey("When a student is removed", func() {
				lb.Remove(ctx, "carol")
				_, err := lb.Rank(ctx, "carol")

				Convey("Then it is no longer ranked", func() {
					So(err, ShouldEqual, ErrNotFound)
					So(lb.Count(ctx), ShouldEqual, 3)
				})
			})

			Convey("When TopN is asked for fewer entries", func() {
				top, err := lb.TopN(ctx, 2)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 2)
			})
		})

		Convey("When the limit is invalid", func() {
			_, err := lb.TopN(ctx, 0)
			So(err, ShouldEqual, ErrInvalidLimit)
		})

		Convey("When an unknown student is ranked", func() {
			_, err := lb.Rank(ctx, "ghost")
			So(err, ShouldEqual, ErrNotFound)
		})
	})
}

func TestTreapLeaderboard_MatchesSort(t *testing.T) {
	ctx := context.Background()
	lb := NewTreapLeaderboard(WithPrioritySeed(1))
	rng := rand.New(rand.NewSource(3))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	want := map[string]float64{}

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("s%03d", rng.Intn(300))
		score := float64(rng.Intn(50))
		lb.Upsert(ctx, id, score, int(score*10), base.Add(time.Duration(i)*time.Second))
		want[id] = score
	}

	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if want[ids[i]] != want[ids[j]] {
			return want[ids[i]] > want[ids[j]]
		}
		return ids[i] < ids[j]
	})

	top, err := lb.TopN(ctx, len(ids))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(top))
	}
	for i, e := range top {
		if e.StudentID != ids[i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[i], e.StudentID)
		}
		r, err := lb.Rank(ctx, e.StudentID)
		if err != nil {
			t.Fatalf("rank %s: %v", e.StudentID, err)
		}
		if r.Rank != e.Rank {
			t.Errorf("%s: Rank()=%d TopN=%d", e.StudentID, r.Rank, e.Rank)
		}
	}
}

func TestTreapLeaderboard_Concurrent(t *testing.T) {
	ctx := context.Background()
	lb := NewTreapLeaderboard()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("g%d-%d", g, i%20)
				lb.Upsert(ctx, id, float64(i%37), i, base.Add(time.Duration(i)*time.Millisecond))
				_, _ = lb.Rank(ctx, id)
				_, _ = lb.TopN(ctx, 5)
			}
		}(g)
	}
	wg.Wait()
	if got := lb.Count(ctx); got != 160 {
		t.Errorf("expected 160 students, got %d", got)
	}
}
