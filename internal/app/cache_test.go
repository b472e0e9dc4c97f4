package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/codesync/internal/app"
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/scoring"
	"github.com/okian/codesync/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_GetScore(t *testing.T) {
	Convey("Given a student with a committed score", t, func() {
		ctx := context.Background()
		clk := newClock()
		store := newFlakyStore()
		svc := service.New(
			service.WithStore(store),
			service.WithPlatforms(newFakePlatforms().registry()),
			service.WithClock(clk.Now),
			service.WithScoreTTL(24*time.Hour),
		)
		_, _ = svc.SetHandles(ctx, "s1", allHandles("s1"))
		committed, err := svc.RefreshAll(ctx, "s1")
		So(err, ShouldBeNil)

		snapshotCount := func() int {
			snaps, _ := store.Snapshots(ctx, "s1", 0)
			return len(snaps)
		}

		Convey("While it is fresh", func() {
			clk.Advance(time.Hour)
			a, errA := svc.GetScore(ctx, "s1", false)
			b, errB := svc.GetScore(ctx, "s1", true)

			Convey("Then it is served as stored without recomputing", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, committed)
				So(b, ShouldResemble, committed)
				So(snapshotCount(), ShouldEqual, 1)
			})
		})

		Convey("Once it has expired", func() {
			clk.Advance(25 * time.Hour)

			Convey("Then a read without recompute returns the stale record", func() {
				rec, err := svc.GetScore(ctx, "s1", false)
				So(err, ShouldBeNil)
				So(rec.ComputedAt, ShouldEqual, committed.ComputedAt)
				So(snapshotCount(), ShouldEqual, 1)
			})

			Convey("Then a read with recompute computes exactly once", func() {
				rec, err := svc.GetScore(ctx, "s1", true)
				So(err, ShouldBeNil)
				So(rec.ComputedAt, ShouldEqual, clk.Now())
				So(rec.ExpiresAt, ShouldEqual, clk.Now().Add(24*time.Hour))

				again, err := svc.GetScore(ctx, "s1", true)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, rec)
				So(snapshotCount(), ShouldEqual, 2)
			})
		})

		Convey("When the stored record has an older formula version", func() {
			legacy := committed.Clone()
			legacy.Version = "legacy"
			legacy.CodeSyncScore = 1
			So(store.Commit(ctx, legacy, model.SnapshotOf("legacy-1", legacy)), ShouldBeNil)

			rec, err := svc.GetScore(ctx, "s1", true)

			Convey("Then it is recomputed despite not having expired", func() {
				So(err, ShouldBeNil)
				So(rec.Version, ShouldEqual, scoring.FormulaVersion)
				So(rec.CodeSyncScore, ShouldEqual, committed.CodeSyncScore)
				So(snapshotCount(), ShouldEqual, 3)
			})
		})

		Convey("When the explanation is requested", func() {
			res, err := svc.Explain(ctx, "s1")

			Convey("Then it matches the committed score and persists nothing", func() {
				So(err, ShouldBeNil)
				So(res.Breakdown, ShouldHaveLength, len(types.AllPlatforms))
				So(res.CodeSyncScore, ShouldEqual, committed.CodeSyncScore)
				So(snapshotCount(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a linked student that was never scored", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithPlatforms(newFakePlatforms().registry()))
		_, _ = svc.SetHandles(ctx, "s2", map[string]string{"leetcode": "s2"})

		Convey("Then reading the score computes and persists one", func() {
			rec, err := svc.GetScore(ctx, "s2", false)
			So(err, ShouldBeNil)
			So(rec.StudentID, ShouldEqual, "s2")
			So(rec.CodeSyncScore, ShouldEqual, 0)
			snaps, _ := svc.History(ctx, "s2", 0)
			So(snaps, ShouldHaveLength, 1)
		})
	})

	Convey("Given an unknown student", t, func() {
		svc := service.New()

		Convey("Then score and history report it", func() {
			_, err := svc.GetScore(context.Background(), "ghost", true)
			So(errors.Is(err, service.ErrUnknownStudent), ShouldBeTrue)
			_, err = svc.History(context.Background(), "ghost", 5)
			So(errors.Is(err, service.ErrUnknownStudent), ShouldBeTrue)
		})
	})
}

func TestService_SetHandles(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := service.New()

		Convey("Then unknown platforms are rejected", func() {
			_, err := svc.SetHandles(ctx, "s1", map[string]string{"topcoder": "x"})
			So(errors.Is(err, types.ErrUnknownPlatform), ShouldBeTrue)
		})

		Convey("Then a blank id is rejected", func() {
			_, err := svc.SetHandles(ctx, "  ", map[string]string{"leetcode": "x"})
			So(errors.Is(err, service.ErrInvalidStudent), ShouldBeTrue)
		})

		Convey("Then keys are case-insensitive and blank handles are dropped", func() {
			got, err := svc.SetHandles(ctx, "s1", map[string]string{"LeetCode": " alice ", "github": ""})
			So(err, ShouldBeNil)
			So(got, ShouldResemble, map[types.Platform]string{types.LeetCode: "alice"})
			stored, err := svc.Handles(ctx, "s1")
			So(err, ShouldBeNil)
			So(stored, ShouldResemble, got)
		})
	})
}
