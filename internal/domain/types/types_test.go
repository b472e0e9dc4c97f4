package types_test

import (
	"errors"
	"testing"

	types "github.com/okian/codesync/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParsePlatform(t *testing.T) {
	Convey("Given platform identifiers", t, func() {
		Convey("When parsing every known platform", func() {
			Convey("Then each one round-trips", func() {
				for _, p := range types.AllPlatforms {
					got, err := types.ParsePlatform(string(p))
					So(err, ShouldBeNil)
					So(got, ShouldEqual, p)
				}
			})
		})

		Convey("When parsing mixed case with whitespace", func() {
			got, err := types.ParsePlatform("  GitHub ")

			Convey("Then it normalises the value", func() {
				So(err, ShouldBeNil)
				So(got, ShouldEqual, types.GitHub)
			})
		})

		Convey("When parsing an unknown platform", func() {
			_, err := types.ParsePlatform("topcoder")

			Convey("Then it returns ErrUnknownPlatform", func() {
				So(errors.Is(err, types.ErrUnknownPlatform), ShouldBeTrue)
			})
		})

		Convey("Then there are exactly six platforms", func() {
			So(len(types.AllPlatforms), ShouldEqual, 6)
		})
	})
}

func TestParseBadgeLevel(t *testing.T) {
	Convey("Given badge level strings", t, func() {
		So(types.ParseBadgeLevel("Gold"), ShouldEqual, types.BadgeGold)
		So(types.ParseBadgeLevel("legendary"), ShouldEqual, types.BadgeLegendary)
		So(types.ParseBadgeLevel("platinum"), ShouldEqual, types.BadgeUnknown)
		So(types.ParseBadgeLevel(""), ShouldEqual, types.BadgeUnknown)
	})
}
