// Package types contains common types used across the application
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlatform is returned when a platform id is outside the closed set.
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform identifies one of the external sources a student can link.
type Platform string

// Known platforms.
const (
	LeetCode   Platform = "leetcode"
	Codeforces Platform = "codeforces"
	CodeChef   Platform = "codechef"
	AtCoder    Platform = "atcoder"
	HackerRank Platform = "hackerrank"
	GitHub     Platform = "github"
)

// AllPlatforms lists every platform in a fixed order. Anything that iterates
// platforms must use this order so results are reproducible.
var AllPlatforms = []Platform{LeetCode, Codeforces, CodeChef, AtCoder, HackerRank, GitHub}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string { return string(p) }

// ParsePlatform converts s (case-insensitive) to a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}

// BadgeLevel grades a badge. Unrecognised levels collapse to BadgeUnknown.
type BadgeLevel string

// Badge levels.
const (
	BadgeBronze    BadgeLevel = "bronze"
	BadgeSilver    BadgeLevel = "silver"
	BadgeGold      BadgeLevel = "gold"
	BadgeLegendary BadgeLevel = "legendary"
	BadgeUnknown   BadgeLevel = "unknown"
)

// ParseBadgeLevel never fails; anything it does not recognise is BadgeUnknown.
func ParseBadgeLevel(s string) BadgeLevel {
	switch l := BadgeLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case BadgeBronze, BadgeSilver, BadgeGold, BadgeLegendary:
		return l
	default:
		return BadgeUnknown
	}
}

// Entry represents a leaderboard entry
type Entry struct {
	Rank         int     `json:"rank"`
	StudentID    string  `json:"student_id"`
	Score        float64 `json:"codesync_score"`
	DisplayScore int     `json:"display_score"`
}
