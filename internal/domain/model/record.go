package model

import (
	"time"

	"github.com/okian/codesync/internal/domain/types"
)

// DifficultyBreakdown splits solved problems by the platform's difficulty labels.
type DifficultyBreakdown struct {
	Easy   float64 `json:"easy"`
	Medium float64 `json:"medium"`
	Hard   float64 `json:"hard"`
}

// Badge is an achievement badge shown on a platform profile.
type Badge struct {
	Name  string           `json:"name"`
	Level types.BadgeLevel `json:"level"`
}

// Certificate is a certification earned on a platform.
type Certificate struct {
	Name string `json:"name"`
}

// DeveloperMetrics holds GitHub activity counters.
type DeveloperMetrics struct {
	Contributions float64 `json:"contributionsLastYear"`
	PublicRepos   float64 `json:"publicRepos"`
	StarsReceived float64 `json:"starsReceived"`
}

// CanonicalRecord is the normalized statistics for one (student, platform).
// Zero values and nil pointers mean "unknown".
type CanonicalRecord struct {
	Platform       types.Platform       `json:"platform"`
	Handle         string               `json:"handle"`
	ProblemsSolved float64              `json:"problemsSolvedTotal,omitempty"`
	Difficulty     *DifficultyBreakdown `json:"difficulty,omitempty"`
	Rating         float64              `json:"rating,omitempty"`
	MaxRating      float64              `json:"maxRating,omitempty"`
	Contests       float64              `json:"contests,omitempty"`
	Badges         []Badge              `json:"badges,omitempty"`
	Certificates   []Certificate        `json:"certificates,omitempty"`
	Stars          float64              `json:"stars,omitempty"`
	DomainScores   map[string]float64   `json:"domainScores,omitempty"`
	Developer      *DeveloperMetrics    `json:"developer,omitempty"`
	Score          float64              `json:"score,omitempty"`
	FetchedAt      time.Time            `json:"fetchedAt"`
}

// Clone returns a deep copy so stores never share slices or maps with callers.
func (r CanonicalRecord) Clone() CanonicalRecord {
	out := r
	if r.Difficulty != nil {
		d := *r.Difficulty
		out.Difficulty = &d
	}
	if r.Developer != nil {
		d := *r.Developer
		out.Developer = &d
	}
	if r.Badges != nil {
		out.Badges = append([]Badge(nil), r.Badges...)
	}
	if r.Certificates != nil {
		out.Certificates = append([]Certificate(nil), r.Certificates...)
	}
	if r.DomainScores != nil {
		out.DomainScores = make(map[string]float64, len(r.DomainScores))
		for k, v := range r.DomainScores {
			out.DomainScores[k] = v
		}
	}
	return out
}
