package signals

import (
	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/types"
)

// Problem-solving scale parameters.
const (
	difficultyLogBase = 200
	totalLogBase      = 300
	untrustedFactor   = 0.7
)

// Contest, achievement and developer tiers.
const (
	contestGood          = 15
	contestExcellent     = 50
	achievementGood      = 10
	achievementExcellent = 30
	certificatePoints    = 3
	codechefStarPoints   = 2

	contributionLogBase = 400
	repoGood            = 10
	repoExcellent       = 40
	starsGood           = 20
	starsExcellent      = 100

	contributionWeight = 0.5
	repoWeight         = 0.3
	starsWeight        = 0.2
)

// Signals are the five normalized sub-scores of one platform record.
type Signals struct {
	P float64 `json:"p"` // problem solving
	R float64 `json:"r"` // rating
	C float64 `json:"c"` // contests
	A float64 `json:"a"` // achievements
	D float64 `json:"d"` // developer activity
}

// ratingSource extracts the raw value the rating bounds apply to.
type ratingSource func(rec *model.CanonicalRecord) float64

type ratingBounds struct {
	min, max float64
	source   ratingSource
}

func contestRating(rec *model.CanonicalRecord) float64 { return rec.Rating }

func domainScoreSum(rec *model.CanonicalRecord) float64 {
	var sum float64
	for _, v := range rec.DomainScores {
		sum += v
	}
	return sum
}

func rawScore(rec *model.CanonicalRecord) float64 { return rec.Score }

var (
	contestBounds = ratingBounds{min: 800, max: 2600, source: contestRating}

	// Platforms absent from this table use fallbackBounds. GitHub maps to
	// nil: it has no rating signal.
	ratingTable = map[types.Platform]*ratingBounds{
		types.LeetCode:   &contestBounds,
		types.Codeforces: &contestBounds,
		types.CodeChef:   &contestBounds,
		types.AtCoder:    &contestBounds,
		types.HackerRank: {min: 0, max: 3000, source: domainScoreSum},
		types.GitHub:     nil,
	}

	fallbackBounds = ratingBounds{min: 0, max: 1000, source: rawScore}

	badgePoints = map[types.BadgeLevel]float64{
		types.BadgeBronze:    1,
		types.BadgeSilver:    2,
		types.BadgeGold:      3,
		types.BadgeLegendary: 4,
		types.BadgeUnknown:   1,
	}

	// trustedDifficulty marks platforms whose easy/medium/hard labels are
	// calibrated well enough to skip the untrusted discount.
	trustedDifficulty = map[types.Platform]bool{
		types.LeetCode: true,
	}
)

// Compute returns all five signals for rec.
func Compute(rec *model.CanonicalRecord) Signals {
	if rec == nil {
		return Signals{}
	}
	return Signals{
		P: Problem(rec),
		R: Rating(rec),
		C: Contest(rec),
		A: Achievement(rec),
		D: Developer(rec),
	}
}

// Problem scores problem-solving volume, weighted by difficulty when known.
func Problem(rec *model.CanonicalRecord) float64 {
	if d := rec.Difficulty; d != nil {
		raw := nonNeg(d.Easy) + 2*nonNeg(d.Medium) + 3*nonNeg(d.Hard)
		p := LogScale(raw, difficultyLogBase)
		if !trustedDifficulty[rec.Platform] {
			p *= untrustedFactor
		}
		return Clamp01(p)
	}
	return Clamp01(LogScale(rec.ProblemsSolved, totalLogBase) * untrustedFactor)
}

// Rating scores the platform rating against platform-specific bounds.
func Rating(rec *model.CanonicalRecord) float64 {
	b, known := ratingTable[rec.Platform]
	if !known {
		b = &fallbackBounds
	}
	if b == nil {
		return 0
	}
	return Linear(b.source(rec), b.min, b.max)
}

// Contest scores contest participation.
func Contest(rec *model.CanonicalRecord) float64 {
	return Tiered(rec.Contests, contestGood, contestExcellent)
}

// Achievement scores badges, certificates and CodeChef stars.
func Achievement(rec *model.CanonicalRecord) float64 {
	var points float64
	for _, b := range rec.Badges {
		pts, ok := badgePoints[b.Level]
		if !ok {
			pts = badgePoints[types.BadgeUnknown]
		}
		points += pts
	}
	points += certificatePoints * float64(len(rec.Certificates))
	if rec.Platform == types.CodeChef {
		points += codechefStarPoints * nonNeg(rec.Stars)
	}
	return Tiered(points, achievementGood, achievementExcellent)
}

// Developer scores GitHub activity. It is 0 on every other platform.
func Developer(rec *model.CanonicalRecord) float64 {
	if rec.Platform != types.GitHub || rec.Developer == nil {
		return 0
	}
	d := rec.Developer
	return Clamp01(contributionWeight*LogScale(d.Contributions, contributionLogBase) +
		repoWeight*Tiered(d.PublicRepos, repoGood, repoExcellent) +
		starsWeight*Tiered(d.StarsReceived, starsGood, starsExcellent))
}

func nonNeg(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}
