// Package scoring combines platform signals into skills and skills into the
// aggregate CodeSync score.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/signals"
	"github.com/okian/codesync/internal/domain/types"
)

// FormulaVersion stamps every persisted score record. Changing any weight,
// bound or threshold must bump it so cached records are recomputed.
const FormulaVersion = "signals-v1"

// Scoring constants.
const (
	maxScoreValue     = 100
	displayMultiplier = 10
	breadthBonus      = 0.3
)

// Weights are the linear coefficients applied to (P, R, C, A, D).
type Weights struct {
	P, R, C, A, D float64
}

var ratingCentric = Weights{P: .20, R: .50, C: .25, A: .05}

// weightTable is looked up by platform tag. A platform missing here scores 0.
var weightTable = map[types.Platform]Weights{
	types.LeetCode:   {P: .35, R: .35, C: .20, A: .10},
	types.Codeforces: ratingCentric,
	types.CodeChef:   ratingCentric,
	types.AtCoder:    ratingCentric,
	types.HackerRank: {P: .15, R: .35, A: .50},
	types.GitHub:     {P: .10, R: .10, A: .10, D: .70},
}

// WeightsFor returns the weight row for p.
func WeightsFor(p types.Platform) (Weights, bool) {
	w, ok := weightTable[p]
	return w, ok
}

// CombineSignalsToSkill returns the 0-100 skill of one platform.
func CombineSignalsToSkill(p types.Platform, s signals.Signals) float64 {
	w, ok := weightTable[p]
	if !ok {
		return 0
	}
	v := w.P*s.P + w.R*s.R + w.C*s.C + w.A*s.A + w.D*s.D
	return signals.Clamp01(v) * maxScoreValue
}

// Aggregate combines the skills of platforms that have data. The strongest
// skill counts fully and the mean of the rest adds a 0.3 breadth bonus.
func Aggregate(skills []model.PlatformSkill) (float64, int) {
	if len(skills) == 0 {
		return 0, 0
	}
	values := make([]float64, len(skills))
	for i, s := range skills {
		values[i] = clampScore(s.Skill)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	score := values[0]
	if others := values[1:]; len(others) > 0 {
		var sum float64
		for _, v := range others {
			sum += v
		}
		score += breadthBonus * (sum / float64(len(others)))
	}
	score = clampScore(score)
	return score, DisplayScore(score)
}

// DisplayScore converts a 0-100 score into the 0-1000 integer shown to users.
func DisplayScore(score float64) int {
	return int(math.Round(clampScore(score) * displayMultiplier))
}

// EstimateSolved returns the number of problems a record accounts for.
func EstimateSolved(rec *model.CanonicalRecord) float64 {
	if rec == nil {
		return 0
	}
	if rec.ProblemsSolved > 0 {
		return rec.ProblemsSolved
	}
	if d := rec.Difficulty; d != nil {
		var n float64
		for _, v := range []float64{d.Easy, d.Medium, d.Hard} {
			if v > 0 {
				n += v
			}
		}
		return n
	}
	return 0
}

// Breakdown is the per-platform detail of one computation.
type Breakdown struct {
	Platform types.Platform  `json:"platform"`
	Signals  signals.Signals `json:"signals"`
	Skill    float64         `json:"skill"`
}

// Result is the output of one pipeline run.
type Result struct {
	StudentID           string
	PlatformSkills      map[types.Platform]float64
	Breakdown           []Breakdown
	CodeSyncScore       float64
	DisplayScore        int
	TotalProblemsSolved float64
}

// Compute runs signals, skill combination and aggregation over records.
// Records for unknown platforms and duplicates of an already seen platform
// are ignored; the output does not depend on input order.
func Compute(records []model.CanonicalRecord) Result {
	byPlatform := make(map[types.Platform]*model.CanonicalRecord, len(records))
	for i := range records {
		rec := &records[i]
		if !rec.Platform.Valid() {
			continue
		}
		if _, dup := byPlatform[rec.Platform]; dup {
			continue
		}
		byPlatform[rec.Platform] = rec
	}

	res := Result{PlatformSkills: make(map[types.Platform]float64, len(types.AllPlatforms))}
	var present []model.PlatformSkill
	for _, p := range types.AllPlatforms {
		rec, ok := byPlatform[p]
		if !ok {
			res.PlatformSkills[p] = 0
			continue
		}
		sig := signals.Compute(rec)
		skill := CombineSignalsToSkill(p, sig)
		res.PlatformSkills[p] = skill
		res.Breakdown = append(res.Breakdown, Breakdown{Platform: p, Signals: sig, Skill: skill})
		present = append(present, model.PlatformSkill{Platform: p, Skill: skill})
		res.TotalProblemsSolved += EstimateSolved(rec)
	}
	res.CodeSyncScore, res.DisplayScore = Aggregate(present)
	return res
}

// Input abstracts what a Scorer needs.
type Input struct {
	StudentID string
	Records   []model.CanonicalRecord
}

// Scorer computes a student's score from their canonical records.
type Scorer interface {
	// Score computes a result, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// PipelineScorer implements Scorer with the in-process signal pipeline.
type PipelineScorer struct{}

// NewPipelineScorer creates a new pipeline scorer.
func NewPipelineScorer() *PipelineScorer {
	return &PipelineScorer{}
}

// Score computes the score for the given input.
func (s *PipelineScorer) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	res := Compute(in.Records)
	res.StudentID = in.StudentID
	return res, nil
}

func clampScore(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= maxScoreValue {
		return maxScoreValue
	}
	return x
}
