// Package normalize maps the loosely-typed payloads returned by platform
// adapters onto the canonical record. A field that is missing or has the
// wrong shape is dropped; it never fails the whole record.
package normalize

import (
	"math"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/okian/codesync/internal/domain/model"
	"github.com/okian/codesync/internal/domain/types"
)

// Raw is an adapter payload. Nothing about its content is guaranteed.
type Raw = map[string]any

// Accepted spellings per canonical field, in priority order.
var (
	solvedKeys        = []string{"problemsSolvedTotal", "problemsSolved", "totalSolved"}
	easyKeys          = []string{"easy", "easySolved"}
	mediumKeys        = []string{"medium", "mediumSolved"}
	hardKeys          = []string{"hard", "hardSolved"}
	ratingKeys        = []string{"rating", "currentRating"}
	maxRatingKeys     = []string{"maxRating", "highestRating"}
	contestKeys       = []string{"contests", "contestsParticipated", "contestCount"}
	contributionKeys  = []string{"contributions", "contributionsLastYear"}
	repoKeys          = []string{"publicRepos", "repos"}
	starsReceivedKeys = []string{"starsReceived", "totalStars"}
)

// Normalize converts raw into a canonical record for platform p. It returns
// false only when there is nothing to normalize: a nil payload or a
// platform outside the known set. Callers must then keep whatever record
// they already had.
func Normalize(p types.Platform, handle string, raw Raw) (*model.CanonicalRecord, bool) {
	if raw == nil || !p.Valid() {
		return nil, false
	}
	rec := &model.CanonicalRecord{
		Platform:     p,
		Handle:       handle,
		Rating:       number(raw, ratingKeys...),
		MaxRating:    number(raw, maxRatingKeys...),
		Contests:     number(raw, contestKeys...),
		Stars:        number(raw, "stars"),
		Score:        number(raw, "score"),
		Badges:       badges(raw["badges"]),
		Certificates: certificates(raw["certificates"]),
		DomainScores: domainScores(raw["domainScores"]),
	}
	if total, ok := lookupNumber(raw, solvedKeys...); ok {
		rec.ProblemsSolved = total
	}
	rec.Difficulty = difficulty(raw)
	if p == types.GitHub {
		rec.Developer = developer(raw)
	}
	return rec, true
}

// number returns the first decodable value among keys, or 0.
func number(raw Raw, keys ...string) float64 {
	v, _ := lookupNumber(raw, keys...)
	return v
}

func lookupNumber(raw Raw, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, present := raw[k]
		if !present || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// toFloat decodes numbers and numeric strings. Bools, blank strings and
// anything else are rejected before weak decoding would coerce them.
func toFloat(v any) (float64, bool) {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	case reflect.String:
		s := strings.TrimSpace(reflect.ValueOf(v).String())
		if s == "" {
			return 0, false
		}
		v = s
	default:
		return 0, false
	}
	var f float64
	if err := mapstructure.WeakDecode(v, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asMap(v any) (Raw, bool) {
	if v == nil {
		return nil, false
	}
	var m map[string]any
	if err := mapstructure.Decode(v, &m); err != nil {
		return nil, false
	}
	return m, m != nil
}

func asSlice(v any) []any {
	if v == nil {
		return nil
	}
	var s []any
	if err := mapstructure.Decode(v, &s); err != nil {
		return nil
	}
	return s
}

func difficulty(raw Raw) *model.DifficultyBreakdown {
	src := raw
	if nested, ok := asMap(raw["difficulty"]); ok {
		src = nested
	}
	easy, okE := lookupNumber(src, easyKeys...)
	medium, okM := lookupNumber(src, mediumKeys...)
	hard, okH := lookupNumber(src, hardKeys...)
	if !okE && !okM && !okH {
		return nil
	}
	return &model.DifficultyBreakdown{Easy: easy, Medium: medium, Hard: hard}
}

func developer(raw Raw) *model.DeveloperMetrics {
	src := raw
	if nested, ok := asMap(raw["developer"]); ok {
		src = nested
	}
	contrib, okC := lookupNumber(src, contributionKeys...)
	repos, okR := lookupNumber(src, repoKeys...)
	stars, okS := lookupNumber(src, starsReceivedKeys...)
	if !okC && !okR && !okS {
		return nil
	}
	return &model.DeveloperMetrics{Contributions: contrib, PublicRepos: repos, StarsReceived: stars}
}

// badges accepts a list of {name, level} objects or bare names.
func badges(v any) []model.Badge {
	var out []model.Badge
	for _, item := range asSlice(v) {
		switch b := item.(type) {
		case string:
			out = append(out, model.Badge{Name: b, Level: types.BadgeUnknown})
		default:
			m, ok := asMap(b)
			if !ok {
				continue
			}
			out = append(out, model.Badge{
				Name:  text(m["name"]),
				Level: types.ParseBadgeLevel(text(m["level"])),
			})
		}
	}
	return out
}

// certificates accepts a list of {name} objects or bare names.
func certificates(v any) []model.Certificate {
	var out []model.Certificate
	for _, item := range asSlice(v) {
		switch c := item.(type) {
		case string:
			out = append(out, model.Certificate{Name: c})
		default:
			m, ok := asMap(c)
			if !ok {
				continue
			}
			out = append(out, model.Certificate{Name: text(m["name"])})
		}
	}
	return out
}

func domainScores(v any) map[string]float64 {
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		if f, ok := toFloat(raw); ok {
			out[k] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func text(v any) string {
	if v == nil {
		return ""
	}
	var s string
	if err := mapstructure.WeakDecode(v, &s); err != nil {
		return ""
	}
	return s
}
