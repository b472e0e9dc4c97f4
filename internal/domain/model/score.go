package model

import (
	"time"

	"github.com/okian/codesync/internal/domain/types"
)

// PlatformSkill is the 0-100 skill derived for one platform.
type PlatformSkill struct {
	Platform types.Platform `json:"platform"`
	Skill    float64        `json:"skill"`
}

// ScoreRecord is the cached aggregate score for a student. It is only ever
// replaced as a whole.
type ScoreRecord struct {
	StudentID           string                     `json:"studentId"`
	CodeSyncScore       float64                    `json:"codeSyncScore"`
	DisplayScore        int                        `json:"displayScore"`
	PlatformSkills      map[types.Platform]float64 `json:"platformSkills"`
	TotalProblemsSolved float64                    `json:"totalProblemsSolved"`
	ComputedAt          time.Time                  `json:"computedAt"`
	ExpiresAt           time.Time                  `json:"expiresAt"`
	Version             string                     `json:"version"`
}

// Fresh reports whether the record may be served as-is at now under the
// given formula version.
func (r ScoreRecord) Fresh(now time.Time, version string) bool {
	return now.Before(r.ExpiresAt) && r.Version == version
}

// Clone returns a deep copy of the record.
func (r ScoreRecord) Clone() ScoreRecord {
	out := r
	if r.PlatformSkills != nil {
		out.PlatformSkills = make(map[types.Platform]float64, len(r.PlatformSkills))
		for k, v := range r.PlatformSkills {
			out.PlatformSkills[k] = v
		}
	}
	return out
}

// Snapshot is an immutable historical copy of one score computation.
type Snapshot struct {
	ID             string                     `json:"id"`
	StudentID      string                     `json:"studentId"`
	Timestamp      time.Time                  `json:"timestamp"`
	PlatformSkills map[types.Platform]float64 `json:"platformSkills"`
	CodeSyncScore  float64                    `json:"codeSyncScore"`
	DisplayScore   int                        `json:"displayScore"`
}

// SnapshotOf derives the snapshot for a freshly computed record.
func SnapshotOf(id string, r ScoreRecord) Snapshot {
	c := r.Clone()
	return Snapshot{
		ID:             id,
		StudentID:      r.StudentID,
		Timestamp:      r.ComputedAt,
		PlatformSkills: c.PlatformSkills,
		CodeSyncScore:  r.CodeSyncScore,
		DisplayScore:   r.DisplayScore,
	}
}
