// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/codesync/internal/domain/types"
)

// RefreshJob is a queued request to refresh a student's platform data.
// An empty Platform means every platform.
type RefreshJob struct {
	JobID       string
	StudentID   string
	Platform    types.Platform
	RequestedAt time.Time
}

// Key identifies the work a job represents. Two pending jobs with the same
// key would do the same work.
func (j RefreshJob) Key() string {
	if j.Platform == "" {
		return j.StudentID + "/*"
	}
	return j.StudentID + "/" + string(j.Platform)
}
