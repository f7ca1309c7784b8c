package job

import (
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

type Trigger string

const (
	TriggerGameResult Trigger = "game_result"
	TriggerManual     Trigger = "manual"
	TriggerScheduled  Trigger = "scheduled"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// maxErrorHistory bounds the per-job failure log.
const maxErrorHistory = 10

// FailureRecord is one classified failure in a job's history.
type FailureRecord struct {
	Type      faults.Type
	Code      string
	Severity  faults.Severity
	Retryable bool
	Message   string
	At        time.Time
}

// Job is one scheduled calculation for a league-season.
type Job struct {
	ID           string
	LeagueID     int
	SeasonID     int
	Priority     Priority
	Trigger      Trigger
	Status       Status
	Description  string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	RetryCount   int
	TimeoutCount int
	ErrorHistory []FailureRecord
}

// RecordFailure appends to the bounded error history, evicting the oldest
// record when full.
func (j *Job) RecordFailure(rec FailureRecord) {
	j.ErrorHistory = append(j.ErrorHistory, rec)
	if len(j.ErrorHistory) > maxErrorHistory {
		j.ErrorHistory = j.ErrorHistory[len(j.ErrorHistory)-maxErrorHistory:]
	}
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone returns a deep copy safe to hand out across goroutines.
func (j *Job) Clone() Job {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.ErrorHistory = append([]FailureRecord(nil), j.ErrorHistory...)
	return out
}

func ParsePriority(v string) (Priority, bool) {
	switch Priority(v) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(v), true
	default:
		return "", false
	}
}
