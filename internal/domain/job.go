package domain

import (
	"strings"
	"time"
)

// JobMode enumerates the supported generation workflows.
type JobMode string

const (
	JobModeRedesign JobMode = "redesign"
	JobModeStaging  JobMode = "staging"
	JobModeCompose  JobMode = "compose"
	JobModeImagine  JobMode = "imagine"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether the status is final. Terminal states are
// sticky: once reached, later callbacks must not regress them.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// MaxJobErrorLen caps the user-visible error string stored on a job.
const MaxJobErrorLen = 500

// Job is the lifecycle record of one generation request.
type Job struct {
	ID             string
	OwnerID        string
	PredictionID   string // assigned once the external provider accepts the job
	IdempotencyKey string
	Mode           JobMode
	RoomType       string
	Style          string
	Prompt         string
	Input1Path     string
	Input2Path     string
	Status         JobStatus
	Error          string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// NormalizeJobMode sanitizes free-form input into a supported mode.
// The empty string is returned for anything unrecognized.
func NormalizeJobMode(mode string) JobMode {
	switch JobMode(strings.ToLower(strings.TrimSpace(mode))) {
	case JobModeRedesign:
		return JobModeRedesign
	case JobModeStaging:
		return JobModeStaging
	case JobModeCompose:
		return JobModeCompose
	case JobModeImagine:
		return JobModeImagine
	default:
		return ""
	}
}

// TruncateJobError trims an error message to the storable length.
func TruncateJobError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > MaxJobErrorLen {
		return msg[:MaxJobErrorLen]
	}
	return msg
}
