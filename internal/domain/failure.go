package domain

import "time"

// FailureStage identifies where in the pipeline a failure was observed.
type FailureStage string

const (
	FailureStageWebhook FailureStage = "webhook"
	FailureStageStorage FailureStage = "storage"
)

// Failure is an append-only diagnostic record tied to a job. It is purely
// observational and never drives job state.
type Failure struct {
	ID           string
	JobID        string
	Stage        FailureStage
	Code         string
	ProviderCode string
	Message      string
	Meta         map[string]any
	CreatedAt    time.Time
}
