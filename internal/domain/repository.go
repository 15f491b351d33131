package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// GetForOwner fetches a job scoped to its owner; ErrNotFound when the
	// job does not exist or belongs to someone else.
	GetForOwner(ctx context.Context, jobID, ownerID string) (*Job, error)
	GetByPredictionID(ctx context.Context, predictionID string) (*Job, error)
	FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*Job, error)
	// FindActive returns the owner's non-terminal job, or (nil, nil)
	// when there is none.
	FindActive(ctx context.Context, ownerID string) (*Job, error)
	// SetPredictionID records the provider-assigned id. It is append-once:
	// a job's prediction id is set exactly once and never reassigned.
	SetPredictionID(ctx context.Context, jobID, predictionID string) error
	// UpdateStatus moves a job to the given status only while its current
	// status is non-terminal, and reports whether the transition applied.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string, completedAt *time.Time) (bool, error)
}

// RenderRepository handles persistence for materialized outputs.
type RenderRepository interface {
	// CreateWithVariants writes a render and all of its variants in a
	// single transaction.
	CreateWithVariants(ctx context.Context, render *Render, variants []RenderVariant) error
	ExistsForJob(ctx context.Context, jobID string) (bool, error)
	GetByJobID(ctx context.Context, jobID string) (*Render, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Render, error)
	ListVariants(ctx context.Context, renderID string) ([]RenderVariant, error)
}

// UsageRepository persists the append-only usage ledger.
type UsageRepository interface {
	// InsertDebit inserts a generation debit, or returns the existing
	// entry when one already exists for the same (owner, job).
	InsertDebit(ctx context.Context, entry *UsageEntry) (*UsageEntry, error)
	// Totals sums debit and credit amounts for entries created within
	// [from, to).
	Totals(ctx context.Context, ownerID string, from, to time.Time) (debits, credits int, err error)
}

// FailureRepository records diagnostic failure events.
type FailureRepository interface {
	Create(ctx context.Context, failure *Failure) error
}
