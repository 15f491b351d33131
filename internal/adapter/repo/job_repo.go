package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

const jobColumns = `id, owner_id, prediction_id, idempotency_key, mode, room_type, style, prompt, input1_path, input2_path, status, error, created_at, completed_at`

// Unique constraints the job store relies on. The partial index on active
// jobs closes the double-submit race at the storage layer.
const (
	constraintOwnerActive  = "uq_generation_jobs_owner_active"
	constraintOwnerIdemKey = "uq_generation_jobs_owner_idem"
	constraintPrediction   = "uq_generation_jobs_prediction"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO generation_jobs (id, owner_id, prediction_id, idempotency_key, mode, room_type, style, prompt, input1_path, input2_path, status, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.OwnerID,
		nullableText(job.PredictionID),
		nullableText(job.IdempotencyKey),
		job.Mode,
		job.RoomType,
		job.Style,
		job.Prompt,
		job.Input1Path,
		job.Input2Path,
		job.Status,
		job.Error,
	)
	if err != nil {
		return mapJobConstraint(err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// GetForOwner fetches a job scoped to its owner.
func (r *JobRepositoryPG) GetForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1 AND owner_id = $2;`
	return scanJob(r.pool.QueryRow(ctx, query, jobID, ownerID))
}

// GetByPredictionID fetches the job correlated with a provider callback.
func (r *JobRepositoryPG) GetByPredictionID(ctx context.Context, predictionID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE prediction_id = $1;`
	return scanJob(r.pool.QueryRow(ctx, query, predictionID))
}

// FindByIdempotencyKey returns the job created with the given key.
func (r *JobRepositoryPG) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE owner_id = $1 AND idempotency_key = $2;`
	return scanJob(r.pool.QueryRow(ctx, query, ownerID, key))
}

// FindActive returns the owner's non-terminal job, or (nil, nil) when
// there is none.
func (r *JobRepositoryPG) FindActive(ctx context.Context, ownerID string) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE owner_id = $1 AND status IN ('starting', 'processing')
ORDER BY created_at DESC
LIMIT 1;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query, ownerID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// SetPredictionID records the provider-assigned id, append-once.
func (r *JobRepositoryPG) SetPredictionID(ctx context.Context, jobID, predictionID string) error {
	query := `UPDATE generation_jobs SET prediction_id = $2 WHERE id = $1 AND prediction_id IS NULL;`
	tag, err := r.pool.Exec(ctx, query, jobID, predictionID)
	if err != nil {
		return mapJobConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: prediction id already assigned or job missing", jobID)
	}
	return nil
}

// UpdateStatus applies a status transition only while the job is
// non-terminal, reporting whether it took effect. Terminal states stay
// sticky under duplicate or out-of-order callbacks.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string, completedAt *time.Time) (bool, error) {
	query := `
UPDATE generation_jobs
SET status = $2,
    error = COALESCE($3, error),
    completed_at = COALESCE($4, completed_at)
WHERE id = $1 AND status IN ('starting', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var predictionID, idempotencyKey *string
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&predictionID,
		&idempotencyKey,
		&job.Mode,
		&job.RoomType,
		&job.Style,
		&job.Prompt,
		&job.Input1Path,
		&job.Input2Path,
		&job.Status,
		&job.Error,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if predictionID != nil {
		job.PredictionID = *predictionID
	}
	if idempotencyKey != nil {
		job.IdempotencyKey = *idempotencyKey
	}
	return &job, nil
}

func mapJobConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case constraintOwnerActive:
			return domain.ErrTooManyInflight
		case constraintOwnerIdemKey, constraintPrediction:
			return domain.ErrDuplicateOperation
		}
	}
	return err
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
