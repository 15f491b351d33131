package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// FailureRepositoryPG implements domain.FailureRepository.
type FailureRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewFailureRepository creates a new failure repository backed by PostgreSQL.
func NewFailureRepository(pool *pgxpool.Pool) *FailureRepositoryPG {
	return &FailureRepositoryPG{pool: pool}
}

// Create appends one diagnostic failure row. Rows are never mutated or
// deleted.
func (r *FailureRepositoryPG) Create(ctx context.Context, failure *domain.Failure) error {
	metaBytes, err := json.Marshal(failure.Meta)
	if err != nil {
		return fmt.Errorf("encode failure meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO generation_failures (id, job_id, stage, code, provider_code, message, meta)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6);
`,
		failure.JobID,
		failure.Stage,
		failure.Code,
		nullableText(failure.ProviderCode),
		nullableText(failure.Message),
		metaBytes,
	)
	return err
}

var _ domain.FailureRepository = (*FailureRepositoryPG)(nil)
