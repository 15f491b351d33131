package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// RenderRepositoryPG implements domain.RenderRepository.
type RenderRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRenderRepository creates a new render repository backed by PostgreSQL.
func NewRenderRepository(pool *pgxpool.Pool) *RenderRepositoryPG {
	return &RenderRepositoryPG{pool: pool}
}

// CreateWithVariants writes a render and all of its variants in one
// transaction so partial materialization is never visible.
func (r *RenderRepositoryPG) CreateWithVariants(ctx context.Context, render *domain.Render, variants []domain.RenderVariant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin render tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO renders (id, job_id, owner_id, mode, room_type, style, cover_variant)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`,
		render.ID,
		render.JobID,
		render.OwnerID,
		render.Mode,
		render.RoomType,
		render.Style,
		render.CoverVariant,
	)
	if err != nil {
		return fmt.Errorf("insert render: %w", err)
	}

	for _, v := range variants {
		_, err = tx.Exec(ctx, `
INSERT INTO render_variants (id, render_id, owner_id, idx, image_path, thumb_path)
VALUES ($1, $2, $3, $4, $5, $6);
`,
			v.ID,
			v.RenderID,
			v.OwnerID,
			v.Idx,
			v.ImagePath,
			v.ThumbPath,
		)
		if err != nil {
			return fmt.Errorf("insert render variant %d: %w", v.Idx, err)
		}
	}

	return tx.Commit(ctx)
}

// ExistsForJob reports whether a render was already materialized for a job.
func (r *RenderRepositoryPG) ExistsForJob(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM renders WHERE job_id = $1);`, jobID).Scan(&exists)
	return exists, err
}

// GetByJobID fetches the render produced by a job.
func (r *RenderRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.Render, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, job_id, owner_id, mode, room_type, style, cover_variant, created_at
FROM renders
WHERE job_id = $1;
`, jobID)
	return scanRender(row)
}

// ListByOwner returns the owner's renders, newest first.
func (r *RenderRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, job_id, owner_id, mode, room_type, style, cover_variant, created_at
FROM renders
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []domain.Render
	for rows.Next() {
		render, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, *render)
	}
	return renders, rows.Err()
}

// ListVariants returns a render's variants in idx order.
func (r *RenderRepositoryPG) ListVariants(ctx context.Context, renderID string) ([]domain.RenderVariant, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, render_id, owner_id, idx, image_path, thumb_path, created_at
FROM render_variants
WHERE render_id = $1
ORDER BY idx ASC;
`, renderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []domain.RenderVariant
	for rows.Next() {
		var v domain.RenderVariant
		if err := rows.Scan(&v.ID, &v.RenderID, &v.OwnerID, &v.Idx, &v.ImagePath, &v.ThumbPath, &v.CreatedAt); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func scanRender(row pgx.Row) (*domain.Render, error) {
	var render domain.Render
	if err := row.Scan(
		&render.ID,
		&render.JobID,
		&render.OwnerID,
		&render.Mode,
		&render.RoomType,
		&render.Style,
		&render.CoverVariant,
		&render.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &render, nil
}

var _ domain.RenderRepository = (*RenderRepositoryPG)(nil)
