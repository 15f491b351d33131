package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UsageRepositoryPG implements domain.UsageRepository over the append-only
// usage_ledger table.
type UsageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new usage repository backed by PostgreSQL.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepositoryPG {
	return &UsageRepositoryPG{pool: pool}
}

// InsertDebit appends a generation debit. A partial unique index on
// (owner_id, meta->>'job_id') makes the insert a no-op for duplicates, in
// which case the original entry is returned.
func (r *UsageRepositoryPG) InsertDebit(ctx context.Context, entry *domain.UsageEntry) (*domain.UsageEntry, error) {
	metaBytes, err := json.Marshal(entry.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode ledger meta: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
INSERT INTO usage_ledger (id, owner_id, kind, amount, meta)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING;
`,
		entry.ID,
		entry.OwnerID,
		entry.Kind,
		entry.Amount,
		metaBytes,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() > 0 {
		return entry, nil
	}

	jobID, _ := entry.Meta["job_id"].(string)
	row := r.pool.QueryRow(ctx, `
SELECT id, owner_id, kind, amount, meta, created_at
FROM usage_ledger
WHERE owner_id = $1 AND kind = $2 AND meta->>'job_id' = $3;
`, entry.OwnerID, domain.UsageKindGenerationDebit, jobID)
	return scanUsageEntry(row)
}

// Totals sums debit and credit amounts for entries created within [from, to).
func (r *UsageRepositoryPG) Totals(ctx context.Context, ownerID string, from, to time.Time) (int, int, error) {
	var debits, credits int
	err := r.pool.QueryRow(ctx, `
SELECT
  COALESCE(SUM(amount) FILTER (WHERE kind = 'generation_debit'), 0),
  COALESCE(SUM(amount) FILTER (WHERE kind = 'credit_adjustment'), 0)
FROM usage_ledger
WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3;
`, ownerID, from, to).Scan(&debits, &credits)
	if err != nil {
		return 0, 0, err
	}
	return debits, credits, nil
}

func scanUsageEntry(row pgx.Row) (*domain.UsageEntry, error) {
	var entry domain.UsageEntry
	var metaBytes []byte
	if err := row.Scan(&entry.ID, &entry.OwnerID, &entry.Kind, &entry.Amount, &metaBytes, &entry.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &entry.Meta); err != nil {
			return nil, fmt.Errorf("decode ledger meta: %w", err)
		}
	}
	return &entry, nil
}

var _ domain.UsageRepository = (*UsageRepositoryPG)(nil)
