package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

// Ledger provides usage accounting on top of the append-only usage
// repository. Debits are idempotent per (owner, job).
type Ledger struct {
	entries domain.UsageRepository
	now     func() time.Time
}

// NewLedger builds a usage ledger.
func NewLedger(entries domain.UsageRepository) *Ledger {
	return &Ledger{entries: entries, now: time.Now}
}

// MonthlyUsage summarizes one UTC calendar month of ledger activity.
type MonthlyUsage struct {
	Debits  int
	Credits int
	Net     int
}

// Debit records one generation debit for a job. Calling it twice for the
// same job returns the original entry without inserting a duplicate.
func (l *Ledger) Debit(ctx context.Context, ownerID, jobID string, amount int, idempotencyKey string, meta map[string]any) (*domain.UsageEntry, error) {
	if amount <= 0 {
		amount = 1
	}
	entryMeta := map[string]any{"job_id": jobID}
	if idempotencyKey != "" {
		entryMeta["idempotency_key"] = idempotencyKey
	}
	for k, v := range meta {
		entryMeta[k] = v
	}
	entry := &domain.UsageEntry{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Kind:    domain.UsageKindGenerationDebit,
		Amount:  amount,
		Meta:    entryMeta,
	}
	inserted, err := l.entries.InsertDebit(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("ledger: debit job %s: %w", jobID, err)
	}
	return inserted, nil
}

// MonthlyNet sums debits and credits inside the UTC calendar month. Net is
// clamped at zero: usage is never reported negative.
func (l *Ledger) MonthlyNet(ctx context.Context, ownerID string, year int, month time.Month) (MonthlyUsage, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	debits, credits, err := l.entries.Totals(ctx, ownerID, from, to)
	if err != nil {
		return MonthlyUsage{}, fmt.Errorf("ledger: monthly totals: %w", err)
	}
	usage := MonthlyUsage{Debits: debits, Credits: credits, Net: debits - credits}
	if usage.Net < 0 {
		usage.Net = 0
	}
	return usage, nil
}

// Remaining reports how many generations the owner has left this month
// under the given limit. Never negative.
func (l *Ledger) Remaining(ctx context.Context, ownerID string, monthlyLimit int) (int, error) {
	now := l.now().UTC()
	usage, err := l.MonthlyNet(ctx, ownerID, now.Year(), now.Month())
	if err != nil {
		return 0, err
	}
	remaining := monthlyLimit - usage.Net
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
