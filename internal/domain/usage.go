package domain

import "time"

// UsageKind enumerates ledger entry types.
type UsageKind string

const (
	UsageKindGenerationDebit  UsageKind = "generation_debit"
	UsageKindCreditAdjustment UsageKind = "credit_adjustment"
)

// UsageEntry is one append-only accounting event. Debits are idempotent
// per (owner, job): inserting a second debit for the same job returns the
// existing entry instead.
type UsageEntry struct {
	ID        string
	OwnerID   string
	Kind      UsageKind
	Amount    int
	Meta      map[string]any
	CreatedAt time.Time
}
