package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// OutcomeCounts aggregates recorded opportunities by validation outcome.
type OutcomeCounts struct {
	Accepted int64
	Rejected int64
}

// OpportunityStore is the durable sink for the emitted opportunity record
// stream, pruned by the configured retention policy.
type OpportunityStore interface {
	Insert(ctx context.Context, rec OpportunityRecord) error
	ListRecent(ctx context.Context, limit int) ([]OpportunityRecord, error)
	ListBySymbol(ctx context.Context, symbol Symbol, opts ListOpts) ([]OpportunityRecord, error)
	CountByOutcome(ctx context.Context, kind OpportunityKind, since time.Time) (OutcomeCounts, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]OpportunityRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecordArchiver copies aged opportunity records to cold storage before they
// are pruned from the primary store.
type RecordArchiver interface {
	Archive(ctx context.Context, before time.Time) (int64, error)
}
