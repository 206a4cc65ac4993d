package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Queried fields live in flat columns; the full opportunity variant is
// kept as JSONB so list queries round-trip the complete record.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// recordDetails is the JSONB payload. Exactly one field is non-nil.
type recordDetails struct {
	Funding *domain.FundingRateOpportunity  `json:"funding,omitempty"`
	Basis   *domain.BasisTradingOpportunity `json:"basis,omitempty"`
}

const oppSelectCols = `id, kind, symbol, outcome, reason, actionable, details, recorded_at`

// Insert stores a finished opportunity record.
func (s *OpportunityStore) Insert(ctx context.Context, rec domain.OpportunityRecord) error {
	const query = `
		INSERT INTO opportunity_history (
			id, kind, symbol, outcome, reason, actionable,
			risk, confidence, details, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	details, err := json.Marshal(recordDetails{Funding: rec.Funding, Basis: rec.Basis})
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity details %s: %w", rec.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Kind.String(), string(rec.Symbol),
		rec.Outcome.State.String(), rec.Outcome.Reason.String(), rec.Actionable,
		rec.RiskScore(), rec.ConfidenceScore(), details, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the most recent records ordered by recording time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunity_history ORDER BY recorded_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListBySymbol returns records for one symbol, newest first.
func (s *OpportunityStore) ListBySymbol(ctx context.Context, symbol domain.Symbol, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunity_history WHERE symbol = $1`
	args := []any{string(symbol)}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	query += " ORDER BY recorded_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountByOutcome aggregates accepted and rejected counts for one kind
// since the given time.
func (s *OpportunityStore) CountByOutcome(ctx context.Context, kind domain.OpportunityKind, since time.Time) (domain.OutcomeCounts, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE outcome = 'accepted'),
			COUNT(*) FILTER (WHERE outcome = 'rejected')
		FROM opportunity_history
		WHERE kind = $1 AND recorded_at >= $2`

	var counts domain.OutcomeCounts
	err := s.pool.QueryRow(ctx, query, kind.String(), since).Scan(&counts.Accepted, &counts.Rejected)
	if err != nil {
		return domain.OutcomeCounts{}, fmt.Errorf("postgres: count opportunities by outcome: %w", err)
	}
	return counts, nil
}

// ListBefore returns all records recorded strictly before the cutoff,
// oldest first. It feeds the cold-storage archiver ahead of pruning.
func (s *OpportunityStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunity_history WHERE recorded_at < $1 ORDER BY recorded_at ASC`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// PruneBefore deletes records recorded before cutoff and returns how many
// were removed.
func (s *OpportunityStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM opportunity_history WHERE recorded_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecords(rows pgx.Rows) ([]domain.OpportunityRecord, error) {
	var recs []domain.OpportunityRecord
	for rows.Next() {
		var (
			rec           domain.OpportunityRecord
			kind, symbol  string
			state, reason string
			details       []byte
		)
		if err := rows.Scan(
			&rec.ID, &kind, &symbol, &state, &reason, &rec.Actionable,
			&details, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}

		rec.Kind = parseKind(kind)
		rec.Symbol = domain.Symbol(symbol)
		rec.Outcome.State = parseState(state)
		rec.Outcome.Reason = parseReason(reason)
		rec.Outcome.CheckedAt = rec.RecordedAt

		var d recordDetails
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal opportunity details %s: %w", rec.ID, err)
		}
		rec.Funding = d.Funding
		rec.Basis = d.Basis

		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return recs, nil
}

func parseKind(s string) domain.OpportunityKind {
	if s == "basis" {
		return domain.KindBasis
	}
	return domain.KindFundingRate
}

func parseState(s string) domain.ValidationState {
	switch s {
	case "accepted":
		return domain.ValidationAccepted
	case "rejected":
		return domain.ValidationRejected
	default:
		return domain.ValidationPending
	}
}

func parseReason(s string) domain.RejectReason {
	switch s {
	case "stale":
		return domain.ReasonStale
	case "unprofitable":
		return domain.ReasonUnprofitable
	case "low_confidence":
		return domain.ReasonLowConfidence
	case "data_unavailable":
		return domain.ReasonDataUnavailable
	default:
		return domain.ReasonNone
	}
}
