// Package service carries the application services between the detector
// and the outer surfaces: durable storage, the signal bus, notifications,
// and the read paths the HTTP API serves.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/notify"
)

// Bus channels for the opportunity record stream.
const (
	ChannelDetected = "opportunity_detected"
	ChannelAccepted = "opportunity_accepted"
)

// Notification event types.
const (
	EventOpportunityAccepted = "opportunity_accepted"
	EventOpportunityRejected = "opportunity_rejected"
)

// OpportunityService persists finished opportunity records, publishes them
// on the signal bus, and notifies operators about accepted ones. It also
// backs the API's read paths.
type OpportunityService struct {
	store    domain.OpportunityStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewOpportunityService creates an OpportunityService. The bus and the
// notifier may be nil; recording then degrades to store-only.
func NewOpportunityService(
	store domain.OpportunityStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "opportunity_service")),
	}
}

// Record persists the record and publishes it on the bus. Every record is
// published on the detected channel; accepted records are additionally
// published on the accepted channel and forwarded to the notifier. Bus and
// notifier failures are logged, not returned; the store write is the only
// hard dependency.
func (s *OpportunityService) Record(ctx context.Context, rec domain.OpportunityRecord) error {
	if err := s.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("opportunity_service: insert record: %w", err)
	}

	s.publish(ctx, ChannelDetected, rec)
	if rec.Outcome.State == domain.ValidationAccepted {
		s.publish(ctx, ChannelAccepted, rec)
		s.notifyAccepted(ctx, rec)
	}

	s.logger.InfoContext(ctx, "opportunity recorded",
		slog.String("opp_id", rec.ID),
		slog.String("kind", rec.Kind.String()),
		slog.String("symbol", string(rec.Symbol)),
		slog.String("outcome", rec.Outcome.State.String()),
		slog.Bool("actionable", rec.Actionable),
	)
	return nil
}

// ListRecent returns the most recent records up to limit.
func (s *OpportunityService) ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error) {
	recs, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return recs, nil
}

// ListBySymbol returns records for one symbol.
func (s *OpportunityService) ListBySymbol(ctx context.Context, symbol domain.Symbol, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	recs, err := s.store.ListBySymbol(ctx, symbol, opts)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list by symbol %q: %w", symbol, err)
	}
	return recs, nil
}

// CountByOutcome aggregates accepted/rejected counts per kind since the
// given time.
func (s *OpportunityService) CountByOutcome(ctx context.Context, kind domain.OpportunityKind, since time.Time) (domain.OutcomeCounts, error) {
	counts, err := s.store.CountByOutcome(ctx, kind, since)
	if err != nil {
		return domain.OutcomeCounts{}, fmt.Errorf("opportunity_service: count by outcome: %w", err)
	}
	return counts, nil
}

// Prune removes records older than cutoff, returning the number deleted.
func (s *OpportunityService) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("opportunity_service: prune: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pruned opportunity records",
			slog.Int64("deleted", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return n, nil
}

func (s *OpportunityService) publish(ctx context.Context, channel string, rec domain.OpportunityRecord) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(busEvent(rec))
	if err != nil {
		s.logger.WarnContext(ctx, "marshal bus event failed",
			slog.String("opp_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("opp_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// busEvent flattens a record into the wire shape downstream consumers
// subscribe to.
func busEvent(rec domain.OpportunityRecord) map[string]any {
	evt := map[string]any{
		"opp_id":     rec.ID,
		"kind":       rec.Kind.String(),
		"symbol":     string(rec.Symbol),
		"outcome":    rec.Outcome.State.String(),
		"reason":     rec.Outcome.Reason.String(),
		"actionable": rec.Actionable,
		"risk":       rec.RiskScore(),
		"confidence": rec.ConfidenceScore(),
		"recorded":   rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	switch {
	case rec.Funding != nil:
		evt["venue_a"] = string(rec.Funding.VenueA)
		evt["venue_b"] = string(rec.Funding.VenueB)
		evt["rate_diff"] = rec.Funding.RateDiff
		evt["rate_diff_annualized"] = rec.Funding.RateDiffAnnualized
		evt["direction"] = rec.Funding.Direction.String()
		evt["profit_per_period"] = rec.Funding.ProfitPerPeriod
	case rec.Basis != nil:
		evt["venue"] = string(rec.Basis.Venue)
		evt["contract_type"] = rec.Basis.ContractType.String()
		evt["basis_pct"] = rec.Basis.BasisPct
		evt["annualized_return"] = rec.Basis.AnnualizedReturn
		evt["structure"] = rec.Basis.Structure.String()
	}
	return evt
}

func (s *OpportunityService) notifyAccepted(ctx context.Context, rec domain.OpportunityRecord) {
	if s.notifier == nil {
		return
	}
	var title, body string
	switch {
	case rec.Funding != nil:
		o := rec.Funding
		title = fmt.Sprintf("Funding arb: %s", o.Symbol)
		body = fmt.Sprintf("%s vs %s\nrate diff: %.4f%% (%.1f%% annualized)\ndirection: %s\nconfidence: %.2f",
			o.VenueA, o.VenueB, o.RateDiff*100, o.RateDiffAnnualized*100, o.Direction, o.ConfidenceScore)
	case rec.Basis != nil:
		o := rec.Basis
		title = fmt.Sprintf("Basis trade: %s @ %s", o.Symbol, o.Venue)
		body = fmt.Sprintf("%s %s\nbasis: %.2f%% (%.1f%% annualized)\nconfidence: %.2f",
			o.ContractType, o.Structure, o.BasisPct*100, o.AnnualizedReturn*100, o.ConfidenceScore)
	default:
		return
	}
	alert := notify.Alert{Event: EventOpportunityAccepted, Title: title, Body: body}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("opp_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
