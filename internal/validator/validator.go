// Package validator re-checks candidate opportunities against fresh feed
// data immediately before they are handed to execution. A validation is a
// two-state machine: Pending, then terminally Accepted or
// Rejected(reason). The candidate record is never mutated; the validator
// produces a new outcome to attach to it.
package validator

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// Config holds the re-check thresholds.
type Config struct {
	StalenessWindow    time.Duration
	MinProfitThreshold float64 // USD, post-fee
	MinConfidenceScore float64
}

// Validator performs the pre-execution re-checks against a fresh feed
// read.
type Validator struct {
	feed   domain.MarketDataFeed
	cfg    Config
	logger *slog.Logger
}

// New creates a Validator reading fresh data from feed.
func New(feed domain.MarketDataFeed, cfg Config, logger *slog.Logger) *Validator {
	return &Validator{
		feed:   feed,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "validator")),
	}
}

func accept(now time.Time) domain.ValidationOutcome {
	return domain.ValidationOutcome{State: domain.ValidationAccepted, Reason: domain.ReasonNone, CheckedAt: now}
}

func reject(reason domain.RejectReason, now time.Time) domain.ValidationOutcome {
	return domain.ValidationOutcome{State: domain.ValidationRejected, Reason: reason, CheckedAt: now}
}

// ValidateFunding re-verifies a funding-rate candidate: both venues'
// funding quotes must be fresh, the recomputed post-fee profit must still
// clear the profit threshold, and the candidate's confidence must clear
// the confidence threshold. The first failed check decides the outcome.
func (v *Validator) ValidateFunding(ctx context.Context, opp *domain.FundingRateOpportunity, now time.Time) domain.ValidationOutcome {
	quoteA, errA := v.feed.GetFundingRate(ctx, opp.VenueA, opp.Symbol)
	quoteB, errB := v.feed.GetFundingRate(ctx, opp.VenueB, opp.Symbol)
	if errA != nil || errB != nil {
		v.logger.Debug("funding revalidation: feed unavailable",
			slog.String("symbol", string(opp.Symbol)))
		return reject(domain.ReasonDataUnavailable, now)
	}
	if now.Sub(quoteA.Timestamp) > v.cfg.StalenessWindow || now.Sub(quoteB.Timestamp) > v.cfg.StalenessWindow {
		return reject(domain.ReasonStale, now)
	}

	rateDiff := quoteA.Rate - quoteB.Rate
	profit := math.Abs(rateDiff) * opp.Notional
	if profit-opp.EstimatedFees < v.cfg.MinProfitThreshold {
		v.logger.Debug("funding revalidation: no longer profitable",
			slog.String("symbol", string(opp.Symbol)),
			slog.Float64("fresh_rate_diff", rateDiff),
		)
		return reject(domain.ReasonUnprofitable, now)
	}

	if opp.ConfidenceScore < v.cfg.MinConfidenceScore {
		return reject(domain.ReasonLowConfidence, now)
	}
	return accept(now)
}

// ValidateBasis re-verifies a basis candidate against fresh spot and
// futures prices, mirroring ValidateFunding's checks.
func (v *Validator) ValidateBasis(ctx context.Context, opp *domain.BasisTradingOpportunity, contract domain.FuturesContract, now time.Time) domain.ValidationOutcome {
	spot, errS := v.feed.GetSpotPrice(ctx, opp.Venue, opp.Symbol)
	futures, errF := v.feed.GetFuturesPrice(ctx, opp.Venue, contract)
	if errS != nil || errF != nil {
		v.logger.Debug("basis revalidation: feed unavailable",
			slog.String("symbol", string(opp.Symbol)))
		return reject(domain.ReasonDataUnavailable, now)
	}
	if now.Sub(spot.Timestamp) > v.cfg.StalenessWindow || now.Sub(futures.Timestamp) > v.cfg.StalenessWindow {
		return reject(domain.ReasonStale, now)
	}
	if spot.Price <= 0 {
		return reject(domain.ReasonDataUnavailable, now)
	}

	basisPct := (futures.Price - spot.Price) / spot.Price
	profit := math.Abs(basisPct) * opp.Notional
	if profit-opp.EstimatedFees < v.cfg.MinProfitThreshold {
		v.logger.Debug("basis revalidation: no longer profitable",
			slog.String("symbol", string(opp.Symbol)),
			slog.Float64("fresh_basis_pct", basisPct),
		)
		return reject(domain.ReasonUnprofitable, now)
	}

	if opp.ConfidenceScore < v.cfg.MinConfidenceScore {
		return reject(domain.ReasonLowConfidence, now)
	}
	return accept(now)
}
