// Package analyzer implements the two pure opportunity analyzers. Both
// take all inputs (snapshots, venue metadata, volatility, the current
// time) as arguments and perform no I/O and no wall-clock reads, so
// identical inputs produce identical opportunity records.
package analyzer

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/scoring"
)

// Risk sub-factor names shared with the configured weight vectors.
const (
	FactorMarkDivergence   = "mark_divergence"
	FactorRateVolatility   = "rate_volatility"
	FactorVenueReliability = "venue_reliability"
	FactorBasisExtremity   = "basis_extremity"
	FactorExpiry           = "expiry"
	FactorLiquidity        = "liquidity"
	FactorVolatility       = "volatility"
)

// Normalization scales for funding risk sub-factors. A mark-price
// divergence of 1% between venues, or a per-period funding-rate stddev of
// 10 bps, saturates its factor at 1.
const (
	markDivergenceScale = 0.01
	rateVolatilityScale = 0.001
)

const hoursPerYear = 365 * 24

// FundingConfig holds the funding-rate analyzer thresholds. All values
// come from the immutable detection config.
type FundingConfig struct {
	MinRateDiff        float64
	PositionSizeUSD    float64
	InitialMarginRate  float64
	MarginSafetyFactor float64
	StalenessWindow    time.Duration
}

// FundingRateAnalyzer turns a pair of funding-rate snapshots for the same
// symbol on two venues into a FundingRateOpportunity, or nothing when the
// differential is too small or unprofitable after fees.
type FundingRateAnalyzer struct {
	cfg    FundingConfig
	risk   *scoring.RiskScorer
	conf   *scoring.ConfidenceScorer
	logger *slog.Logger
}

// NewFundingRateAnalyzer creates a funding-rate analyzer sharing the given
// scorers with the basis analyzer.
func NewFundingRateAnalyzer(cfg FundingConfig, risk *scoring.RiskScorer, conf *scoring.ConfidenceScorer, logger *slog.Logger) *FundingRateAnalyzer {
	return &FundingRateAnalyzer{
		cfg:    cfg,
		risk:   risk,
		conf:   conf,
		logger: logger.With(slog.String("component", "funding_analyzer")),
	}
}

// Analyze evaluates the funding-rate differential between snapA and snapB.
// It returns (nil, nil) when no opportunity clears the configured
// thresholds, and an error only for unusable input data:
// ErrStalePrice when either snapshot is older than the staleness window
// relative to now, ErrDataUnavailable when a mark price is non-positive,
// ErrComputation when the snapshots disagree on the symbol.
//
// rateVolatility is the per-period standard deviation of the symbol's
// recent funding rates (see RateTracker); now is injected by the caller so
// the analyzer stays deterministic.
func (a *FundingRateAnalyzer) Analyze(
	snapA, snapB domain.FundingRateSnapshot,
	venueA, venueB domain.Venue,
	rateVolatility float64,
	now time.Time,
) (*domain.FundingRateOpportunity, error) {
	if snapA.Symbol != snapB.Symbol {
		return nil, fmt.Errorf("funding analyzer: symbol mismatch %s vs %s: %w", snapA.Symbol, snapB.Symbol, domain.ErrComputation)
	}
	for _, snap := range []domain.FundingRateSnapshot{snapA, snapB} {
		if age := now.Sub(snap.Timestamp); age > a.cfg.StalenessWindow {
			return nil, fmt.Errorf("funding analyzer: %s snapshot age %s exceeds %s: %w",
				snap.Venue, age, a.cfg.StalenessWindow, domain.ErrStalePrice)
		}
		if snap.MarkPrice <= 0 {
			return nil, fmt.Errorf("funding analyzer: %s mark price %g: %w",
				snap.Venue, snap.MarkPrice, domain.ErrDataUnavailable)
		}
	}

	rateDiff := snapA.Rate - snapB.Rate
	if math.Abs(rateDiff) < a.cfg.MinRateDiff {
		return nil, nil
	}

	// Annualize using venue A's funding interval; the major perp venues
	// share the 8h cycle.
	period := snapA.FundingPeriod()
	periodsPerYear := hoursPerYear / period.Hours()
	rateDiffAnnualized := rateDiff * periodsPerYear

	notional := a.cfg.PositionSizeUSD
	profitPerPeriod := math.Abs(rateDiff) * notional
	// Two opening taker legs, one per venue. Closing legs are assumed
	// amortized over the holding period.
	estimatedFees := notional * (venueA.Fees.FuturesTaker + venueB.Fees.FuturesTaker)
	if profitPerPeriod-estimatedFees <= 0 {
		a.logger.Debug("funding differential unprofitable after fees",
			slog.String("symbol", string(snapA.Symbol)),
			slog.Float64("profit_per_period", profitPerPeriod),
			slog.Float64("estimated_fees", estimatedFees),
		)
		return nil, nil
	}

	// Margin posted on both legs.
	requiredMargin := 2 * notional * a.cfg.InitialMarginRate * a.cfg.MarginSafetyFactor

	direction := domain.DirectionShortALongB
	if rateDiff < 0 {
		direction = domain.DirectionLongAShortB
	}

	nextFunding := snapA.NextFundingTime
	if !snapB.NextFundingTime.IsZero() && (nextFunding.IsZero() || snapB.NextFundingTime.Before(nextFunding)) {
		nextFunding = snapB.NextFundingTime
	}

	mid := (snapA.MarkPrice + snapB.MarkPrice) / 2
	riskScore := a.risk.Score(map[string]float64{
		FactorMarkDivergence:   math.Abs(snapA.MarkPrice-snapB.MarkPrice) / mid / markDivergenceScale,
		FactorRateVolatility:   math.Abs(rateVolatility) / rateVolatilityScale,
		FactorVenueReliability: 1 - (venueA.Reliability+venueB.Reliability)/2,
	})

	reliability := scoring.Clamp01((venueA.Reliability + venueB.Reliability) / 2)
	confidence := a.conf.Score(profitPerPeriod-estimatedFees, riskScore, reliability)

	opp := &domain.FundingRateOpportunity{
		ID:                 opportunityID("funding", string(snapA.Symbol), string(snapA.Venue), string(snapB.Venue), now),
		Symbol:             snapA.Symbol,
		VenueA:             snapA.Venue,
		VenueB:             snapB.Venue,
		RateA:              snapA.Rate,
		RateB:              snapB.Rate,
		RateDiff:           rateDiff,
		RateDiffAnnualized: rateDiffAnnualized,
		ProfitPerPeriod:    profitPerPeriod,
		Direction:          direction,
		NextFundingTime:    nextFunding,
		Notional:           notional,
		RequiredMargin:     requiredMargin,
		EstimatedFees:      estimatedFees,
		RiskScore:          riskScore,
		ConfidenceScore:    confidence,
		Timestamp:          now,
	}
	a.logger.Debug("funding opportunity detected",
		slog.String("symbol", string(opp.Symbol)),
		slog.Float64("rate_diff", opp.RateDiff),
		slog.Float64("annualized", opp.RateDiffAnnualized),
		slog.Float64("risk", opp.RiskScore),
		slog.Float64("confidence", opp.ConfidenceScore),
	)
	return opp, nil
}

// opportunityID derives a stable UUID from the opportunity's identity and
// detection timestamp, so identical inputs reproduce identical records.
func opportunityID(parts ...any) string {
	elems := make([]string, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			elems = append(elems, v)
		case time.Time:
			elems = append(elems, fmt.Sprintf("%d", v.UnixNano()))
		default:
			elems = append(elems, fmt.Sprint(v))
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(elems, "|"))).String()
}
