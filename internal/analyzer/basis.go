package analyzer

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/scoring"
)

// Expiry risk shape for dated contracts: under pinRiskDays the factor
// rises toward 1 (pin risk), above farRiskDays it rises again with
// horizon uncertainty. Price volatility of 2% of spot saturates the
// volatility factor; dated contracts beyond the far-expiry penalty cutoff
// keep only this share of their depth-based liquidity score.
const (
	pinRiskDays          = 3.0
	farRiskDays          = 180.0
	priceVolatilityScale = 0.02
	farExpiryLiquidity   = 0.6
	perpExpiryRisk       = 0.1
	daysPerYear          = 365.0
)

// BasisConfig holds the basis analyzer thresholds. All values come from
// the immutable detection config.
type BasisConfig struct {
	MinBasisPct          float64
	PositionSizeUSD      float64
	InitialMarginRate    float64
	MarginSafetyFactor   float64
	MaxSaneBasisPct      float64
	ExtremityRiskFloor   float64
	DepthNotionalUSD     float64
	FarExpiryPenaltyDays int
	StalenessWindow      time.Duration
}

// BasisTradeAnalyzer turns a spot/futures price pair for one contract into
// a BasisTradingOpportunity, or nothing when the basis is too small or the
// trade unprofitable after fees.
type BasisTradeAnalyzer struct {
	cfg    BasisConfig
	risk   *scoring.RiskScorer
	conf   *scoring.ConfidenceScorer
	logger *slog.Logger
}

// NewBasisTradeAnalyzer creates a basis analyzer sharing the given scorers
// with the funding analyzer.
func NewBasisTradeAnalyzer(cfg BasisConfig, risk *scoring.RiskScorer, conf *scoring.ConfidenceScorer, logger *slog.Logger) *BasisTradeAnalyzer {
	return &BasisTradeAnalyzer{
		cfg:    cfg,
		risk:   risk,
		conf:   conf,
		logger: logger.With(slog.String("component", "basis_analyzer")),
	}
}

// Analyze evaluates the basis between spot and the given futures contract.
// It returns (nil, nil) when no opportunity clears the configured
// thresholds, and an error only for unusable input data: ErrStalePrice on
// quotes older than the staleness window, ErrDataUnavailable on
// non-positive prices, ErrComputation on a dated contract at or past
// expiry.
//
// depthNotional is the venue's notional-depth proxy for the contract (USD
// resting within the top of book); priceVolatility is the realized
// standard deviation of the symbol's recent prices. Both are supplied by
// the caller; now is injected so the analyzer stays deterministic.
func (a *BasisTradeAnalyzer) Analyze(
	spot, futures domain.PriceQuote,
	contract domain.FuturesContract,
	venue domain.Venue,
	depthNotional, priceVolatility float64,
	now time.Time,
) (*domain.BasisTradingOpportunity, error) {
	for name, q := range map[string]domain.PriceQuote{"spot": spot, "futures": futures} {
		if age := now.Sub(q.Timestamp); age > a.cfg.StalenessWindow {
			return nil, fmt.Errorf("basis analyzer: %s quote age %s exceeds %s: %w",
				name, age, a.cfg.StalenessWindow, domain.ErrStalePrice)
		}
		if q.Price <= 0 {
			return nil, fmt.Errorf("basis analyzer: non-positive %s price %g: %w",
				name, q.Price, domain.ErrDataUnavailable)
		}
	}

	basis := futures.Price - spot.Price
	basisPct := basis / spot.Price

	structure := domain.StructureBackwardation
	if basis > 0 {
		structure = domain.StructureContango
	}

	var (
		timeToExpiry     time.Duration
		annualizedReturn float64
	)
	switch contract.Type {
	case domain.ContractDated:
		timeToExpiry = contract.TimeToExpiry(now)
		if timeToExpiry <= 0 {
			return nil, fmt.Errorf("basis analyzer: contract %s/%s expired %s ago: %w",
				contract.Venue, contract.Symbol, -timeToExpiry, domain.ErrComputation)
		}
		annualizedReturn = basisPct * (daysPerYear / (timeToExpiry.Hours() / 24))
	case domain.ContractPerpetual:
		// No calendar expiry: the perp basis is harvested through funding
		// payments, so annualize over funding periods like the funding
		// analyzer does.
		period := contract.FundingPeriod
		if period <= 0 {
			period = domain.DefaultFundingPeriod
		}
		annualizedReturn = basisPct * (hoursPerYear / period.Hours())
	default:
		return nil, fmt.Errorf("basis analyzer: unknown contract type %d: %w", contract.Type, domain.ErrComputation)
	}

	if math.Abs(basisPct) < a.cfg.MinBasisPct {
		return nil, nil
	}

	notional := a.cfg.PositionSizeUSD
	// One spot leg and one futures leg, taker both sides.
	estimatedFees := notional * (venue.Fees.SpotTaker + venue.Fees.FuturesTaker)
	// Basis converges to zero by expiry (or through funding), so the gross
	// capture is the basis itself on the traded notional.
	grossProfit := math.Abs(basisPct) * notional
	netProfit := grossProfit - estimatedFees
	if netProfit <= 0 {
		a.logger.Debug("basis unprofitable after fees",
			slog.String("symbol", string(contract.Symbol)),
			slog.Float64("basis_pct", basisPct),
			slog.Float64("estimated_fees", estimatedFees),
		)
		return nil, nil
	}

	// Spot leg fully funded plus futures margin with safety factor.
	requiredMargin := notional + notional*a.cfg.InitialMarginRate*a.cfg.MarginSafetyFactor

	liquidityScore := a.liquidityScore(contract, depthNotional, timeToExpiry)

	factors := map[string]float64{
		FactorBasisExtremity: math.Abs(basisPct) / a.cfg.MaxSaneBasisPct,
		FactorExpiry:         a.expiryRisk(contract, timeToExpiry),
		FactorLiquidity:      1 - liquidityScore,
		FactorVolatility:     priceVolatility / spot.Price / priceVolatilityScale,
	}
	riskScore := a.risk.Score(factors)
	if math.Abs(basisPct) > a.cfg.MaxSaneBasisPct {
		// A basis this far out of line is treated as likely stale or
		// erroneous feed data, not as outsized return.
		riskScore = math.Max(riskScore, a.cfg.ExtremityRiskFloor)
		a.logger.Warn("basis beyond sane bound, flooring risk",
			slog.String("symbol", string(contract.Symbol)),
			slog.String("venue", string(venue.ID)),
			slog.Float64("basis_pct", basisPct),
			slog.Float64("max_sane_basis_pct", a.cfg.MaxSaneBasisPct),
		)
	}

	confidence := a.conf.Score(netProfit, riskScore, liquidityScore)

	opp := &domain.BasisTradingOpportunity{
		ID:               opportunityID("basis", string(contract.Symbol), string(venue.ID), contract.Type.String(), now),
		Symbol:           contract.Symbol,
		Venue:            venue.ID,
		ContractType:     contract.Type,
		SpotPrice:        spot.Price,
		FuturesPrice:     futures.Price,
		Basis:            basis,
		BasisPct:         basisPct,
		Structure:        structure,
		TimeToExpiry:     timeToExpiry,
		AnnualizedReturn: annualizedReturn,
		Notional:         notional,
		RequiredMargin:   requiredMargin,
		EstimatedFees:    estimatedFees,
		LiquidityScore:   liquidityScore,
		RiskScore:        riskScore,
		ConfidenceScore:  confidence,
		ExpiryDate:       contract.Expiry,
		ContractSize:     contract.ContractSize,
		Timestamp:        now,
	}
	a.logger.Debug("basis opportunity detected",
		slog.String("symbol", string(opp.Symbol)),
		slog.String("structure", opp.Structure.String()),
		slog.Float64("basis_pct", opp.BasisPct),
		slog.Float64("annualized", opp.AnnualizedReturn),
		slog.Float64("risk", opp.RiskScore),
		slog.Float64("confidence", opp.ConfidenceScore),
	)
	return opp, nil
}

// liquidityScore maps the depth proxy into [0,1] and penalizes dated
// contracts far from expiry where volume is historically lower.
func (a *BasisTradeAnalyzer) liquidityScore(contract domain.FuturesContract, depthNotional float64, timeToExpiry time.Duration) float64 {
	score := scoring.Clamp01(depthNotional / a.cfg.DepthNotionalUSD)
	if contract.Type == domain.ContractDated && a.cfg.FarExpiryPenaltyDays > 0 {
		if timeToExpiry.Hours()/24 > float64(a.cfg.FarExpiryPenaltyDays) {
			score *= farExpiryLiquidity
		}
	}
	return score
}

// expiryRisk is U-shaped for dated contracts: near-zero time to expiry is
// risky (pin risk), very long horizons are risky (uncertainty). Perpetuals
// carry a small constant term.
func (a *BasisTradeAnalyzer) expiryRisk(contract domain.FuturesContract, timeToExpiry time.Duration) float64 {
	if contract.Type != domain.ContractDated {
		return perpExpiryRisk
	}
	days := timeToExpiry.Hours() / 24
	near := scoring.Clamp01(1 - days/pinRiskDays)
	far := scoring.Clamp01((days - farRiskDays) / farRiskDays)
	return math.Max(near, far)
}
