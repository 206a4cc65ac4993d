package domain

import "time"

// OpportunityKind distinguishes the two opportunity variants.
type OpportunityKind int

const (
	KindFundingRate OpportunityKind = iota
	KindBasis
)

// String returns the snake_case name of the kind.
func (k OpportunityKind) String() string {
	switch k {
	case KindFundingRate:
		return "funding_rate"
	case KindBasis:
		return "basis"
	default:
		return "unknown"
	}
}

// PositionDirection encodes which leg is long in a funding-rate trade.
// Long the venue paying the lower rate, short the venue paying the higher
// rate, so funding is received on net.
type PositionDirection int

const (
	// DirectionLongAShortB: long on venue A, short on venue B (rate_diff < 0).
	DirectionLongAShortB PositionDirection = iota
	// DirectionShortALongB: short on venue A, long on venue B (rate_diff >= 0).
	DirectionShortALongB
)

// String returns a human-readable direction.
func (d PositionDirection) String() string {
	switch d {
	case DirectionLongAShortB:
		return "long_a_short_b"
	case DirectionShortALongB:
		return "short_a_long_b"
	default:
		return "unknown"
	}
}

// MarketStructure classifies the futures curve relative to spot.
type MarketStructure int

const (
	StructureContango MarketStructure = iota
	StructureBackwardation
)

// String returns the lowercase name of the market structure.
func (m MarketStructure) String() string {
	switch m {
	case StructureContango:
		return "contango"
	case StructureBackwardation:
		return "backwardation"
	default:
		return "unknown"
	}
}

// FundingRateOpportunity is a detected funding-rate differential between
// two venues' perpetual contracts on the same symbol. Immutable once
// created; recompute, don't patch.
type FundingRateOpportunity struct {
	ID                 string
	Symbol             Symbol
	VenueA             VenueID
	VenueB             VenueID
	RateA              float64
	RateB              float64
	RateDiff           float64 // RateA - RateB
	RateDiffAnnualized float64
	ProfitPerPeriod    float64 // |RateDiff| * notional, pre-fee
	Direction          PositionDirection
	NextFundingTime    time.Time // earlier of the two venues'
	Notional           float64
	RequiredMargin     float64
	EstimatedFees      float64 // two opening taker legs
	RiskScore          float64
	ConfidenceScore    float64
	Timestamp          time.Time
}

// BasisTradingOpportunity is a detected spot/futures basis on one venue.
// Immutable once created.
type BasisTradingOpportunity struct {
	ID               string
	Symbol           Symbol
	Venue            VenueID
	ContractType     ContractType
	SpotPrice        float64
	FuturesPrice     float64
	Basis            float64 // FuturesPrice - SpotPrice
	BasisPct         float64 // Basis / SpotPrice
	Structure        MarketStructure
	TimeToExpiry     time.Duration // zero for perpetual
	AnnualizedReturn float64
	Notional         float64
	RequiredMargin   float64
	EstimatedFees    float64
	LiquidityScore   float64
	RiskScore        float64
	ConfidenceScore  float64
	ExpiryDate       time.Time // zero for perpetual
	ContractSize     float64
	Timestamp        time.Time
}

// ValidationState is the terminal outcome of opportunity re-validation.
type ValidationState int

const (
	ValidationPending ValidationState = iota
	ValidationAccepted
	ValidationRejected
)

// String returns the lowercase name of the validation state.
func (s ValidationState) String() string {
	switch s {
	case ValidationPending:
		return "pending"
	case ValidationAccepted:
		return "accepted"
	case ValidationRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RejectReason names why a candidate failed re-validation.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonStale
	ReasonUnprofitable
	ReasonLowConfidence
	ReasonDataUnavailable
)

// String returns the snake_case name of the reject reason.
func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonStale:
		return "stale"
	case ReasonUnprofitable:
		return "unprofitable"
	case ReasonLowConfidence:
		return "low_confidence"
	case ReasonDataUnavailable:
		return "data_unavailable"
	default:
		return "unknown"
	}
}

// ValidationOutcome attaches a validator decision to an opportunity. It is
// produced fresh by the validator; the original opportunity is never
// mutated.
type ValidationOutcome struct {
	State     ValidationState
	Reason    RejectReason
	CheckedAt time.Time
}

// OpportunityRecord is one of the two opportunity variants plus its
// validation outcome, as appended to OpportunityHistory and streamed to
// the execution collaborator. Exactly one of Funding/Basis is non-nil,
// matching Kind.
type OpportunityRecord struct {
	ID         string
	Kind       OpportunityKind
	Symbol     Symbol
	Funding    *FundingRateOpportunity
	Basis      *BasisTradingOpportunity
	Outcome    ValidationOutcome
	Actionable bool // accepted AND confidence >= min_confidence_score
	RecordedAt time.Time
}

// RiskScore returns the risk score of the underlying opportunity.
func (r OpportunityRecord) RiskScore() float64 {
	switch {
	case r.Funding != nil:
		return r.Funding.RiskScore
	case r.Basis != nil:
		return r.Basis.RiskScore
	default:
		return 0
	}
}

// ConfidenceScore returns the confidence score of the underlying opportunity.
func (r OpportunityRecord) ConfidenceScore() float64 {
	switch {
	case r.Funding != nil:
		return r.Funding.ConfidenceScore
	case r.Basis != nil:
		return r.Basis.ConfidenceScore
	default:
		return 0
	}
}

// DirectionSign reduces the record to a trend sign: the sign of the rate
// differential for funding opportunities, the sign of the basis for basis
// opportunities. Zero when the record carries neither variant.
func (r OpportunityRecord) DirectionSign() int {
	var v float64
	switch {
	case r.Funding != nil:
		v = r.Funding.RateDiff
	case r.Basis != nil:
		v = r.Basis.Basis
	}
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
