package detector

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/derivbot/internal/analyzer"
	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/history"
	"github.com/alanyoungcy/derivbot/internal/scoring"
	"github.com/alanyoungcy/derivbot/internal/validator"
)

// fakeFeed serves fresh quotes for healthy venues and blocks until context
// deadline for venues listed in hang.
type fakeFeed struct {
	rates map[domain.VenueID]float64
	hang  map[domain.VenueID]bool
}

func (f *fakeFeed) await(ctx context.Context, venue domain.VenueID) error {
	if f.hang[venue] {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeFeed) GetFundingRate(ctx context.Context, venue domain.VenueID, _ domain.Symbol) (domain.FundingRateQuote, error) {
	if err := f.await(ctx, venue); err != nil {
		return domain.FundingRateQuote{}, err
	}
	return domain.FundingRateQuote{
		Rate:      f.rates[venue],
		MarkPrice: 60_000,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (f *fakeFeed) GetSpotPrice(ctx context.Context, venue domain.VenueID, _ domain.Symbol) (domain.PriceQuote, error) {
	if err := f.await(ctx, venue); err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{Price: 60_000, Timestamp: time.Now().UTC()}, nil
}

func (f *fakeFeed) GetFuturesPrice(ctx context.Context, venue domain.VenueID, _ domain.FuturesContract) (domain.PriceQuote, error) {
	if err := f.await(ctx, venue); err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{Price: 60_120, Timestamp: time.Now().UTC()}, nil
}

func (f *fakeFeed) ListFuturesContracts(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) ([]domain.FuturesContract, error) {
	if err := f.await(ctx, venue); err != nil {
		return nil, err
	}
	return []domain.FuturesContract{
		{Venue: venue, Symbol: symbol, Type: domain.ContractPerpetual},
	}, nil
}

func (f *fakeFeed) GetFundingRateHistory(ctx context.Context, venue domain.VenueID, _ domain.Symbol, _ time.Duration) ([]domain.FundingRateSnapshot, error) {
	if f.hang[venue] {
		return nil, domain.ErrUnsupported
	}
	return nil, nil
}

// captureRecorder collects records handed to the sink.
type captureRecorder struct {
	mu   sync.Mutex
	recs []domain.OpportunityRecord
	err  error
}

func (r *captureRecorder) Record(_ context.Context, rec domain.OpportunityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return r.err
}

func (r *captureRecorder) records() []domain.OpportunityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OpportunityRecord(nil), r.recs...)
}

func newTestDetector(t *testing.T, feed domain.MarketDataFeed, rec Recorder, venues []domain.Venue) *Detector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	risk, err := scoring.NewRiskScorer(map[string]float64{
		analyzer.FactorMarkDivergence:   0.40,
		analyzer.FactorRateVolatility:   0.35,
		analyzer.FactorVenueReliability: 0.25,
	})
	require.NoError(t, err)
	basisRisk, err := scoring.NewRiskScorer(map[string]float64{
		analyzer.FactorBasisExtremity: 0.35,
		analyzer.FactorExpiry:         0.25,
		analyzer.FactorLiquidity:      0.20,
		analyzer.FactorVolatility:     0.20,
	})
	require.NoError(t, err)
	conf, err := scoring.NewConfidenceScorer(scoring.ConfidenceConfig{
		ProfitWeight:       0.6,
		LiquidityWeight:    0.4,
		ReferenceProfitUSD: 50,
	})
	require.NoError(t, err)

	funding := analyzer.NewFundingRateAnalyzer(analyzer.FundingConfig{
		MinRateDiff:        0.0002,
		PositionSizeUSD:    10_000,
		InitialMarginRate:  0.10,
		MarginSafetyFactor: 1.5,
		StalenessWindow:    5 * time.Second,
	}, risk, conf, logger)

	basis := analyzer.NewBasisTradeAnalyzer(analyzer.BasisConfig{
		MinBasisPct:          0.001,
		PositionSizeUSD:      10_000,
		InitialMarginRate:    0.10,
		MarginSafetyFactor:   1.5,
		MaxSaneBasisPct:      0.25,
		ExtremityRiskFloor:   0.95,
		DepthNotionalUSD:     250_000,
		FarExpiryPenaltyDays: 120,
		StalenessWindow:      5 * time.Second,
	}, basisRisk, conf, logger)

	val := validator.New(feed, validator.Config{
		StalenessWindow:    5 * time.Second,
		MinProfitThreshold: 1.0,
		MinConfidenceScore: 0.1,
	}, logger)

	depths := make(map[domain.VenueID]float64, len(venues))
	for _, v := range venues {
		depths[v.ID] = 250_000
	}

	return New(DetectorConfig{
		Feed:      feed,
		Venues:    venues,
		Depths:    depths,
		Symbols:   []domain.Symbol{"BTC-USDT"},
		Funding:   funding,
		Basis:     basis,
		Validator: val,
		History:   history.New(history.Config{MaxRecords: 100, MaxAge: time.Hour}),
		Recorder:  rec,
		Config: Config{
			PollInterval:     time.Second,
			FetchTimeout:     50 * time.Millisecond,
			MaxConcurrency:   8,
			VolatilityWindow: time.Hour,
		},
		Logger: logger,
	})
}

func liquidVenue(id domain.VenueID, reliability float64) domain.Venue {
	return domain.Venue{
		ID: id,
		Fees: domain.FeeSchedule{
			SpotTaker:    0.0002,
			FuturesTaker: 0.0002,
		},
		Reliability: reliability,
	}
}

func TestDetector_Tick(t *testing.T) {
	t.Run("detects funding and basis opportunities", func(t *testing.T) {
		feed := &fakeFeed{rates: map[domain.VenueID]float64{
			"binance": 0.0005,
			"bybit":   -0.0003,
		}}
		rec := &captureRecorder{}
		d := newTestDetector(t, feed, rec, []domain.Venue{
			liquidVenue("binance", 0.95),
			liquidVenue("bybit", 0.90),
		})

		d.runTick(context.Background())

		recs := rec.records()
		var fundingRecs, basisRecs int
		for _, r := range recs {
			switch r.Kind {
			case domain.KindFundingRate:
				fundingRecs++
				require.NotNil(t, r.Funding)
				assert.InDelta(t, 0.0008, r.Funding.RateDiff, 1e-12)
				assert.Equal(t, domain.ValidationAccepted, r.Outcome.State)
				assert.True(t, r.Actionable)
			case domain.KindBasis:
				basisRecs++
				require.NotNil(t, r.Basis)
				assert.InDelta(t, 0.002, r.Basis.BasisPct, 1e-9)
			}
		}
		assert.Equal(t, 1, fundingRecs)
		assert.Equal(t, 2, basisRecs) // one per venue
		assert.Equal(t, len(recs), d.History().Len())
	})

	t.Run("hanging venue does not block the others", func(t *testing.T) {
		feed := &fakeFeed{
			rates: map[domain.VenueID]float64{
				"binance": 0.0005,
				"bybit":   -0.0003,
			},
			hang: map[domain.VenueID]bool{"okx": true},
		}
		rec := &captureRecorder{}
		d := newTestDetector(t, feed, rec, []domain.Venue{
			liquidVenue("binance", 0.95),
			liquidVenue("bybit", 0.90),
			liquidVenue("okx", 0.85),
		})

		start := time.Now()
		d.runTick(context.Background())
		elapsed := time.Since(start)

		// The hanging venue is bounded by its own fetch timeout, not the
		// poll interval.
		assert.Less(t, elapsed, 800*time.Millisecond)

		var fundingRecs int
		for _, r := range rec.records() {
			if r.Kind == domain.KindFundingRate {
				fundingRecs++
				assert.ElementsMatch(t,
					[]domain.VenueID{"binance", "bybit"},
					[]domain.VenueID{r.Funding.VenueA, r.Funding.VenueB})
			}
		}
		assert.Equal(t, 1, fundingRecs)
	})

	t.Run("record sink failure does not stop the tick", func(t *testing.T) {
		feed := &fakeFeed{rates: map[domain.VenueID]float64{
			"binance": 0.0005,
			"bybit":   -0.0003,
		}}
		rec := &captureRecorder{err: context.DeadlineExceeded}
		d := newTestDetector(t, feed, rec, []domain.Venue{
			liquidVenue("binance", 0.95),
			liquidVenue("bybit", 0.90),
		})

		d.runTick(context.Background())

		// Records still reach the in-memory history.
		assert.Greater(t, d.History().Len(), 0)
	})
}

func TestDetector_RunStopsOnCancel(t *testing.T) {
	feed := &fakeFeed{rates: map[domain.VenueID]float64{
		"binance": 0.0001,
		"bybit":   0.0001,
	}}
	d := newTestDetector(t, feed, &captureRecorder{}, []domain.Venue{
		liquidVenue("binance", 0.95),
		liquidVenue("bybit", 0.90),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("detector did not stop after cancellation")
	}
}
