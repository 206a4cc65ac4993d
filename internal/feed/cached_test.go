package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// mapCache is an in-memory RateCache.
type mapCache struct {
	funding map[string]domain.FundingRateQuote
	prices  map[string]domain.PriceQuote
	setErr  error
	getErr  error
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{
		funding: make(map[string]domain.FundingRateQuote),
		prices:  make(map[string]domain.PriceQuote),
	}
}

func cacheKey(venue domain.VenueID, symbol domain.Symbol, market string) string {
	return string(venue) + "|" + string(symbol) + "|" + market
}

func (m *mapCache) SetFundingRate(_ context.Context, venue domain.VenueID, symbol domain.Symbol, q domain.FundingRateQuote) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.funding[cacheKey(venue, symbol, "")] = q
	return nil
}

func (m *mapCache) GetFundingRate(_ context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.FundingRateQuote, error) {
	if m.getErr != nil {
		return domain.FundingRateQuote{}, m.getErr
	}
	q, ok := m.funding[cacheKey(venue, symbol, "")]
	if !ok {
		return domain.FundingRateQuote{}, domain.ErrDataUnavailable
	}
	return q, nil
}

func (m *mapCache) SetPrice(_ context.Context, venue domain.VenueID, symbol domain.Symbol, market string, q domain.PriceQuote) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.prices[cacheKey(venue, symbol, market)] = q
	return nil
}

func (m *mapCache) GetPrice(_ context.Context, venue domain.VenueID, symbol domain.Symbol, market string) (domain.PriceQuote, error) {
	if m.getErr != nil {
		return domain.PriceQuote{}, m.getErr
	}
	q, ok := m.prices[cacheKey(venue, symbol, market)]
	if !ok {
		return domain.PriceQuote{}, domain.ErrDataUnavailable
	}
	return q, nil
}

// countingAdapter counts inner feed calls.
type countingAdapter struct {
	fundingCalls int
	spotCalls    int
	futCalls     int
	err          error
}

func (a *countingAdapter) GetFundingRate(_ context.Context, _ domain.Symbol) (domain.FundingRateQuote, error) {
	a.fundingCalls++
	if a.err != nil {
		return domain.FundingRateQuote{}, a.err
	}
	return domain.FundingRateQuote{Rate: 0.0005, MarkPrice: 60_000, Timestamp: time.Now()}, nil
}

func (a *countingAdapter) GetSpotPrice(_ context.Context, _ domain.Symbol) (domain.PriceQuote, error) {
	a.spotCalls++
	if a.err != nil {
		return domain.PriceQuote{}, a.err
	}
	return domain.PriceQuote{Price: 60_000, Timestamp: time.Now()}, nil
}

func (a *countingAdapter) GetFuturesPrice(_ context.Context, _ domain.FuturesContract) (domain.PriceQuote, error) {
	a.futCalls++
	if a.err != nil {
		return domain.PriceQuote{}, a.err
	}
	return domain.PriceQuote{Price: 60_120, Timestamp: time.Now()}, nil
}

func (a *countingAdapter) ListFuturesContracts(_ context.Context, symbol domain.Symbol) ([]domain.FuturesContract, error) {
	return []domain.FuturesContract{{Venue: "binance", Symbol: symbol, Type: domain.ContractPerpetual}}, nil
}

func (a *countingAdapter) GetFundingRateHistory(_ context.Context, _ domain.Symbol, _ time.Duration) ([]domain.FundingRateSnapshot, error) {
	return nil, domain.ErrUnsupported
}

func newCachedFeed(adapter VenueAdapter, cache domain.RateCache) *Cached {
	composite := NewComposite(map[domain.VenueID]VenueAdapter{"binance": adapter})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCached(composite, cache, 5*time.Second, logger)
}

func TestCached_GetFundingRate(t *testing.T) {
	ctx := context.Background()

	t.Run("miss hits inner feed and writes back", func(t *testing.T) {
		adapter := &countingAdapter{}
		cache := newMapCache()
		feed := newCachedFeed(adapter, cache)

		q, err := feed.GetFundingRate(ctx, "binance", "BTC-USDT")
		require.NoError(t, err)
		assert.InDelta(t, 0.0005, q.Rate, 1e-12)
		assert.Equal(t, 1, adapter.fundingCalls)
		assert.Equal(t, 1, cache.sets)
	})

	t.Run("fresh hit skips inner feed", func(t *testing.T) {
		adapter := &countingAdapter{}
		cache := newMapCache()
		feed := newCachedFeed(adapter, cache)

		require.NoError(t, cache.SetFundingRate(ctx, "binance", "BTC-USDT",
			domain.FundingRateQuote{Rate: 0.0003, Timestamp: time.Now()}))

		q, err := feed.GetFundingRate(ctx, "binance", "BTC-USDT")
		require.NoError(t, err)
		assert.InDelta(t, 0.0003, q.Rate, 1e-12)
		assert.Equal(t, 0, adapter.fundingCalls)
	})

	t.Run("stale hit falls through to inner feed", func(t *testing.T) {
		adapter := &countingAdapter{}
		cache := newMapCache()
		feed := newCachedFeed(adapter, cache)

		require.NoError(t, cache.SetFundingRate(ctx, "binance", "BTC-USDT",
			domain.FundingRateQuote{Rate: 0.0003, Timestamp: time.Now().Add(-time.Minute)}))

		q, err := feed.GetFundingRate(ctx, "binance", "BTC-USDT")
		require.NoError(t, err)
		assert.InDelta(t, 0.0005, q.Rate, 1e-12)
		assert.Equal(t, 1, adapter.fundingCalls)
	})

	t.Run("cache failure degrades to inner feed", func(t *testing.T) {
		adapter := &countingAdapter{}
		cache := newMapCache()
		cache.getErr = errors.New("connection refused")
		cache.setErr = errors.New("connection refused")
		feed := newCachedFeed(adapter, cache)

		q, err := feed.GetFundingRate(ctx, "binance", "BTC-USDT")
		require.NoError(t, err)
		assert.InDelta(t, 0.0005, q.Rate, 1e-12)
	})

	t.Run("inner feed errors pass through", func(t *testing.T) {
		adapter := &countingAdapter{err: domain.ErrDataUnavailable}
		feed := newCachedFeed(adapter, newMapCache())

		_, err := feed.GetFundingRate(ctx, "binance", "BTC-USDT")
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})
}

func TestCached_Prices(t *testing.T) {
	ctx := context.Background()

	t.Run("spot and futures use distinct markets", func(t *testing.T) {
		adapter := &countingAdapter{}
		cache := newMapCache()
		feed := newCachedFeed(adapter, cache)

		spot, err := feed.GetSpotPrice(ctx, "binance", "BTC-USDT")
		require.NoError(t, err)
		fut, err := feed.GetFuturesPrice(ctx, "binance", domain.FuturesContract{
			Venue: "binance", Symbol: "BTC-USDT", Type: domain.ContractPerpetual,
		})
		require.NoError(t, err)

		assert.InDelta(t, 60_000, spot.Price, 1e-9)
		assert.InDelta(t, 60_120, fut.Price, 1e-9)
		assert.Contains(t, cache.prices, cacheKey("binance", "BTC-USDT", MarketSpot))
		assert.Contains(t, cache.prices, cacheKey("binance", "BTC-USDT", "futures:perpetual"))
	})

	t.Run("dated contracts key by expiry date", func(t *testing.T) {
		expiry := time.Date(2026, 6, 26, 8, 0, 0, 0, time.UTC)
		market := contractMarket(domain.FuturesContract{Type: domain.ContractDated, Expiry: expiry})
		assert.Equal(t, "futures:2026-06-26", market)
	})
}

func TestComposite_UnknownVenue(t *testing.T) {
	composite := NewComposite(map[domain.VenueID]VenueAdapter{})

	_, err := composite.GetFundingRate(context.Background(), "okx", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = composite.GetSpotPrice(context.Background(), "okx", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = composite.ListFuturesContracts(context.Background(), "okx", "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}
