// Package detector runs the polling detection loop: on each tick it fans
// out feed fetches per (venue, symbol, data-kind) under a bounded worker
// pool, runs the pure analyzers over the gathered data, re-validates every
// candidate, and appends the outcome to history and the record sink. A
// slow or failing venue degrades coverage for its own pairs only.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/derivbot/internal/analyzer"
	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/history"
	"github.com/alanyoungcy/derivbot/internal/validator"
)

// trendWindow is the number of consecutive same-direction ticks after
// which a symbol is flagged persistent.
const trendWindow = 3

// Recorder receives finished opportunity records (accepted and rejected)
// for durable storage and downstream publication.
type Recorder interface {
	Record(ctx context.Context, rec domain.OpportunityRecord) error
}

// Config holds the detection-loop parameters.
type Config struct {
	PollInterval     time.Duration
	FetchTimeout     time.Duration
	MaxConcurrency   int
	VolatilityWindow time.Duration
}

// Detector owns one detection loop over the configured venues and
// symbols.
type Detector struct {
	feed      domain.MarketDataFeed
	venues    []domain.Venue
	depths    map[domain.VenueID]float64
	symbols   []domain.Symbol
	funding   *analyzer.FundingRateAnalyzer
	basis     *analyzer.BasisTradeAnalyzer
	validator *validator.Validator
	hist      *history.History
	recorder  Recorder
	tracker   *analyzer.RateTracker
	cfg       Config
	logger    *slog.Logger
}

// DetectorConfig bundles the detector's dependencies.
type DetectorConfig struct {
	Feed domain.MarketDataFeed
	// Venues carries the configured venue metadata (fees, reliability).
	Venues []domain.Venue
	// Depths maps venue id to its configured notional-depth proxy.
	Depths    map[domain.VenueID]float64
	Symbols   []domain.Symbol
	Funding   *analyzer.FundingRateAnalyzer
	Basis     *analyzer.BasisTradeAnalyzer
	Validator *validator.Validator
	History   *history.History
	Recorder  Recorder
	Config    Config
	Logger    *slog.Logger
}

// New creates a Detector.
func New(cfg DetectorConfig) *Detector {
	return &Detector{
		feed:      cfg.Feed,
		venues:    cfg.Venues,
		depths:    cfg.Depths,
		symbols:   cfg.Symbols,
		funding:   cfg.Funding,
		basis:     cfg.Basis,
		validator: cfg.Validator,
		hist:      cfg.History,
		recorder:  cfg.Recorder,
		tracker:   analyzer.NewRateTracker(cfg.Config.VolatilityWindow),
		cfg:       cfg.Config,
		logger:    cfg.Logger.With(slog.String("component", "detector")),
	}
}

// Run seeds the volatility trackers from funding-rate history, then runs
// one detection tick per poll interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started",
		slog.Duration("poll_interval", d.cfg.PollInterval),
		slog.Int("venues", len(d.venues)),
		slog.Int("symbols", len(d.symbols)),
	)
	defer d.logger.Info("detector stopped")

	d.seedHistory(ctx)

	// Run immediately on start.
	d.runTick(ctx)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.runTick(ctx)
		}
	}
}

// seedHistory warms the funding-rate volatility window from each venue's
// history endpoint. Venues without the capability are skipped.
func (d *Detector) seedHistory(ctx context.Context) {
	for _, venue := range d.venues {
		for _, symbol := range d.symbols {
			fctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
			snaps, err := d.feed.GetFundingRateHistory(fctx, venue.ID, symbol, d.cfg.VolatilityWindow)
			cancel()
			if err != nil {
				// ErrUnsupported is a declared capability gap, not a fault.
				level := slog.LevelWarn
				if errors.Is(err, domain.ErrUnsupported) {
					level = slog.LevelDebug
				}
				d.logger.Log(ctx, level, "funding history unavailable",
					slog.String("venue", string(venue.ID)),
					slog.String("symbol", string(symbol)),
					slog.String("error", err.Error()),
				)
				continue
			}
			points := make([]analyzer.ObsPoint, 0, len(snaps))
			for _, s := range snaps {
				points = append(points, analyzer.ObsPoint{Value: s.Rate, Time: s.Timestamp})
			}
			d.tracker.TrackBatch(fundingKey(venue.ID, symbol), points)
		}
	}
}

// tickData aggregates one tick's fetches. Collected concurrently under mu,
// read single-threaded in the analysis phase.
type tickData struct {
	mu        sync.Mutex
	funding   map[pairKey]domain.FundingRateQuote
	spot      map[pairKey]domain.PriceQuote
	contracts map[pairKey][]domain.FuturesContract
	futures   map[pairKey]map[string]domain.PriceQuote // inner key: contract identity
}

type pairKey struct {
	venue  domain.VenueID
	symbol domain.Symbol
}

func contractID(c domain.FuturesContract) string {
	if c.Type == domain.ContractDated {
		return fmt.Sprintf("dated:%d", c.Expiry.Unix())
	}
	return "perpetual"
}

// runTick executes one full detection pass. The whole tick shares a
// deadline of one poll interval; every fetch additionally carries its own
// timeout, and a failed fetch is isolated to its (venue, symbol) pair.
func (d *Detector) runTick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.PollInterval)
	defer cancel()

	now := time.Now().UTC()
	data := d.fetchAll(ctx)
	d.analyzeFunding(ctx, data, now)
	d.analyzeBasis(ctx, data, now)
}

// fetchAll fans out one fetch per (venue, symbol, data-kind) combination,
// bounded by MaxConcurrency. Failures are logged and leave the
// corresponding map entry absent.
func (d *Detector) fetchAll(ctx context.Context) *tickData {
	data := &tickData{
		funding:   make(map[pairKey]domain.FundingRateQuote),
		spot:      make(map[pairKey]domain.PriceQuote),
		contracts: make(map[pairKey][]domain.FuturesContract),
		futures:   make(map[pairKey]map[string]domain.PriceQuote),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrency)

	for _, venue := range d.venues {
		for _, symbol := range d.symbols {
			key := pairKey{venue: venue.ID, symbol: symbol}

			g.Go(func() error {
				fctx, cancel := context.WithTimeout(gctx, d.cfg.FetchTimeout)
				defer cancel()
				quote, err := d.feed.GetFundingRate(fctx, key.venue, key.symbol)
				if err != nil {
					d.logFetchErr("funding_rate", key, err)
					return nil
				}
				d.tracker.Track(fundingKey(key.venue, key.symbol), quote.Rate, quote.Timestamp)
				data.mu.Lock()
				data.funding[key] = quote
				data.mu.Unlock()
				return nil
			})

			g.Go(func() error {
				fctx, cancel := context.WithTimeout(gctx, d.cfg.FetchTimeout)
				defer cancel()
				quote, err := d.feed.GetSpotPrice(fctx, key.venue, key.symbol)
				if err != nil {
					d.logFetchErr("spot_price", key, err)
					return nil
				}
				d.tracker.Track(priceKey(key.venue, key.symbol), quote.Price, quote.Timestamp)
				data.mu.Lock()
				data.spot[key] = quote
				data.mu.Unlock()
				return nil
			})

			g.Go(func() error {
				fctx, cancel := context.WithTimeout(gctx, d.cfg.FetchTimeout)
				defer cancel()
				contracts, err := d.feed.ListFuturesContracts(fctx, key.venue, key.symbol)
				if err != nil {
					d.logFetchErr("contracts", key, err)
					return nil
				}
				prices := make(map[string]domain.PriceQuote, len(contracts))
				for _, c := range contracts {
					pctx, pcancel := context.WithTimeout(gctx, d.cfg.FetchTimeout)
					quote, perr := d.feed.GetFuturesPrice(pctx, key.venue, c)
					pcancel()
					if perr != nil {
						d.logFetchErr("futures_price", key, perr)
						continue
					}
					prices[contractID(c)] = quote
				}
				data.mu.Lock()
				data.contracts[key] = contracts
				data.futures[key] = prices
				data.mu.Unlock()
				return nil
			})
		}
	}

	// Workers never return errors; they isolate their own failures.
	_ = g.Wait()
	return data
}

// analyzeFunding evaluates every venue pair per symbol over the tick's
// funding quotes.
func (d *Detector) analyzeFunding(ctx context.Context, data *tickData, now time.Time) {
	for _, symbol := range d.symbols {
		for i := 0; i < len(d.venues); i++ {
			for j := i + 1; j < len(d.venues); j++ {
				venueA, venueB := d.venues[i], d.venues[j]
				quoteA, okA := data.funding[pairKey{venue: venueA.ID, symbol: symbol}]
				quoteB, okB := data.funding[pairKey{venue: venueB.ID, symbol: symbol}]
				if !okA || !okB {
					continue
				}

				snapA := snapshotFromQuote(venueA.ID, symbol, quoteA)
				snapB := snapshotFromQuote(venueB.ID, symbol, quoteB)
				vol := maxFloat(
					d.tracker.Volatility(fundingKey(venueA.ID, symbol)),
					d.tracker.Volatility(fundingKey(venueB.ID, symbol)),
				)

				opp, err := d.funding.Analyze(snapA, snapB, venueA, venueB, vol, now)
				if err != nil {
					d.logger.Warn("funding analysis failed",
						slog.String("symbol", string(symbol)),
						slog.String("venue_a", string(venueA.ID)),
						slog.String("venue_b", string(venueB.ID)),
						slog.String("error", err.Error()),
					)
					continue
				}
				if opp == nil {
					continue
				}

				outcome := d.validator.ValidateFunding(ctx, opp, now)
				d.record(ctx, domain.OpportunityRecord{
					ID:         opp.ID,
					Kind:       domain.KindFundingRate,
					Symbol:     symbol,
					Funding:    opp,
					Outcome:    outcome,
					Actionable: outcome.State == domain.ValidationAccepted,
					RecordedAt: now,
				})
			}
		}
	}
}

// analyzeBasis evaluates every contract with both a spot and futures quote
// this tick.
func (d *Detector) analyzeBasis(ctx context.Context, data *tickData, now time.Time) {
	for _, venue := range d.venues {
		for _, symbol := range d.symbols {
			key := pairKey{venue: venue.ID, symbol: symbol}
			spot, ok := data.spot[key]
			if !ok {
				continue
			}
			vol := d.tracker.Volatility(priceKey(venue.ID, symbol))

			for _, contract := range data.contracts[key] {
				futures, ok := data.futures[key][contractID(contract)]
				if !ok {
					continue
				}

				opp, err := d.basis.Analyze(spot, futures, contract, venue, d.depths[venue.ID], vol, now)
				if err != nil {
					d.logger.Warn("basis analysis failed",
						slog.String("symbol", string(symbol)),
						slog.String("venue", string(venue.ID)),
						slog.String("contract", contractID(contract)),
						slog.String("error", err.Error()),
					)
					continue
				}
				if opp == nil {
					continue
				}

				outcome := d.validator.ValidateBasis(ctx, opp, contract, now)
				d.record(ctx, domain.OpportunityRecord{
					ID:         opp.ID,
					Kind:       domain.KindBasis,
					Symbol:     symbol,
					Basis:      opp,
					Outcome:    outcome,
					Actionable: outcome.State == domain.ValidationAccepted,
					RecordedAt: now,
				})
			}
		}
	}
}

// record appends to history, forwards to the durable sink, and logs trend
// persistence.
func (d *Detector) record(ctx context.Context, rec domain.OpportunityRecord) {
	d.hist.Append(rec)

	if d.recorder != nil {
		if err := d.recorder.Record(ctx, rec); err != nil {
			d.logger.Warn("record sink failed",
				slog.String("opp_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if trend := d.hist.Trend(rec.Symbol, rec.Kind, trendWindow); trend.Persistent {
		d.logger.Info("persistent opportunity trend",
			slog.String("symbol", string(rec.Symbol)),
			slog.String("kind", rec.Kind.String()),
			slog.Int("sign", trend.Sign),
			slog.Int("ticks", trend.ConsecutiveTicks),
		)
	}
}

// History exposes the detector's history for the API layer.
func (d *Detector) History() *history.History {
	return d.hist
}

func (d *Detector) logFetchErr(kind string, key pairKey, err error) {
	d.logger.Warn("fetch failed",
		slog.String("data_kind", kind),
		slog.String("venue", string(key.venue)),
		slog.String("symbol", string(key.symbol)),
		slog.String("error", err.Error()),
	)
}

func snapshotFromQuote(venue domain.VenueID, symbol domain.Symbol, q domain.FundingRateQuote) domain.FundingRateSnapshot {
	return domain.FundingRateSnapshot{
		Venue:           venue,
		Symbol:          symbol,
		Rate:            q.Rate,
		MarkPrice:       q.MarkPrice,
		NextFundingTime: q.NextFundingTime,
		Period:          q.Period,
		Timestamp:       q.Timestamp,
	}
}

func fundingKey(venue domain.VenueID, symbol domain.Symbol) string {
	return "funding|" + string(venue) + "|" + string(symbol)
}

func priceKey(venue domain.VenueID, symbol domain.Symbol) string {
	return "price|" + string(venue) + "|" + string(symbol)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
