package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/derivbot/internal/analyzer"
	"github.com/alanyoungcy/derivbot/internal/detector"
	"github.com/alanyoungcy/derivbot/internal/scoring"
	"github.com/alanyoungcy/derivbot/internal/server"
	"github.com/alanyoungcy/derivbot/internal/server/handler"
	"github.com/alanyoungcy/derivbot/internal/service"
	"github.com/alanyoungcy/derivbot/internal/validator"
)

// detectorLockTTL bounds how long a crashed detector blocks a standby
// instance; the lock is refreshed while the holder lives.
const detectorLockTTL = 30 * time.Second

// pruneInterval is how often the durable record sink is pruned against the
// retention policy.
const pruneInterval = time.Hour

// DetectMode runs the detection loop, the mark price stream warmers, and
// the retention pruner.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startDetector(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// ServerMode runs the HTTP API only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs detection and the HTTP API in one process. The API serves
// the live in-memory window the detector fills.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startDetector(ctx, g, deps); err != nil {
		return err
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// startDetector acquires the deployment-wide detector lock, builds the
// analysis pipeline, and starts the detection goroutines.
func (a *App) startDetector(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	unlock, err := deps.LockManager.Acquire(ctx, "detector", detectorLockTTL)
	if err != nil {
		return fmt.Errorf("detect mode: acquire detector lock: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		unlock()
		return ctx.Err()
	})

	oppSvc := a.newOpportunityService(deps)
	det, err := a.buildDetector(deps, oppSvc)
	if err != nil {
		return fmt.Errorf("detect mode: %w", err)
	}

	g.Go(func() error {
		return det.Run(ctx)
	})

	// Mark price streams warm the rate cache between polls.
	for _, stream := range deps.Streams {
		stream := stream
		g.Go(func() error {
			if err := stream.Connect(ctx); err != nil {
				// Streams are an optimization; REST polling still covers
				// every venue.
				a.logger.WarnContext(ctx, "mark price stream unavailable",
					slog.String("error", err.Error()),
				)
				return nil
			}
			<-ctx.Done()
			return stream.Close()
		})
	}

	// Retention pruner over the durable sink.
	if a.cfg.History.RetentionDays > 0 {
		retention := time.Duration(a.cfg.History.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			ticker := time.NewTicker(pruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					cutoff := time.Now().Add(-retention)
					if deps.Archiver != nil {
						if _, err := deps.Archiver.Archive(ctx, cutoff); err != nil {
							// Never prune records that failed to archive.
							a.logger.WarnContext(ctx, "record archive failed, skipping prune",
								slog.String("error", err.Error()),
							)
							continue
						}
					}
					if _, err := oppSvc.Prune(ctx, cutoff); err != nil {
						a.logger.WarnContext(ctx, "retention prune failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	return nil
}

// buildDetector assembles scorers, analyzers, validator, and the record
// pipeline from configuration.
func (a *App) buildDetector(deps *Dependencies, recorder detector.Recorder) (*detector.Detector, error) {
	fundingRisk, err := scoring.NewRiskScorer(a.cfg.Risk.FundingWeights)
	if err != nil {
		return nil, fmt.Errorf("funding risk scorer: %w", err)
	}
	basisRisk, err := scoring.NewRiskScorer(a.cfg.Risk.BasisWeights)
	if err != nil {
		return nil, fmt.Errorf("basis risk scorer: %w", err)
	}
	confidence, err := scoring.NewConfidenceScorer(scoring.ConfidenceConfig{
		ProfitWeight:       a.cfg.Confidence.ProfitWeight,
		LiquidityWeight:    a.cfg.Confidence.LiquidityWeight,
		ReferenceProfitUSD: a.cfg.Confidence.ReferenceNotionalUSD,
	})
	if err != nil {
		return nil, fmt.Errorf("confidence scorer: %w", err)
	}

	det := a.cfg.Detection
	fundingAnalyzer := analyzer.NewFundingRateAnalyzer(analyzer.FundingConfig{
		MinRateDiff:        det.MinFundingRateDiff,
		PositionSizeUSD:    det.PositionSizeUSD,
		InitialMarginRate:  det.InitialMarginRate,
		MarginSafetyFactor: det.MarginSafetyFactor,
		StalenessWindow:    det.StalenessWindow.Duration,
	}, fundingRisk, confidence, a.logger)

	basisAnalyzer := analyzer.NewBasisTradeAnalyzer(analyzer.BasisConfig{
		MinBasisPct:          det.MinBasisThreshold,
		PositionSizeUSD:      det.PositionSizeUSD,
		InitialMarginRate:    det.InitialMarginRate,
		MarginSafetyFactor:   det.MarginSafetyFactor,
		MaxSaneBasisPct:      det.MaxSaneBasisPct,
		ExtremityRiskFloor:   det.ExtremityRiskFloor,
		DepthNotionalUSD:     det.DepthNotionalUSD,
		FarExpiryPenaltyDays: det.FarExpiryPenaltyDays,
		StalenessWindow:      det.StalenessWindow.Duration,
	}, basisRisk, confidence, a.logger)

	val := validator.New(deps.Feed, validator.Config{
		StalenessWindow:    det.StalenessWindow.Duration,
		MinProfitThreshold: det.MinProfitThreshold,
		MinConfidenceScore: a.cfg.Confidence.MinConfidenceScore,
	}, a.logger)

	return detector.New(detector.DetectorConfig{
		Feed:      deps.Feed,
		Venues:    deps.Venues,
		Depths:    deps.Depths,
		Symbols:   symbols(a.cfg),
		Funding:   fundingAnalyzer,
		Basis:     basisAnalyzer,
		Validator: val,
		History:   deps.History,
		Recorder:  recorder,
		Config: detector.Config{
			PollInterval:     det.PollInterval.Duration,
			FetchTimeout:     det.FetchTimeout.Duration,
			MaxConcurrency:   det.MaxConcurrency,
			VolatilityWindow: det.VolatilityWindow.Duration,
		},
		Logger: a.logger,
	}), nil
}

func (a *App) newOpportunityService(deps *Dependencies) *service.OpportunityService {
	return service.NewOpportunityService(deps.OpportunityStore, deps.SignalBus, deps.Notifier, a.logger)
}

// startHTTPServer wires the handlers and runs the API server until the
// context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	oppSvc := a.newOpportunityService(deps)

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Opportunities: handler.NewOpportunityHandler(oppSvc, deps.History, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
