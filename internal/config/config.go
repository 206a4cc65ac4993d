// Package config defines the top-level configuration for derivbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DERIVBOT_* environment
// variables. Config is immutable after Load; components copy the
// sub-config they need at construction.
type Config struct {
	Venues     []VenueConfig    `toml:"venues"`
	Symbols    []string         `toml:"symbols"`
	Detection  DetectionConfig  `toml:"detection"`
	Risk       RiskConfig       `toml:"risk"`
	Confidence ConfidenceConfig `toml:"confidence"`
	History    HistoryConfig    `toml:"history"`
	Archive    ArchiveConfig    `toml:"archive"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// VenueConfig describes one trading venue: identity, driver, endpoints,
// fee schedule, and static reliability weight.
type VenueConfig struct {
	ID          string  `toml:"id"`
	Driver      string  `toml:"driver"` // "binance" or "bybit"
	RestURL     string  `toml:"rest_url"`
	WsURL       string  `toml:"ws_url"`
	Reliability float64 `toml:"reliability"`
	// DepthNotionalUSD is the venue's typical top-of-book resting notional,
	// used as the thin-contract liquidity proxy.
	DepthNotionalUSD float64 `toml:"depth_notional_usd"`

	SpotMakerFee    float64 `toml:"spot_maker_fee"`
	SpotTakerFee    float64 `toml:"spot_taker_fee"`
	FuturesMakerFee float64 `toml:"futures_maker_fee"`
	FuturesTakerFee float64 `toml:"futures_taker_fee"`
}

// DetectionConfig holds the detection-loop and analyzer thresholds.
type DetectionConfig struct {
	PollInterval       duration `toml:"poll_interval"`
	FetchTimeout       duration `toml:"fetch_timeout"`
	MaxConcurrency     int      `toml:"max_concurrency"`
	StalenessWindow    duration `toml:"staleness_window"`
	MinFundingRateDiff float64  `toml:"min_funding_rate_diff"`
	MinBasisThreshold  float64  `toml:"min_basis_threshold"`
	MinProfitThreshold float64  `toml:"min_profit_threshold"` // USD, post-fee
	PositionSizeUSD    float64  `toml:"position_size_usd"`
	InitialMarginRate  float64  `toml:"initial_margin_rate"`
	MarginSafetyFactor float64  `toml:"margin_safety_factor"`
	// MaxSaneBasisPct: |basis_pct| beyond this is treated as likely stale
	// or erroneous data and floors the risk score instead of signalling
	// outsized return.
	MaxSaneBasisPct float64 `toml:"max_sane_basis_pct"`
	// ExtremityRiskFloor is the minimum risk score assigned when the sane
	// bound is exceeded.
	ExtremityRiskFloor float64 `toml:"extremity_risk_floor"`
	// VolatilityWindow bounds the funding-rate history window used for
	// volatility risk inputs.
	VolatilityWindow duration `toml:"volatility_window"`
	// DepthNotionalUSD is the notional-depth proxy a contract must carry
	// for a full liquidity score.
	DepthNotionalUSD float64 `toml:"depth_notional_usd"`
	// FarExpiryPenaltyDays: dated contracts beyond this many days to
	// expiry take a liquidity penalty (volume is historically lower far
	// from expiry).
	FarExpiryPenaltyDays int `toml:"far_expiry_penalty_days"`
	// VenueRateLimit caps outbound requests per venue per
	// VenueRateLimitWindow. The budget must clear one full tick's fetches
	// (symbols x funding/spot/contract calls) inside the fetch timeout,
	// or the detector degrades itself.
	VenueRateLimit       int      `toml:"venue_rate_limit"`
	VenueRateLimitWindow duration `toml:"venue_rate_limit_window"`
}

// RiskConfig holds the convex-combination weight vectors for the risk
// scorer, one per analyzer. Each map's weights are normalized to sum to 1
// at construction.
type RiskConfig struct {
	FundingWeights map[string]float64 `toml:"funding_weights"`
	BasisWeights   map[string]float64 `toml:"basis_weights"`
}

// ConfidenceConfig holds the confidence scorer parameters.
type ConfidenceConfig struct {
	ProfitWeight    float64 `toml:"profit_weight"`
	LiquidityWeight float64 `toml:"liquidity_weight"`
	// ReferenceNotionalUSD saturates the profit term: profit at or above
	// this reference maps to 1.
	ReferenceNotionalUSD float64 `toml:"reference_notional_usd"`
	MinConfidenceScore   float64 `toml:"min_confidence_score"`
}

// HistoryConfig holds the retention policy for the in-memory history and
// the durable record sink.
type HistoryConfig struct {
	MaxRecords    int      `toml:"max_records"`
	MaxAge        duration `toml:"max_age"`
	RetentionDays int      `toml:"retention_days"` // postgres sink pruning
}

// ArchiveConfig holds the S3-compatible cold storage settings for pruned
// opportunity records. When disabled, pruned records are simply deleted.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"` // empty for AWS S3
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey gates the API when non-empty.
	APIKey string `toml:"api_key"`
	// RateLimit caps requests per client IP per RateLimitWindow; zero
	// disables rate limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "30m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5s" or "30m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Venues: []VenueConfig{
			{
				ID:               "binance",
				Driver:           "binance",
				RestURL:          "https://fapi.binance.com",
				WsURL:            "wss://fstream.binance.com/ws",
				Reliability:      0.95,
				DepthNotionalUSD: 500_000,
				SpotMakerFee:     0.0002,
				SpotTakerFee:     0.0004,
				FuturesMakerFee:  0.0002,
				FuturesTakerFee:  0.0004,
			},
			{
				ID:               "bybit",
				Driver:           "bybit",
				RestURL:          "https://api.bybit.com",
				Reliability:      0.90,
				DepthNotionalUSD: 300_000,
				SpotMakerFee:     0.0002,
				SpotTakerFee:     0.0005,
				FuturesMakerFee:  0.0002,
				FuturesTakerFee:  0.0005,
			},
		},
		Symbols: []string{"BTC-USDT", "ETH-USDT"},
		Detection: DetectionConfig{
			PollInterval:         duration{10 * time.Second},
			FetchTimeout:         duration{3 * time.Second},
			MaxConcurrency:       8,
			StalenessWindow:      duration{5 * time.Second},
			MinFundingRateDiff:   0.0002,
			MinBasisThreshold:    0.001,
			MinProfitThreshold:   1.0,
			PositionSizeUSD:      10_000,
			InitialMarginRate:    0.10,
			MarginSafetyFactor:   1.5,
			MaxSaneBasisPct:      0.25,
			ExtremityRiskFloor:   0.95,
			VolatilityWindow:     duration{72 * time.Hour},
			DepthNotionalUSD:     250_000,
			FarExpiryPenaltyDays: 120,
			VenueRateLimit:       20,
			VenueRateLimitWindow: duration{time.Second},
		},
		Risk: RiskConfig{
			FundingWeights: map[string]float64{
				"mark_divergence":   0.40,
				"rate_volatility":   0.35,
				"venue_reliability": 0.25,
			},
			BasisWeights: map[string]float64{
				"basis_extremity": 0.35,
				"expiry":          0.25,
				"liquidity":       0.20,
				"volatility":      0.20,
			},
		},
		Confidence: ConfidenceConfig{
			ProfitWeight:         0.6,
			LiquidityWeight:      0.4,
			ReferenceNotionalUSD: 50.0,
			MinConfidenceScore:   0.35,
		},
		History: HistoryConfig{
			MaxRecords:    5000,
			MaxAge:        duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Region:  "us-east-1",
			UseSSL:  true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "derivbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       50,
			RateLimitWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_accepted", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detect": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validDrivers enumerates the supported venue drivers.
var validDrivers = map[string]bool{
	"binance": true,
	"bybit":   true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found. Configuration
// errors are the only fatal errors in the system; everything downstream
// degrades per-symbol.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues
	if len(c.Venues) < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least 2 venues are required for cross-venue detection, got %d", len(c.Venues)))
	}
	seen := map[string]bool{}
	for i, v := range c.Venues {
		prefix := fmt.Sprintf("venues[%d] (%s)", i, v.ID)
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: id must not be empty", i))
		}
		if seen[v.ID] {
			errs = append(errs, prefix+": duplicate venue id")
		}
		seen[v.ID] = true
		if !validDrivers[v.Driver] {
			errs = append(errs, fmt.Sprintf("%s: unknown driver %q (valid: binance, bybit)", prefix, v.Driver))
		}
		if v.RestURL == "" {
			errs = append(errs, prefix+": rest_url must not be empty")
		}
		if v.Reliability < 0 || v.Reliability > 1 {
			errs = append(errs, fmt.Sprintf("%s: reliability must be in [0,1], got %g", prefix, v.Reliability))
		}
		for name, fee := range map[string]float64{
			"spot_maker_fee":    v.SpotMakerFee,
			"spot_taker_fee":    v.SpotTakerFee,
			"futures_maker_fee": v.FuturesMakerFee,
			"futures_taker_fee": v.FuturesTakerFee,
		} {
			if fee < 0 || fee >= 0.1 {
				errs = append(errs, fmt.Sprintf("%s: %s must be in [0, 0.1), got %g", prefix, name, fee))
			}
		}
	}

	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one symbol is required")
	}

	// Detection
	d := c.Detection
	if d.PollInterval.Duration <= 0 {
		errs = append(errs, "detection: poll_interval must be positive")
	}
	if d.FetchTimeout.Duration <= 0 {
		errs = append(errs, "detection: fetch_timeout must be positive")
	}
	if d.MaxConcurrency < 1 {
		errs = append(errs, "detection: max_concurrency must be >= 1")
	}
	if d.StalenessWindow.Duration <= 0 {
		errs = append(errs, "detection: staleness_window must be positive")
	}
	if d.MinFundingRateDiff <= 0 {
		errs = append(errs, "detection: min_funding_rate_diff must be > 0")
	}
	if d.MinBasisThreshold <= 0 {
		errs = append(errs, "detection: min_basis_threshold must be > 0")
	}
	if d.MinProfitThreshold < 0 {
		errs = append(errs, "detection: min_profit_threshold must be >= 0")
	}
	if d.PositionSizeUSD <= 0 {
		errs = append(errs, "detection: position_size_usd must be > 0")
	}
	if d.InitialMarginRate <= 0 || d.InitialMarginRate > 1 {
		errs = append(errs, "detection: initial_margin_rate must be in (0,1]")
	}
	if d.MarginSafetyFactor < 1 {
		errs = append(errs, "detection: margin_safety_factor must be >= 1")
	}
	if d.MaxSaneBasisPct <= 0 {
		errs = append(errs, "detection: max_sane_basis_pct must be > 0")
	}
	if d.ExtremityRiskFloor < 0 || d.ExtremityRiskFloor > 1 {
		errs = append(errs, "detection: extremity_risk_floor must be in [0,1]")
	}
	if d.VenueRateLimit < 1 {
		errs = append(errs, "detection: venue_rate_limit must be >= 1")
	}
	if d.VenueRateLimitWindow.Duration <= 0 {
		errs = append(errs, "detection: venue_rate_limit_window must be positive")
	}
	// A budget below one tick's request count per venue means the detector
	// throttles itself into data_unavailable rejections.
	perTick := len(c.Symbols) * 3
	if d.VenueRateLimit > 0 && perTick > d.VenueRateLimit {
		errs = append(errs, fmt.Sprintf("detection: venue_rate_limit %d is below one tick's %d requests per venue (symbols x 3)", d.VenueRateLimit, perTick))
	}

	// Risk weights
	for name, weights := range map[string]map[string]float64{
		"funding_weights": c.Risk.FundingWeights,
		"basis_weights":   c.Risk.BasisWeights,
	} {
		if len(weights) == 0 {
			errs = append(errs, fmt.Sprintf("risk: %s must not be empty", name))
			continue
		}
		var sum float64
		for factor, w := range weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("risk: %s[%s] must be >= 0, got %g", name, factor, w))
			}
			sum += w
		}
		if sum <= 0 {
			errs = append(errs, fmt.Sprintf("risk: %s must have a positive weight sum", name))
		}
	}

	// Confidence
	cc := c.Confidence
	if cc.ProfitWeight < 0 || cc.LiquidityWeight < 0 || cc.ProfitWeight+cc.LiquidityWeight <= 0 {
		errs = append(errs, "confidence: profit_weight and liquidity_weight must be >= 0 with a positive sum")
	}
	if cc.ReferenceNotionalUSD <= 0 {
		errs = append(errs, "confidence: reference_notional_usd must be > 0")
	}
	if cc.MinConfidenceScore < 0 || cc.MinConfidenceScore > 1 {
		errs = append(errs, "confidence: min_confidence_score must be in [0,1]")
	}

	// History
	if c.History.MaxRecords < 1 {
		errs = append(errs, "history: max_records must be >= 1")
	}
	if c.History.MaxAge.Duration <= 0 {
		errs = append(errs, "history: max_age must be positive")
	}
	if c.History.RetentionDays < 1 {
		errs = append(errs, "history: retention_days must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when archiving is enabled")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Venue returns the configured venue with the given id, or false when the
// id is not configured.
func (c *Config) Venue(id string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if v.ID == id {
			return v, true
		}
	}
	return VenueConfig{}, false
}
