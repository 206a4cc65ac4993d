package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DERIVBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DERIVBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Detection ──
	setDuration(&cfg.Detection.PollInterval, "DERIVBOT_DETECTION_POLL_INTERVAL")
	setDuration(&cfg.Detection.FetchTimeout, "DERIVBOT_DETECTION_FETCH_TIMEOUT")
	setInt(&cfg.Detection.MaxConcurrency, "DERIVBOT_DETECTION_MAX_CONCURRENCY")
	setDuration(&cfg.Detection.StalenessWindow, "DERIVBOT_DETECTION_STALENESS_WINDOW")
	setFloat64(&cfg.Detection.MinFundingRateDiff, "DERIVBOT_DETECTION_MIN_FUNDING_RATE_DIFF")
	setFloat64(&cfg.Detection.MinBasisThreshold, "DERIVBOT_DETECTION_MIN_BASIS_THRESHOLD")
	setFloat64(&cfg.Detection.MinProfitThreshold, "DERIVBOT_DETECTION_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Detection.PositionSizeUSD, "DERIVBOT_DETECTION_POSITION_SIZE_USD")
	setFloat64(&cfg.Detection.MaxSaneBasisPct, "DERIVBOT_DETECTION_MAX_SANE_BASIS_PCT")
	setInt(&cfg.Detection.VenueRateLimit, "DERIVBOT_DETECTION_VENUE_RATE_LIMIT")
	setDuration(&cfg.Detection.VenueRateLimitWindow, "DERIVBOT_DETECTION_VENUE_RATE_LIMIT_WINDOW")

	// ── Confidence ──
	setFloat64(&cfg.Confidence.MinConfidenceScore, "DERIVBOT_CONFIDENCE_MIN_SCORE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DERIVBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "DERIVBOT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "DERIVBOT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "DERIVBOT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "DERIVBOT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "DERIVBOT_ARCHIVE_SECRET_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DERIVBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DERIVBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DERIVBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DERIVBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DERIVBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DERIVBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DERIVBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DERIVBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DERIVBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DERIVBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DERIVBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DERIVBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DERIVBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DERIVBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DERIVBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DERIVBOT_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DERIVBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DERIVBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DERIVBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DERIVBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DERIVBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DERIVBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DERIVBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DERIVBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DERIVBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStringSlice(&cfg.Symbols, "DERIVBOT_SYMBOLS")
	setStr(&cfg.Mode, "DERIVBOT_MODE")
	setStr(&cfg.LogLevel, "DERIVBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
