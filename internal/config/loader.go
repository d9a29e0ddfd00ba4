package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path, merges it on top of the built-in
// defaults, and applies ARBENGINE_* environment overrides. The result is not
// validated; call Config.Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields from well-known ARBENGINE_* variables
// so operators can inject secrets at deploy time without editing the TOML.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStringSlice(&cfg.Engine.Pairs, "ARBENGINE_ENGINE_PAIRS")
	setDuration(&cfg.Engine.CycleInterval, "ARBENGINE_ENGINE_CYCLE_INTERVAL")
	setDuration(&cfg.Engine.OpportunityTTL, "ARBENGINE_ENGINE_OPPORTUNITY_TTL")
	setFloat64(&cfg.Engine.MinProfitThreshold, "ARBENGINE_ENGINE_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Engine.MaxRiskThreshold, "ARBENGINE_ENGINE_MAX_RISK_THRESHOLD")
	setFloat64(&cfg.Engine.MinConfidence, "ARBENGINE_ENGINE_MIN_CONFIDENCE")
	setFloat64(&cfg.Engine.MaxPositionSize, "ARBENGINE_ENGINE_MAX_POSITION_SIZE")
	setFloat64(&cfg.Engine.LiquidityFraction, "ARBENGINE_ENGINE_LIQUIDITY_FRACTION")
	setFloat64(&cfg.Engine.MaxPriceImpact, "ARBENGINE_ENGINE_MAX_PRICE_IMPACT")
	setFloat64(&cfg.Engine.FlashLoanFeeRate, "ARBENGINE_ENGINE_FLASH_LOAN_FEE_RATE")
	setFloat64(&cfg.Engine.DefaultGasCost, "ARBENGINE_ENGINE_DEFAULT_GAS_COST")
	setFloat64(&cfg.Engine.ReferenceLiquidity, "ARBENGINE_ENGINE_REFERENCE_LIQUIDITY")
	setDuration(&cfg.Engine.FreshnessHorizon, "ARBENGINE_ENGINE_FRESHNESS_HORIZON")

	// ── Quotes ──
	setDuration(&cfg.Quotes.PollInterval, "ARBENGINE_QUOTES_POLL_INTERVAL")
	setDuration(&cfg.Quotes.CallTimeout, "ARBENGINE_QUOTES_CALL_TIMEOUT")

	// ── Execution ──
	setDuration(&cfg.Execution.ExecutionTimeout, "ARBENGINE_EXECUTION_TIMEOUT")
	setFloat64(&cfg.Execution.MinProfitGuard, "ARBENGINE_EXECUTION_MIN_PROFIT_GUARD")
	setFloat64(&cfg.Execution.SlippageHaircut, "ARBENGINE_EXECUTION_SLIPPAGE_HAIRCUT")
	setFloat64(&cfg.Execution.GasUsedFraction, "ARBENGINE_EXECUTION_GAS_USED_FRACTION")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBENGINE_RISK_MAX_DAILY_LOSS")
	setInt(&cfg.Risk.MaxDailyTrades, "ARBENGINE_RISK_MAX_DAILY_TRADES")
	setInt(&cfg.Risk.MaxConsecutiveFailures, "ARBENGINE_RISK_MAX_CONSECUTIVE_FAILURES")
	setDuration(&cfg.Risk.PauseDuration, "ARBENGINE_RISK_PAUSE_DURATION")
	setDuration(&cfg.Risk.DailyResetCheck, "ARBENGINE_RISK_DAILY_RESET_CHECK")

	// ── Dispatch ──
	setDuration(&cfg.Dispatch.AssignInterval, "ARBENGINE_DISPATCH_ASSIGN_INTERVAL")
	setDuration(&cfg.Dispatch.HealthInterval, "ARBENGINE_DISPATCH_HEALTH_INTERVAL")
	setDuration(&cfg.Dispatch.CleanupInterval, "ARBENGINE_DISPATCH_CLEANUP_INTERVAL")
	setDuration(&cfg.Dispatch.TaskRetention, "ARBENGINE_DISPATCH_TASK_RETENTION")
	setDuration(&cfg.Dispatch.HeartbeatTimeout, "ARBENGINE_DISPATCH_HEARTBEAT_TIMEOUT")
	setInt(&cfg.Dispatch.StarvationAlerts, "ARBENGINE_DISPATCH_STARVATION_ALERTS")
	setStr(&cfg.Dispatch.WorkerSecret, "ARBENGINE_DISPATCH_WORKER_SECRET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.HeartbeatRateLimit, "ARBENGINE_SERVER_HEARTBEAT_RATE_LIMIT")
	setDuration(&cfg.Server.HeartbeatRateWindow, "ARBENGINE_SERVER_HEARTBEAT_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBENGINE_MODE")
	setStr(&cfg.LogLevel, "ARBENGINE_LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is set
// and parses cleanly.

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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
