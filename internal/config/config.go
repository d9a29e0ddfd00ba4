// Package config defines the engine's top-level configuration and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by ARBENGINE_* environment variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Quotes    QuotesConfig    `toml:"quotes"`
	Venues    []VenueConfig   `toml:"venues"`
	Execution ExecutionConfig `toml:"execution"`
	Risk      RiskConfig      `toml:"risk"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds the detection and scoring parameters.
type EngineConfig struct {
	Pairs          []string `toml:"pairs"`
	CycleInterval  duration `toml:"cycle_interval"`
	OpportunityTTL duration `toml:"opportunity_ttl"`

	MinProfitThreshold float64 `toml:"min_profit_threshold"`
	MaxRiskThreshold   float64 `toml:"max_risk_threshold"`
	MinConfidence      float64 `toml:"min_confidence"`
	MaxPositionSize    float64 `toml:"max_position_size"`
	LiquidityFraction  float64 `toml:"liquidity_fraction"`
	MaxPriceImpact     float64 `toml:"max_price_impact"`
	FlashLoanFeeRate   float64 `toml:"flash_loan_fee_rate"`
	DefaultGasCost     float64 `toml:"default_gas_cost"`

	ReferenceLiquidity float64  `toml:"reference_liquidity"`
	SpreadReference    float64  `toml:"spread_reference"`
	ExtremeSpread      float64  `toml:"extreme_spread"`
	FreshnessHorizon   duration `toml:"freshness_horizon"`
}

// QuotesConfig holds the quote-poller parameters.
type QuotesConfig struct {
	PollInterval duration `toml:"poll_interval"`
	CallTimeout  duration `toml:"call_timeout"`
}

// VenueConfig describes one quote venue. Seeds are the fixture quotes the
// paper-mode static source starts from.
type VenueConfig struct {
	Name    string      `toml:"name"`
	FeeRate float64     `toml:"fee_rate"`
	GasCost float64     `toml:"gas_cost"`
	Seeds   []VenueSeed `toml:"seeds"`
}

// VenueSeed is one fixture quote for a venue.
type VenueSeed struct {
	Pair      string  `toml:"pair"`
	Price     float64 `toml:"price"`
	Liquidity float64 `toml:"liquidity"`
	Change24h float64 `toml:"change_24h"`
}

// ExecutionConfig holds the execution-coordinator parameters.
type ExecutionConfig struct {
	ExecutionTimeout duration `toml:"execution_timeout"`
	MinProfitGuard   float64  `toml:"min_profit_guard"`

	// Paper backend model.
	SlippageHaircut float64 `toml:"slippage_haircut"`
	GasUsedFraction float64 `toml:"gas_used_fraction"`
}

// RiskConfig holds the circuit-breaker parameters.
type RiskConfig struct {
	MaxDailyLoss           float64  `toml:"max_daily_loss"`
	MaxDailyTrades         int      `toml:"max_daily_trades"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
	PauseDuration          duration `toml:"pause_duration"`
	DailyResetCheck        duration `toml:"daily_reset_check"`
}

// DispatchConfig holds the task-distribution parameters.
type DispatchConfig struct {
	AssignInterval   duration `toml:"assign_interval"`
	HealthInterval   duration `toml:"health_interval"`
	CleanupInterval  duration `toml:"cleanup_interval"`
	TaskRetention    duration `toml:"task_retention"`
	HeartbeatTimeout duration `toml:"heartbeat_timeout"`
	StarvationAlerts int      `toml:"starvation_alerts"`

	// WorkerSecret signs heartbeats; empty disables signature checks.
	WorkerSecret string `toml:"worker_secret"`
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

// S3Config holds cold-storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds operator API parameters.
type ServerConfig struct {
	Enabled             bool     `toml:"enabled"`
	Port                int      `toml:"port"`
	CORSOrigins         []string `toml:"cors_origins"`
	APIKey              string   `toml:"api_key"`
	HeartbeatRateLimit  int      `toml:"heartbeat_rate_limit"`
	HeartbeatRateWindow duration `toml:"heartbeat_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML can decode strings like "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values from
// config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Pairs:          []string{"WETH/USDC"},
			CycleInterval:  duration{2 * time.Second},
			OpportunityTTL: duration{30 * time.Second},

			MinProfitThreshold: 10.0,
			MaxRiskThreshold:   0.7,
			MinConfidence:      0.3,
			MaxPositionSize:    50_000,
			LiquidityFraction:  0.10,
			MaxPriceImpact:     0.20,
			FlashLoanFeeRate:   0.0009,
			DefaultGasCost:     15.0,

			ReferenceLiquidity: 100_000,
			SpreadReference:    0.01,
			ExtremeSpread:      0.10,
			FreshnessHorizon:   duration{30 * time.Second},
		},
		Quotes: QuotesConfig{
			PollInterval: duration{2 * time.Second},
			CallTimeout:  duration{5 * time.Second},
		},
		Execution: ExecutionConfig{
			ExecutionTimeout: duration{20 * time.Second},
			MinProfitGuard:   5.0,
			SlippageHaircut:  0.05,
			GasUsedFraction:  1.0,
		},
		Risk: RiskConfig{
			MaxDailyLoss:           500.0,
			MaxDailyTrades:         100,
			MaxConsecutiveFailures: 5,
			PauseDuration:          duration{30 * time.Minute},
			DailyResetCheck:        duration{1 * time.Minute},
		},
		Dispatch: DispatchConfig{
			AssignInterval:   duration{1 * time.Second},
			HealthInterval:   duration{10 * time.Second},
			CleanupInterval:  duration{1 * time.Hour},
			TaskRetention:    duration{72 * time.Hour},
			HeartbeatTimeout: duration{30 * time.Second},
			StarvationAlerts: 10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "flasharb",
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
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "flasharb-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:             true,
			Port:                8080,
			CORSOrigins:         []string{"http://localhost:3000"},
			HeartbeatRateLimit:  30,
			HeartbeatRateWindow: duration{1 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"risk_paused", "risk_resumed", "worker_unavailable"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Run modes.
const (
	ModeDetect = "detect"
	ModeTrade  = "trade"
	ModeServer = "server"
	ModeFull   = "full"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeDetect: true,
	ModeTrade:  true,
	ModeServer: true,
	ModeFull:   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks for invalid or missing values and returns one combined
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, trade, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	runsEngine := c.Mode == "detect" || c.Mode == "trade" || c.Mode == "full"
	if runsEngine {
		if len(c.Engine.Pairs) == 0 {
			errs = append(errs, "engine: at least one pair is required")
		}
		if len(c.Venues) < 2 {
			errs = append(errs, "venues: at least two venues are required for arbitrage detection")
		}
		if c.Engine.CycleInterval.Duration <= 0 {
			errs = append(errs, "engine: cycle_interval must be > 0")
		}
		if c.Engine.OpportunityTTL.Duration <= 0 {
			errs = append(errs, "engine: opportunity_ttl must be > 0")
		}
		if c.Engine.MaxPositionSize <= 0 {
			errs = append(errs, "engine: max_position_size must be > 0")
		}
		if c.Engine.LiquidityFraction <= 0 || c.Engine.LiquidityFraction > 1 {
			errs = append(errs, "engine: liquidity_fraction must be in (0, 1]")
		}
		if c.Engine.MaxPriceImpact <= 0 || c.Engine.MaxPriceImpact > 1 {
			errs = append(errs, "engine: max_price_impact must be in (0, 1]")
		}
		if c.Engine.FlashLoanFeeRate < 0 {
			errs = append(errs, "engine: flash_loan_fee_rate must be >= 0")
		}
		if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
			errs = append(errs, "engine: min_confidence must be in [0, 1]")
		}
		if c.Engine.MaxRiskThreshold <= 0 || c.Engine.MaxRiskThreshold > 1 {
			errs = append(errs, "engine: max_risk_threshold must be in (0, 1]")
		}
		if c.Quotes.PollInterval.Duration <= 0 {
			errs = append(errs, "quotes: poll_interval must be > 0")
		}
		if c.Quotes.CallTimeout.Duration <= 0 {
			errs = append(errs, "quotes: call_timeout must be > 0")
		}
	}

	seen := make(map[string]bool, len(c.Venues))
	for i, venue := range c.Venues {
		if venue.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
			continue
		}
		if seen[venue.Name] {
			errs = append(errs, fmt.Sprintf("venues: duplicate venue %q", venue.Name))
		}
		seen[venue.Name] = true
		if venue.FeeRate < 0 || venue.FeeRate >= 1 {
			errs = append(errs, fmt.Sprintf("venues[%s]: fee_rate must be in [0, 1)", venue.Name))
		}
	}

	runsExecution := c.Mode == "trade" || c.Mode == "full"
	if runsExecution {
		if c.Execution.ExecutionTimeout.Duration <= 0 {
			errs = append(errs, "execution: execution_timeout must be > 0")
		}
		if c.Execution.SlippageHaircut < 0 || c.Execution.SlippageHaircut >= 1 {
			errs = append(errs, "execution: slippage_haircut must be in [0, 1)")
		}
		if c.Risk.MaxDailyLoss <= 0 {
			errs = append(errs, "risk: max_daily_loss must be > 0")
		}
		if c.Risk.MaxDailyTrades < 1 {
			errs = append(errs, "risk: max_daily_trades must be >= 1")
		}
		if c.Risk.MaxConsecutiveFailures < 1 {
			errs = append(errs, "risk: max_consecutive_failures must be >= 1")
		}
		if c.Risk.PauseDuration.Duration <= 0 {
			errs = append(errs, "risk: pause_duration must be > 0")
		}
	}

	if c.Dispatch.HeartbeatTimeout.Duration <= 0 {
		errs = append(errs, "dispatch: heartbeat_timeout must be > 0")
	}
	if c.Dispatch.TaskRetention.Duration <= 0 {
		errs = append(errs, "dispatch: task_retention must be > 0")
	}

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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.HeartbeatRateLimit > 0 && c.Server.HeartbeatRateWindow.Duration <= 0 {
			errs = append(errs, "server: heartbeat_rate_window must be > 0 when rate limiting is on")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
