package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full trader configuration.
type Config struct {
	Trading  TradingConfig  `yaml:"trading"`
	StopLoss StopLossConfig `yaml:"stop_loss"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// TradingConfig controls allocation and submission guards.
type TradingConfig struct {
	MaxPositionPct    float64 `yaml:"max_position_pct"`    // hard cap as a fraction of portfolio value
	MinPriceCents     int     `yaml:"min_price_cents"`     // only near-certain favorites are funded
	MinLiquidityScore float64 `yaml:"min_liquidity_score"` // 0–100
	StaleOrderHours   float64 `yaml:"stale_order_hours"`   // resting longer than this gets cancelled
	BlacklistDays     int     `yaml:"blacklist_days"`      // how long a blacklisted market stays excluded
}

// StopLossConfig controls the protective-exit monitor.
type StopLossConfig struct {
	ThresholdCents     int   `yaml:"threshold_cents"`      // exit when our-side price drops below this
	SpreadCeilingCents int   `yaml:"spread_ceiling_cents"` // wider spread fails the confidence check
	MidTolerance       int   `yaml:"mid_tolerance_cents"`  // last trade vs midpoint tolerance
	MinVolume24h       int   `yaml:"min_volume_24h"`       // below this the volume check fails
	RecheckDelayMs     int   `yaml:"recheck_delay_ms"`     // delay before the low-confidence re-fetch
	RecheckTolerance   int   `yaml:"recheck_tolerance_cents"`
	BadDataPrices      []int `yaml:"bad_data_prices"`      // round numbers seen in past bad-data incidents
	SamePriceAnomaly   int   `yaml:"same_price_anomaly"`   // distinct positions at one price → suspicious
}

// APIConfig addresses the exchange. The API key comes from the environment
// (KALSHI_API_KEY), loaded via .env if present.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StorageConfig controls where the ledger is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if one exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// APIKey returns the exchange API key from the environment.
func (c *Config) APIKey() string {
	return os.Getenv("KALSHI_API_KEY")
}

// StaleOrderAge returns the stale-order cutoff as a duration.
func (c *Config) StaleOrderAge() time.Duration {
	return time.Duration(c.Trading.StaleOrderHours * float64(time.Hour))
}

// BlacklistWindow returns how far back blacklist entries still apply.
func (c *Config) BlacklistWindow() time.Duration {
	return time.Duration(c.Trading.BlacklistDays) * 24 * time.Hour
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Trading.MaxPositionPct <= 0 {
		cfg.Trading.MaxPositionPct = 0.03
	}
	if cfg.Trading.MinPriceCents <= 0 {
		cfg.Trading.MinPriceCents = 85
	}
	if cfg.Trading.MinLiquidityScore <= 0 {
		cfg.Trading.MinLiquidityScore = 40
	}
	if cfg.Trading.StaleOrderHours <= 0 {
		cfg.Trading.StaleOrderHours = 6
	}
	if cfg.Trading.BlacklistDays <= 0 {
		cfg.Trading.BlacklistDays = 7
	}
	if cfg.StopLoss.ThresholdCents <= 0 {
		cfg.StopLoss.ThresholdCents = 75
	}
	if cfg.StopLoss.SpreadCeilingCents <= 0 {
		cfg.StopLoss.SpreadCeilingCents = 5
	}
	if cfg.StopLoss.MidTolerance <= 0 {
		cfg.StopLoss.MidTolerance = 3
	}
	if cfg.StopLoss.MinVolume24h <= 0 {
		cfg.StopLoss.MinVolume24h = 100
	}
	if cfg.StopLoss.RecheckDelayMs <= 0 {
		cfg.StopLoss.RecheckDelayMs = 2000
	}
	if cfg.StopLoss.RecheckTolerance <= 0 {
		cfg.StopLoss.RecheckTolerance = 3
	}
	if len(cfg.StopLoss.BadDataPrices) == 0 {
		cfg.StopLoss.BadDataPrices = []int{1, 50, 99}
	}
	if cfg.StopLoss.SamePriceAnomaly <= 0 {
		cfg.StopLoss.SamePriceAnomaly = 4
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "trader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
