package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for labeling, replay, and the
// services around them.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Labeling LabelingConfig `yaml:"labeling"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and the market data endpoint.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls historical bar collection.
type GatherConfig struct {
	Market           string   `yaml:"market"`
	Symbols          []string `yaml:"symbols"`
	TimeframeMinutes int      `yaml:"timeframe_minutes"`
	StartDate        string   `yaml:"start_date"`
	MaxWorkers       int      `yaml:"max_workers"`
	RateLimitPerMin  int      `yaml:"rate_limit_per_min"`
}

// Timeframe names the bar width as stored, e.g. "10min".
func (g GatherConfig) Timeframe() string {
	return fmt.Sprintf("%dmin", g.TimeframeMinutes)
}

// LabelingConfig holds the triple-barrier labeling parameters.
type LabelingConfig struct {
	Horizon       int     `yaml:"horizon"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	Workers       int     `yaml:"workers"`
}

// BacktestConfig holds the replay parameters.
type BacktestConfig struct {
	Strategy       string  `yaml:"strategy"`
	InitialCapital float64 `yaml:"initial_capital"`
	TakeProfitPct  float64 `yaml:"take_profit_pct"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`
}

// Default returns the configuration used for any field the file leaves
// unset.
func Default() *Config {
	return &Config{
		Storage: Storage{DataDir: "data", SQLitePath: "data/triplebarrier.db"},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090},
		Alpaca:  Alpaca{DataURL: "https://data.alpaca.markets"},
		Logging: Logging{Level: "info", Format: "json"},
		Gather: GatherConfig{
			Market:           "crypto",
			Symbols:          []string{"BTC/USD"},
			TimeframeMinutes: 10,
			StartDate:        "2020-01-01",
			MaxWorkers:       4,
			RateLimitPerMin:  200,
		},
		Labeling: LabelingConfig{Horizon: 24, TakeProfitPct: 3, StopLossPct: 3, Workers: 4},
		Backtest: BacktestConfig{Strategy: "predictions", InitialCapital: 100, TakeProfitPct: 3, StopLossPct: 3},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, applies environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields the defaults with
// environment overrides applied.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	cfg = Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameters the labeler or the replay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Labeling.Horizon <= 0 {
		errs = append(errs, fmt.Errorf("labeling.horizon must be positive, got %d", c.Labeling.Horizon))
	}
	for name, v := range map[string]float64{
		"labeling.take_profit_pct": c.Labeling.TakeProfitPct,
		"labeling.stop_loss_pct":   c.Labeling.StopLossPct,
		"backtest.take_profit_pct": c.Backtest.TakeProfitPct,
		"backtest.stop_loss_pct":   c.Backtest.StopLossPct,
		"backtest.initial_capital": c.Backtest.InitialCapital,
	} {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	if c.Gather.TimeframeMinutes <= 0 {
		errs = append(errs, fmt.Errorf("gather.timeframe_minutes must be positive, got %d", c.Gather.TimeframeMinutes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("TB_SYMBOLS"); v != "" {
		cfg.Gather.Symbols = strings.Split(v, ",")
	}

	// Barrier parameters apply to both labeling and replay.
	if v := os.Getenv("TB_HORIZON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TB_HORIZON: %w", err)
		}
		cfg.Labeling.Horizon = n
	}
	if v := os.Getenv("TB_TAKE_PROFIT_PCT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TB_TAKE_PROFIT_PCT: %w", err)
		}
		cfg.Labeling.TakeProfitPct = f
		cfg.Backtest.TakeProfitPct = f
	}
	if v := os.Getenv("TB_STOP_LOSS_PCT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TB_STOP_LOSS_PCT: %w", err)
		}
		cfg.Labeling.StopLossPct = f
		cfg.Backtest.StopLossPct = f
	}
	if v := os.Getenv("TB_INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TB_INITIAL_CAPITAL: %w", err)
		}
		cfg.Backtest.InitialCapital = f
	}
	return nil
}

// Path returns the config file path from TB_CONFIG, or the default location.
func Path() string {
	if v := os.Getenv("TB_CONFIG"); v != "" {
		return v
	}
	return "config/triplebarrier.yaml"
}
