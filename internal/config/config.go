package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/cta/internal/alert"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/logger"
	"github.com/newthinker/cta/internal/storage/archive"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Log        logger.Config             `mapstructure:"log"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Archive    ArchiveConfig             `mapstructure:"archive"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Notifiers  map[string]NotifierConfig `mapstructure:"notifiers"`
	Alerts     AlertsConfig              `mapstructure:"alerts"`
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	APIKey  string        `mapstructure:"api_key"`
	MaxJobs int           `mapstructure:"max_jobs"`
	JobTTL  time.Duration `mapstructure:"job_ttl"`
}

// DatabaseConfig locates the bar database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StrategyConfig declares one strategy instance. The map key is its name.
type StrategyConfig struct {
	Class   string         `mapstructure:"class"`
	Symbol  string         `mapstructure:"symbol"`
	Setting map[string]any `mapstructure:"setting"`
}

// BacktestConfig holds defaults for backtest runs
type BacktestConfig struct {
	Interval string  `mapstructure:"interval"`
	Start    string  `mapstructure:"start"` // YYYY-MM-DD
	End      string  `mapstructure:"end"`   // YYYY-MM-DD, exclusive
	Mode     string  `mapstructure:"mode"`  // bar or tick
	Rate     float64 `mapstructure:"rate"`
	Slippage float64 `mapstructure:"slippage"`
	Size     float64 `mapstructure:"size"`
	Capital  float64 `mapstructure:"capital"`
}

// Window parses Start and End
func (b BacktestConfig) Window() (start, end time.Time, err error) {
	if start, err = time.Parse(time.DateOnly, b.Start); err != nil {
		return start, end, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.start: %w", err))
	}
	if end, err = time.Parse(time.DateOnly, b.End); err != nil {
		return start, end, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.end: %w", err))
	}
	return start, end, nil
}

// ArchiveConfig controls where backtest results are kept
type ArchiveConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	archive.Config `mapstructure:",squash"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// NotifierConfig configures one notifier. Keys other than enabled, type
// and buffer are passed to the notifier's Init as params.
type NotifierConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Type    string         `mapstructure:"type"` // webhook (default), telegram or email
	Buffer  int            `mapstructure:"buffer"`
	Params  map[string]any `mapstructure:",remain"`
}

// AlertsConfig gates notifications: when rules are set, only events that
// fire a rule are sent.
type AlertsConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []alert.Rule  `mapstructure:"rules"`
}

// Load reads configuration from file over Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides, e.g. CTA_DATABASE_PATH
	v.SetEnvPrefix("cta")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("reading config: %w", err))
	}

	// Expand ${VAR} references in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if ok && strings.Contains(val, "${") {
			v.Set(key, os.ExpandEnv(val))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8080,
			MaxJobs: 100,
			JobTTL:  24 * time.Hour,
		},
		Log: logger.Config{
			Level:    "info",
			Encoding: "console",
		},
		Database: DatabaseConfig{
			Path: "data/bars.db",
		},
		Backtest: BacktestConfig{
			Interval: string(core.IntervalDaily),
			Mode:     "bar",
			Size:     1,
			Capital:  1_000_000,
		},
		Archive: ArchiveConfig{
			Config: archive.Config{
				Type: "local",
				Path: "data/archive",
			},
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}

	if c.Database.Path == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("database.path is required"))
	}

	for name, s := range c.Strategies {
		if s.Class == "" || s.Symbol == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("strategy %s needs class and symbol", name))
		}
	}

	b := c.Backtest
	if b.Rate < 0 || b.Slippage < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest rate and slippage cannot be negative"))
	}
	if b.Mode != "" && b.Mode != "bar" && b.Mode != "tick" {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest.mode must be bar or tick, got %q", b.Mode))
	}
	if b.Interval != "" && core.Interval(b.Interval).Duration() == 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown backtest.interval %q", b.Interval))
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "", "local":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive.path required for local archive"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive.s3.bucket required for s3 archive"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive.type %q", c.Archive.Type))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("metrics.addr required when metrics are enabled"))
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch n.Type {
		case "", "webhook":
			if url, _ := n.Params["url"].(string); url == "" {
				return core.WrapError(core.ErrConfigMissing, fmt.Errorf("notifier %s: url is required", name))
			}
		case "telegram", "email":
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("notifier %s: unknown type %q", name, n.Type))
		}
	}

	for i := range c.Alerts.Rules {
		if err := c.Alerts.Rules[i].Validate(); err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
	}

	return nil
}
