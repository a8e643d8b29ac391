package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/cta/internal/alert"
	"github.com/newthinker/cta/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/cta/bars.db"

server:
  job_ttl: 2h

strategies:
  rb_cross:
    class: ma_cross
    symbol: rb2410
    setting:
      fast_window: 5
      slow_window: 20

backtest:
  start: "2024-01-01"
  end: "2024-07-01"
  rate: 0.0001
  size: 10

archive:
  enabled: true
  type: s3
  s3:
    bucket: results
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cta/bars.db", cfg.Database.Path)
	require.Contains(t, cfg.Strategies, "rb_cross")
	s := cfg.Strategies["rb_cross"]
	assert.Equal(t, "ma_cross", s.Class)
	assert.Equal(t, "rb2410", s.Symbol)
	assert.EqualValues(t, 5, s.Setting["fast_window"])

	assert.Equal(t, 0.0001, cfg.Backtest.Rate)
	assert.Equal(t, 10.0, cfg.Backtest.Size)
	// untouched keys keep their defaults
	assert.Equal(t, 1_000_000.0, cfg.Backtest.Capital)
	assert.Equal(t, "bar", cfg.Backtest.Mode)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Server.JobTTL)

	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "s3", cfg.Archive.Type)
	assert.Equal(t, "results", cfg.Archive.S3.Bucket)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CTA_TEST_HOOK", "https://hooks.example.com/abc")
	path := writeConfig(t, `
notifiers:
  ops:
    enabled: true
    url: "${CTA_TEST_HOOK}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	ops := cfg.Notifiers["ops"]
	assert.True(t, ops.Enabled)
	assert.Equal(t, "https://hooks.example.com/abc", ops.Params["url"])
}

func TestLoad_AlertRules(t *testing.T) {
	path := writeConfig(t, `
alerts:
  cooldown: 1h
  rules:
    - name: in_market
      expr: "pos != 0"
      severity: info
      message: position opened
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Alerts.Cooldown)
	require.Len(t, cfg.Alerts.Rules, 1)
	assert.Equal(t, "pos != 0", cfg.Alerts.Rules[0].Expr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, core.ErrConfigMissing) {
		t.Errorf("expected ErrConfigMissing, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Database.Path == "" {
		t.Error("expected default database path")
	}
	if cfg.Backtest.Interval != "1d" {
		t.Errorf("expected default interval 1d, got %s", cfg.Backtest.Interval)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected default metrics path, got %s", cfg.Metrics.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestBacktestConfig_Window(t *testing.T) {
	start, end, err := BacktestConfig{Start: "2024-01-02", End: "2024-03-01"}.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = BacktestConfig{Start: "01/02/2024", End: "2024-03-01"}.Window()
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   *core.Error
	}{
		{"valid", func(c *Config) {}, nil},
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"invalid port - too high", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"no database", func(c *Config) { c.Database.Path = "" }, core.ErrConfigMissing},
		{"strategy without symbol", func(c *Config) {
			c.Strategies = map[string]StrategyConfig{"s": {Class: "ma_cross"}}
		}, core.ErrConfigMissing},
		{"negative rate", func(c *Config) { c.Backtest.Rate = -1 }, core.ErrConfigInvalid},
		{"unknown mode", func(c *Config) { c.Backtest.Mode = "weekly" }, core.ErrConfigInvalid},
		{"unknown interval", func(c *Config) { c.Backtest.Interval = "3w" }, core.ErrConfigInvalid},
		{"s3 without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Type = "s3"
		}, core.ErrConfigMissing},
		{"unknown archive", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Type = "ftp"
		}, core.ErrConfigInvalid},
		{"disabled archive is not checked", func(c *Config) { c.Archive.Type = "ftp" }, nil},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, core.ErrConfigMissing},
		{"webhook without url", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"ops": {Enabled: true}}
		}, core.ErrConfigMissing},
		{"malformed alert rule", func(c *Config) {
			c.Alerts.Rules = []alert.Rule{{Name: "r", Expr: "pos >>"}}
		}, core.ErrConfigInvalid},
		{"unknown notifier type", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"ops": {Enabled: true, Type: "sms"}}
		}, core.ErrConfigInvalid},
		{"telegram notifier", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"desk": {Enabled: true, Type: "telegram"}}
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
