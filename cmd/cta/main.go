package main

import (
	"fmt"
	"os"

	"github.com/newthinker/cta/internal/config"
	"github.com/newthinker/cta/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "cta",
	Short: "CTA - moving-average crossover strategy engine",
	Long: `CTA runs bar-driven futures strategies against stored history.
It imports bar and tick data, backtests and replays strategies, and archives results.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the config file, or falls back to defaults,
// and builds the logger it describes.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg := config.Defaults()
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	if debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}
	return cfg, log, nil
}
