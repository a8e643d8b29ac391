package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/storage/bars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importSymbol   string
	importInterval string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import market data from CSV into the bar database",
}

var importBarsCmd = &cobra.Command{
	Use:   "bars [file.csv]",
	Short: "Import OHLCV bars (datetime,open,high,low,close,volume)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportBars,
}

var importTicksCmd = &cobra.Command{
	Use:   "ticks [file.csv]",
	Short: "Import ticks (datetime,price,volume[,bid,ask])",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportTicks,
}

func init() {
	importCmd.PersistentFlags().StringVar(&importSymbol, "symbol", "", "Symbol the rows belong to (required)")
	importCmd.MarkPersistentFlagRequired("symbol")
	importBarsCmd.Flags().StringVar(&importInterval, "interval", string(core.IntervalDaily), "Bar interval (1m, 1h, 1d)")

	importCmd.AddCommand(importBarsCmd)
	importCmd.AddCommand(importTicksCmd)
	rootCmd.AddCommand(importCmd)
}

// withStore opens the bar database named in the config.
func withStore(fn func(ctx context.Context, store *bars.SQLiteStore, log *zap.Logger) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	store, err := bars.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store, log)
}

func runImportBars(cmd *cobra.Command, args []string) error {
	interval := core.Interval(importInterval)
	if interval.Duration() == 0 {
		return fmt.Errorf("unknown interval %q", importInterval)
	}

	return withStore(func(ctx context.Context, store *bars.SQLiteStore, log *zap.Logger) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := bars.ReadCSV(f, importSymbol, interval)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		n, err := store.WriteBars(ctx, rows)
		if err != nil {
			return err
		}

		first, last, err := store.Span(ctx, importSymbol, interval)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d %s bars for %s (stored range %s to %s)\n",
			n, interval, importSymbol, first.Format(time.DateOnly), last.Format(time.DateOnly))
		log.Info("bars imported", zap.String("symbol", importSymbol), zap.Int("rows", n))
		return nil
	})
}

func runImportTicks(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, store *bars.SQLiteStore, log *zap.Logger) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := bars.ReadTickCSV(f, importSymbol)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		n, err := store.WriteTicks(ctx, rows)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d ticks for %s\n", n, importSymbol)
		log.Info("ticks imported", zap.String("symbol", importSymbol), zap.Int("rows", n))
		return nil
	})
}
