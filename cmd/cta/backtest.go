package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/newthinker/cta/internal/backtest"
	"github.com/newthinker/cta/internal/config"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/storage/archive"
	"github.com/newthinker/cta/internal/storage/bars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestClass     string
	backtestSymbol    string
	backtestFrom      string
	backtestTo        string
	backtestMode      string
	backtestNoArchive bool
	backtestTrades    bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run backtest on a strategy",
	Long: `Run a configured strategy against stored history and show performance statistics.
The strategy name refers to an entry under "strategies" in the config file;
--class and --symbol describe an ad-hoc instance instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestClass, "class", "", "Strategy class, overrides the config entry")
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "", "Symbol to backtest, overrides the config entry")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD (default backtest.start)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD, exclusive (default backtest.end)")
	backtestCmd.Flags().StringVar(&backtestMode, "mode", "", "bar or tick (default backtest.mode)")
	backtestCmd.Flags().BoolVar(&backtestNoArchive, "no-archive", false, "Do not archive the result")
	backtestCmd.Flags().BoolVar(&backtestTrades, "trades", false, "Print every fill")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	params, err := backtestParams(cfg, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bars.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := startServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := []backtest.Option{backtest.WithTicks(store)}
	if svc.metrics != nil {
		opts = append(opts, backtest.WithMetrics(svc.metrics))
	}
	for _, o := range svc.observers {
		opts = append(opts, backtest.WithObserver(o))
	}
	bt := backtest.New(store, newStrategyRegistry(log), log, opts...)

	result, err := bt.Run(ctx, params)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	printResult(result, backtestTrades)

	if cfg.Archive.Enabled && !backtestNoArchive {
		st, err := archive.New(cfg.Archive.Config)
		if err != nil {
			return err
		}
		key, err := archive.SaveResult(ctx, st, result)
		if err != nil {
			return err
		}
		fmt.Printf("\nArchived as %s\n", key)
		log.Info("result archived", zap.String("key", key))
	}
	return nil
}

// backtestParams merges the named strategy entry, the backtest section and flags.
func backtestParams(cfg *config.Config, name string) (backtest.Params, error) {
	entry := cfg.Strategies[name]
	if backtestClass != "" {
		entry.Class = backtestClass
	}
	if backtestSymbol != "" {
		entry.Symbol = backtestSymbol
	}
	if entry.Class == "" || entry.Symbol == "" {
		return backtest.Params{}, fmt.Errorf("strategy %q not configured; pass --class and --symbol", name)
	}

	bc := cfg.Backtest
	if backtestFrom != "" {
		bc.Start = backtestFrom
	}
	if backtestTo != "" {
		bc.End = backtestTo
	}
	if backtestMode != "" {
		bc.Mode = backtestMode
	}
	start, end, err := bc.Window()
	if err != nil {
		return backtest.Params{}, fmt.Errorf("invalid date range (expected YYYY-MM-DD): %w", err)
	}

	return backtest.Params{
		Class:    entry.Class,
		Name:     name,
		Symbol:   entry.Symbol,
		Interval: core.Interval(bc.Interval),
		Setting:  entry.Setting,
		Start:    start,
		End:      end,
		Rate:     bc.Rate,
		Slippage: bc.Slippage,
		Size:     bc.Size,
		Capital:  bc.Capital,
		Mode:     backtest.Mode(bc.Mode),
	}, nil
}

func printResult(r *backtest.Result, trades bool) {
	s := r.Stats
	fmt.Println("=== CTA Backtest ===")
	fmt.Printf("Strategy: %s (%s)\n", r.Strategy, r.Class)
	fmt.Printf("Symbol:   %s\n", r.Symbol)
	fmt.Printf("Period:   %s to %s\n", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	fmt.Printf("Result:   %s\n", r.ID)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Fills\t%d\t\n", s.TotalTrades)
	fmt.Fprintf(w, "Round trips\t%d (%d won, %d lost)\t\n", s.RoundTrips, s.WinningTrades, s.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%.2f%%\t\n", s.WinRate)
	fmt.Fprintf(w, "Net P&L\t%.2f\t\n", s.TotalPnL)
	fmt.Fprintf(w, "Commission\t%.2f\t\n", s.Commission)
	fmt.Fprintf(w, "Slippage\t%.2f\t\n", s.Slippage)
	fmt.Fprintf(w, "End balance\t%.2f\t\n", s.EndBalance)
	fmt.Fprintf(w, "Total return\t%.2f%%\t\n", s.TotalReturn)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\t\n", s.MaxDrawdown)
	fmt.Fprintf(w, "Sharpe ratio\t%.2f\t\n", s.SharpeRatio)
	fmt.Fprintf(w, "Open position\t%d\t\n", r.Position.Quantity)
	w.Flush()

	if !trades || len(r.Trades) == 0 {
		return
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDIRECTION\tOFFSET\tPRICE\tVOLUME\t")
	fmt.Fprintln(w, "----\t---------\t------\t-----\t------\t")
	for _, t := range r.Trades {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t\n",
			t.Time.Format(time.DateTime), t.Direction, t.Offset, t.Price, t.Volume)
	}
	w.Flush()
}
