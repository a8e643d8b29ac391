package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/newthinker/cta/internal/api"
	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/engine"
	"github.com/newthinker/cta/internal/storage/bars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	replayFrom string
	replayTo   string
	replayPace time.Duration
	replayAPI  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay stored bars through every configured strategy",
	Long: `Replay feeds stored bars for all configured strategies through one engine
and a simulated broker, in time order, as a live session would see them.
Metrics and notifiers run for the whole session.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start date YYYY-MM-DD (default backtest.start)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End date YYYY-MM-DD, exclusive (default backtest.end)")
	replayCmd.Flags().DurationVar(&replayPace, "pace", 0, "Delay between bars, e.g. 200ms")
	replayCmd.Flags().BoolVar(&replayAPI, "api", false, "Serve live strategy state over the API until interrupted")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("no strategies configured")
	}

	bc := cfg.Backtest
	if replayFrom != "" {
		bc.Start = replayFrom
	}
	if replayTo != "" {
		bc.End = replayTo
	}
	start, end, err := bc.Window()
	if err != nil {
		return fmt.Errorf("invalid date range (expected YYYY-MM-DD): %w", err)
	}
	interval := core.Interval(bc.Interval)

	// Wait for shutdown signal
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

	clock := engine.NewDataClock(start)
	now := clock.Now

	sim := broker.NewSimulator()
	sim.SetClock(now)
	if err := sim.Connect(ctx); err != nil {
		return err
	}
	defer sim.Disconnect()

	opts := []engine.Option{engine.WithClock(now)}
	if svc.metrics != nil {
		opts = append(opts, engine.WithMetrics(svc.metrics))
	}
	for _, o := range svc.observers {
		opts = append(opts, engine.WithObserver(o))
	}
	eng, err := engine.New(engine.Config{Interval: interval}, sim, store, newStrategyRegistry(log), log, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	names := make([]string, 0, len(cfg.Strategies))
	for name := range cfg.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	symbols := make(map[string]struct{})
	for _, name := range names {
		s := cfg.Strategies[name]
		if err := eng.AddStrategy(s.Class, name, s.Symbol, s.Setting); err != nil {
			return err
		}
		symbols[s.Symbol] = struct{}{}
	}

	var feed []core.Bar
	for symbol := range symbols {
		rows, err := store.ReadBars(ctx, symbol, interval, start, end)
		if err != nil {
			return err
		}
		feed = append(feed, rows...)
	}
	if len(feed) == 0 {
		return core.WrapError(core.ErrNoData, fmt.Errorf("no %s bars between %s and %s", interval, bc.Start, bc.End))
	}
	slices.SortStableFunc(feed, func(a, b core.Bar) int { return a.Time.Compare(b.Time) })

	if err := eng.InitAll(ctx); err != nil {
		return err
	}
	if err := eng.StartAll(); err != nil {
		return err
	}

	var apiErr chan error
	if replayAPI {
		apiCtx, cancelAPI := context.WithCancel(ctx)
		defer cancelAPI()
		apiErr = make(chan error, 1)
		go func() {
			apiErr <- serveAPI(apiCtx, cfg, api.Dependencies{Strategies: eng, Metrics: svc.metrics}, log)
		}()
	}

	log.Info("replay started",
		zap.Strings("strategies", names),
		zap.Int("bars", len(feed)),
		zap.Time("from", start),
		zap.Time("to", end),
	)

	replayed := 0
loop:
	for _, bar := range feed {
		if replayPace > 0 {
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(replayPace):
			}
		} else if ctx.Err() != nil {
			break loop
		}
		clock.Set(bar.Time)
		sim.MatchBar(bar)
		eng.ProcessBar(bar)
		replayed++
	}

	log.Info("replay stopping", zap.Int("replayed", replayed))

	// Stop with a fresh context so open orders are cancelled after an interrupt
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.StopAll(stopCtx); err != nil {
		log.Warn("stopping strategies", zap.Error(err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tCLASS\tSYMBOL\tPOS\tVARIABLES\t")
	fmt.Fprintln(w, "--------\t-----\t------\t---\t---------\t")
	for _, name := range eng.Strategies() {
		ev, err := eng.Snapshot(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\t\n", ev.Name, ev.Class, ev.Symbol, ev.Pos, ev.Variables)
	}
	w.Flush()

	if apiErr == nil {
		return nil
	}
	log.Info("replay finished, API still serving until interrupted")
	select {
	case err := <-apiErr:
		return err
	case <-ctx.Done():
		return <-apiErr
	}
}
