// Package backtest replays stored market data through a strategy hosted by
// the engine, fills its orders on the simulator and scores the outcome.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/engine"
	"github.com/newthinker/cta/internal/metrics"
	"github.com/newthinker/cta/internal/strategy"
	"go.uber.org/zap"
)

// TickProvider supplies stored ticks with start <= Time < end
type TickProvider interface {
	ReadTicks(ctx context.Context, symbol string, start, end time.Time) ([]core.Tick, error)
}

// Option configures a Backtester
type Option func(*Backtester)

// WithMetrics records run counts and durations, and engine counters
func WithMetrics(m *metrics.Registry) Option {
	return func(b *Backtester) { b.metrics = m }
}

// WithTicks enables tick mode
func WithTicks(p TickProvider) Option {
	return func(b *Backtester) { b.ticks = p }
}

// WithObserver forwards strategy events from every run
func WithObserver(o strategy.Observer) Option {
	return func(b *Backtester) { b.observers = append(b.observers, o) }
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	history   engine.HistoryProvider
	ticks     TickProvider
	registry  *strategy.Registry
	logger    *zap.Logger
	metrics   *metrics.Registry
	observers []strategy.Observer
}

// New creates a new Backtester over the given bar history
func New(history engine.HistoryProvider, registry *strategy.Registry, logger *zap.Logger, opts ...Option) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backtester{
		history:  history,
		registry: registry,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes one backtest. History before p.Start is available to the
// strategy's warm-up; trading covers [p.Start, p.End).
func (b *Backtester) Run(ctx context.Context, p Params) (*Result, error) {
	began := time.Now()
	result, err := b.run(ctx, p)

	status := "success"
	if err != nil {
		status = "error"
	}
	if b.metrics != nil {
		b.metrics.RecordBacktest(status, time.Since(began).Seconds())
	}
	return result, err
}

func (b *Backtester) run(ctx context.Context, p Params) (*Result, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if b.history == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no bar history"))
	}
	if p.Mode == ModeTick && b.ticks == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("tick mode needs a tick provider"))
	}

	logger := b.logger.With(
		zap.String("strategy", p.Name),
		zap.String("symbol", p.Symbol),
		zap.String("mode", string(p.Mode)),
	)

	clock := engine.NewDataClock(p.Start)
	now := clock.Now

	sim := broker.NewSimulator()
	sim.SetClock(now)
	if err := sim.Connect(ctx); err != nil {
		return nil, err
	}
	defer sim.Disconnect()

	opts := []engine.Option{engine.WithClock(now)}
	if b.metrics != nil {
		opts = append(opts, engine.WithMetrics(b.metrics))
	}
	for _, o := range b.observers {
		opts = append(opts, engine.WithObserver(o))
	}
	eng, err := engine.New(engine.Config{Interval: p.Interval}, sim, b.history, b.registry, logger, opts...)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	if err := eng.AddStrategy(p.Class, p.Name, p.Symbol, p.Setting); err != nil {
		return nil, err
	}
	if err := eng.InitStrategy(ctx, p.Name); err != nil {
		return nil, err
	}
	if err := eng.StartStrategy(p.Name); err != nil {
		return nil, err
	}

	c := costs{size: p.Size, rate: p.Rate, slippage: p.Slippage}
	acct := &account{
		costs:   c,
		capital: p.Capital,
		tracker: broker.NewPositionTracker(p.Size),
	}

	var steps int
	switch p.Mode {
	case ModeBar:
		bars, err := b.history.ReadBars(ctx, p.Symbol, p.Interval, p.Start, p.End)
		if err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		if len(bars) == 0 {
			return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no %s bars for %s", p.Interval, p.Symbol))
		}
		for _, bar := range bars {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			clock.Set(bar.Time)
			acct.fill(sim.MatchBar(bar))
			eng.ProcessBar(bar)
			acct.mark(bar.Symbol, bar.Close, bar.Time)
		}
		steps = len(bars)

	case ModeTick:
		ticks, err := b.ticks.ReadTicks(ctx, p.Symbol, p.Start, p.End)
		if err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		if len(ticks) == 0 {
			return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no ticks for %s", p.Symbol))
		}
		for _, tick := range ticks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			clock.Set(tick.Time)
			acct.fill(sim.MatchTick(tick))
			eng.ProcessTick(tick)
			acct.mark(tick.Symbol, tick.LastPrice, tick.Time)
		}
		steps = len(ticks)
	}

	if err := eng.StopStrategy(ctx, p.Name); err != nil {
		logger.Warn("stop strategy failed", zap.Error(err))
	}

	trips := buildRoundTrips(acct.fills, c)
	result := &Result{
		ID:         uuid.NewString(),
		Strategy:   p.Name,
		Class:      p.Class,
		Symbol:     p.Symbol,
		Start:      p.Start,
		End:        p.End,
		Params:     p,
		Trades:     acct.fills,
		RoundTrips: trips,
		Equity:     acct.equity,
		Position:   acct.tracker.GetPosition(p.Symbol),
		Stats:      CalculateStats(trips, acct.equity, p.Capital, len(acct.fills), acct.commission, acct.slippage),
	}

	logger.Info("backtest finished",
		zap.String("id", result.ID),
		zap.Int("steps", steps),
		zap.Int("trades", result.Stats.TotalTrades),
		zap.Float64("pnl", result.Stats.TotalPnL),
		zap.Float64("max_drawdown", result.Stats.MaxDrawdown),
	)
	return result, nil
}

// account books fills and marks the balance
type account struct {
	costs      costs
	capital    float64
	tracker    *broker.PositionTracker
	fills      []core.Trade
	commission float64
	slippage   float64
	equity     equityCurve
}

func (a *account) fill(trades []core.Trade) {
	for _, t := range trades {
		a.tracker.UpdateOnTrade(t)
		a.commission += a.costs.commission(t.Price, t.Volume)
		a.slippage += a.costs.slip(t.Volume)
		a.fills = append(a.fills, t)
	}
}

func (a *account) mark(symbol string, price float64, at time.Time) {
	a.tracker.Mark(symbol, price)
	balance := a.capital + a.tracker.TotalRealizedPL() + a.tracker.TotalUnrealizedPL() - a.commission - a.slippage
	a.equity.update(at, balance)
}
