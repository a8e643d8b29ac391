package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/metrics"
	"github.com/newthinker/cta/internal/strategy"
	"github.com/newthinker/cta/internal/strategy/ma_cross"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeHistory struct {
	bars       []core.Bar
	err        error
	start, end time.Time
	interval   core.Interval
}

func (h *fakeHistory) ReadBars(ctx context.Context, symbol string, interval core.Interval, start, end time.Time) ([]core.Bar, error) {
	h.start, h.end, h.interval = start, end, interval
	if h.err != nil {
		return nil, h.err
	}
	var out []core.Bar
	for _, b := range h.bars {
		if b.Symbol == symbol && !b.Time.Before(start) && b.Time.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// probe records callbacks and runs onBar when a bar arrives
type probe struct {
	host   strategy.Host
	onBar  func(h strategy.Host, bar core.Bar)
	bars   []core.Bar
	ticks  int
	orders []core.Order
	trades []core.Trade
	posAt  []int64
	starts int
	stops  int
}

func (p *probe) OnInit()                  { p.host.LoadBar(3) }
func (p *probe) OnStart()                 { p.starts++ }
func (p *probe) OnStop()                  { p.stops++ }
func (p *probe) OnTick(tick core.Tick)    { p.ticks++ }
func (p *probe) OnOrder(order core.Order) { p.orders = append(p.orders, order) }

func (p *probe) OnStopOrder(core.StopOrder) {}

func (p *probe) OnBar(bar core.Bar) {
	p.bars = append(p.bars, bar)
	if p.onBar != nil {
		p.onBar(p.host, bar)
	}
}

func (p *probe) OnTrade(trade core.Trade) {
	p.trades = append(p.trades, trade)
	p.posAt = append(p.posAt, p.host.Pos())
}

type fixture struct {
	engine  *Engine
	sim     *broker.Simulator
	history *fakeHistory
	probe   *probe
	events  []strategy.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		sim:     broker.NewSimulator(),
		history: &fakeHistory{},
		probe:   &probe{},
	}
	require.NoError(t, f.sim.Connect(context.Background()))

	reg := strategy.NewRegistry()
	ma_cross.Register(reg)
	reg.Register("probe", func(host strategy.Host, setting strategy.Setting) (strategy.Template, error) {
		f.probe.host = host
		return f.probe, nil
	})

	opts = append([]Option{
		WithClock(func() time.Time { return t0 }),
		WithObserver(strategy.ObserverFunc(func(ev strategy.Event) { f.events = append(f.events, ev) })),
	}, opts...)

	e, err := New(Config{Interval: core.IntervalDaily}, f.sim, f.history, reg, nil, opts...)
	require.NoError(t, err)
	f.engine = e
	return f
}

func bar(symbol string, day int, open, high, low, close float64) core.Bar {
	return core.Bar{
		Symbol:   symbol,
		Interval: core.IntervalDaily,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Time:     t0.AddDate(0, 0, day),
	}
}

func flat(symbol string, day int, price float64) core.Bar {
	return bar(symbol, day, price, price, price, price)
}

func (f *fixture) running(t *testing.T, class string, setting strategy.Setting) {
	t.Helper()
	require.NoError(t, f.engine.AddStrategy(class, "s1", "rb", setting))
	require.NoError(t, f.engine.InitStrategy(context.Background(), "s1"))
	require.NoError(t, f.engine.StartStrategy("s1"))
}

func TestNew_RequiresBrokerAndRegistry(t *testing.T) {
	_, err := New(Config{}, nil, nil, strategy.NewRegistry(), nil)
	assert.Error(t, err)

	_, err = New(Config{}, broker.NewSimulator(), nil, nil, nil)
	assert.Error(t, err)
}

func TestAddStrategy_Errors(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.AddStrategy("probe", "s1", "rb", nil))

	err := f.engine.AddStrategy("probe", "s1", "rb", nil)
	assert.True(t, errors.Is(err, core.ErrStrategyExists))

	err = f.engine.AddStrategy("nope", "s2", "rb", nil)
	assert.True(t, errors.Is(err, core.ErrStrategyNotFound))

	err = f.engine.AddStrategy("probe", "s3", "", nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	err = f.engine.AddStrategy(ma_cross.ClassName, "s4", "rb", strategy.Setting{"fast_window": 30, "slow_window": 10})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	assert.Equal(t, []string{"s1"}, f.engine.Strategies())
}

func TestLifecycle_Errors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.AddStrategy("probe", "s1", "rb", nil))

	assert.True(t, errors.Is(f.engine.StartStrategy("s1"), core.ErrNotInited))
	assert.True(t, errors.Is(f.engine.InitStrategy(context.Background(), "missing"), core.ErrStrategyNotFound))

	require.NoError(t, f.engine.InitStrategy(context.Background(), "s1"))
	assert.True(t, errors.Is(f.engine.InitStrategy(context.Background(), "s1"), core.ErrAlreadyInited))

	require.NoError(t, f.engine.StartStrategy("s1"))
	require.NoError(t, f.engine.StartStrategy("s1"))
	assert.Equal(t, 1, f.probe.starts)

	require.NoError(t, f.engine.StopStrategy(context.Background(), "s1"))
	require.NoError(t, f.engine.StopStrategy(context.Background(), "s1"))
	assert.Equal(t, 1, f.probe.stops)
}

func TestLoadBar_ReplaysWindowBeforeNow(t *testing.T) {
	f := newFixture(t)
	f.history.bars = []core.Bar{
		flat("rb", -5, 1),
		flat("rb", -3, 2),
		flat("rb", -1, 3),
		flat("rb", 0, 4),
		flat("cu", -1, 9),
	}
	require.NoError(t, f.engine.AddStrategy("probe", "s1", "rb", nil))
	require.NoError(t, f.engine.InitStrategy(context.Background(), "s1"))

	assert.Equal(t, t0.AddDate(0, 0, -3), f.history.start)
	assert.Equal(t, t0, f.history.end)
	assert.Equal(t, core.IntervalDaily, f.history.interval)

	require.Len(t, f.probe.bars, 2)
	assert.Equal(t, 2.0, f.probe.bars[0].Close)
	assert.Equal(t, 3.0, f.probe.bars[1].Close)
}

func TestLoadBar_HistoryErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.history.err = errors.New("disk gone")
	require.NoError(t, f.engine.AddStrategy("probe", "s1", "rb", nil))

	require.NoError(t, f.engine.InitStrategy(context.Background(), "s1"))
	assert.Empty(t, f.probe.bars)
}

func TestOrders_DroppedWhileNotTrading(t *testing.T) {
	m := metrics.NewRegistry()
	f := newFixture(t, WithMetrics(m))

	var ids []string
	var errs []error
	f.probe.onBar = func(h strategy.Host, b core.Bar) {
		id, err := h.Buy(b.Close, 1)
		ids = append(ids, id)
		errs = append(errs, err)
	}
	f.history.bars = []core.Bar{flat("rb", -1, 10)}

	require.NoError(t, f.engine.AddStrategy("probe", "s1", "rb", nil))
	require.NoError(t, f.engine.InitStrategy(context.Background(), "s1"))

	require.Len(t, errs, 1)
	assert.Empty(t, ids[0])
	assert.True(t, errors.Is(errs[0], core.ErrNotTrading))

	// warm-up refusals are silent
	n, err := testutil.GatherAndCount(m, "cta_orders_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// inited but not started: market data still arrives, orders are refused and counted
	f.engine.ProcessBar(flat("rb", 0, 10))
	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[1], core.ErrNotTrading))

	open, err := f.sim.GetOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	expected := `
# HELP cta_orders_rejected_total Total number of orders refused by the engine or broker
# TYPE cta_orders_rejected_total counter
cta_orders_rejected_total{reason="not_trading",strategy="s1"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m, strings.NewReader(expected), "cta_orders_rejected_total"))
}

func TestOrders_InvalidVolume(t *testing.T) {
	f := newFixture(t)

	var err error
	f.probe.onBar = func(h strategy.Host, b core.Bar) {
		_, err = h.Sell(b.Close, 0)
	}
	f.running(t, "probe", nil)
	f.engine.ProcessBar(flat("rb", 1, 10))

	assert.True(t, errors.Is(err, core.ErrInvalidVolume))
}

func TestOrders_DirectionOffsetMapping(t *testing.T) {
	f := newFixture(t)

	f.probe.onBar = func(h strategy.Host, b core.Bar) {
		h.Buy(10, 1)
		h.Sell(11, 2)
		h.Short(12, 3)
		h.Cover(13, 4)
	}
	f.running(t, "probe", nil)
	f.engine.ProcessBar(flat("rb", 1, 10))

	open, err := f.sim.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 4)

	want := []struct {
		dir    core.Direction
		offset core.Offset
	}{
		{core.DirectionLong, core.OffsetOpen},
		{core.DirectionShort, core.OffsetClose},
		{core.DirectionShort, core.OffsetOpen},
		{core.DirectionLong, core.OffsetClose},
	}
	for i, w := range want {
		assert.Equal(t, w.dir, open[i].Direction, "order %d", i)
		assert.Equal(t, w.offset, open[i].Offset, "order %d", i)
		assert.Equal(t, "s1", open[i].Reference)
		assert.Equal(t, int64(i+1), open[i].Volume)
	}
}

func TestFill_UpdatesPositionBeforeOnTrade(t *testing.T) {
	m := metrics.NewRegistry()
	f := newFixture(t, WithMetrics(m))

	f.probe.onBar = func(h strategy.Host, b core.Bar) {
		if b.Time.Equal(t0.AddDate(0, 0, 1)) {
			h.Short(b.Close, 2)
		}
	}
	f.running(t, "probe", nil)

	f.engine.ProcessBar(flat("rb", 1, 100))
	next := bar("rb", 2, 99, 101, 98, 100)
	trades := f.sim.MatchBar(next)
	require.Len(t, trades, 1)

	require.Len(t, f.probe.trades, 1)
	assert.Equal(t, []int64{-2}, f.probe.posAt)
	assert.Equal(t, core.StatusAllTraded, f.probe.orders[len(f.probe.orders)-1].Status)

	snap, err := f.engine.Snapshot("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), snap.Pos)
	expected := `
# HELP cta_trades_total Total number of fills delivered to strategies
# TYPE cta_trades_total counter
cta_trades_total{direction="SHORT",strategy="s1"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m, strings.NewReader(expected), "cta_trades_total"))
}

func TestStopStrategy_CancelsRestingOrders(t *testing.T) {
	f := newFixture(t)

	f.probe.onBar = func(h strategy.Host, b core.Bar) {
		h.Buy(b.Close-5, 1)
	}
	f.running(t, "probe", nil)
	f.engine.ProcessBar(flat("rb", 1, 100))

	require.NoError(t, f.engine.StopStrategy(context.Background(), "s1"))

	open, err := f.sim.GetOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	require.Len(t, f.probe.orders, 1)
	assert.Equal(t, core.StatusCancelled, f.probe.orders[0].Status)
}

func TestDispatch_OnlyInitedInstancesOnSymbol(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.AddStrategy("probe", "s1", "rb", nil))

	f.engine.ProcessBar(flat("rb", 1, 10))
	f.engine.ProcessTick(core.Tick{Symbol: "rb", LastPrice: 10, Time: t0})
	assert.Empty(t, f.probe.bars)
	assert.Zero(t, f.probe.ticks)

	require.NoError(t, f.engine.InitStrategy(context.Background(), "s1"))
	f.engine.ProcessBar(flat("cu", 1, 10))
	f.engine.ProcessBar(flat("rb", 1, 10))
	f.engine.ProcessTick(core.Tick{Symbol: "rb", LastPrice: 10, Time: t0})
	f.engine.ProcessTick(core.Tick{Symbol: "rb", Time: t0})

	assert.Len(t, f.probe.bars, 1)
	assert.Equal(t, 1, f.probe.ticks)
}

func TestEvents_CarryStrategyVariables(t *testing.T) {
	f := newFixture(t)
	f.running(t, ma_cross.ClassName, strategy.Setting{"fast_window": 2, "slow_window": 3, "init_days": 0})

	for i, c := range []float64{10, 10, 10, 12} {
		f.engine.ProcessBar(flat("rb", i+1, c))
	}

	require.NotEmpty(t, f.events)
	last := f.events[len(f.events)-1]
	assert.Equal(t, "s1", last.Name)
	assert.Equal(t, ma_cross.ClassName, last.Class)
	assert.True(t, last.Inited)
	assert.True(t, last.Trading)
	assert.Equal(t, 11.0, last.Variables["fast_ma"])
	assert.InDelta(t, 10.6667, last.Variables["slow_ma"], 1e-4)
	assert.Equal(t, 2, last.Parameters["fast_window"])
}

func TestMaCross_EndToEndWithSimulator(t *testing.T) {
	f := newFixture(t)
	f.history.bars = []core.Bar{flat("rb", -2, 10), flat("rb", -1, 10)}
	f.running(t, ma_cross.ClassName, strategy.Setting{"fast_window": 2, "slow_window": 3, "init_days": 3})

	// warm-up left two bars; the third completes the window at a tie
	f.engine.ProcessBar(flat("rb", 0, 10))
	open, _ := f.sim.GetOpenOrders(context.Background())
	assert.Empty(t, open)

	// up cross from flat: buy 1 at 12
	f.engine.ProcessBar(flat("rb", 1, 12))
	open, _ = f.sim.GetOpenOrders(context.Background())
	require.Len(t, open, 1)
	assert.Equal(t, core.DirectionLong, open[0].Direction)
	assert.Equal(t, 12.0, open[0].Price)

	f.sim.MatchBar(bar("rb", 2, 11, 13, 11, 12))
	snap, _ := f.engine.Snapshot("s1")
	assert.Equal(t, int64(1), snap.Pos)

	// falling closes produce sell 1 then short 1
	f.engine.ProcessBar(flat("rb", 2, 8))
	f.engine.ProcessBar(flat("rb", 3, 6))
	open, _ = f.sim.GetOpenOrders(context.Background())
	require.Len(t, open, 2)
	assert.Equal(t, core.OffsetClose, open[0].Offset)
	assert.Equal(t, core.OffsetOpen, open[1].Offset)
	assert.Equal(t, core.DirectionShort, open[1].Direction)

	tpl, err := f.engine.Strategy("s1")
	require.NoError(t, err)
	ma, ok := tpl.(*ma_cross.Strategy)
	require.True(t, ok)
	assert.Equal(t, 7.0, ma.FastMA())
	assert.InDelta(t, 8.6667, ma.SlowMA(), 1e-4)

	_, err = f.engine.Strategy("missing")
	assert.ErrorIs(t, err, core.ErrStrategyNotFound)
}
