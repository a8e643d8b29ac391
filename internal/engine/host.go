package engine

import (
	"context"
	"fmt"

	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/strategy"
	"go.uber.org/zap"
)

// instance is one running strategy and the strategy.Host it trades through.
// Its methods run inside engine callbacks, with the engine lock held.
type instance struct {
	engine *Engine

	name     string
	class    string
	symbol   string
	strategy strategy.Template

	inited  bool
	trading bool
	pos     int64
	orders  map[string]struct{}

	// ctx is set while OnInit runs
	ctx context.Context
}

var _ strategy.Host = (*instance)(nil)

func (i *instance) Symbol() string { return i.symbol }

func (i *instance) Pos() int64 { return i.pos }

func (i *instance) Buy(price float64, volume int64) (string, error) {
	return i.send(core.DirectionLong, core.OffsetOpen, price, volume)
}

func (i *instance) Sell(price float64, volume int64) (string, error) {
	return i.send(core.DirectionShort, core.OffsetClose, price, volume)
}

func (i *instance) Short(price float64, volume int64) (string, error) {
	return i.send(core.DirectionShort, core.OffsetOpen, price, volume)
}

func (i *instance) Cover(price float64, volume int64) (string, error) {
	return i.send(core.DirectionLong, core.OffsetClose, price, volume)
}

func (i *instance) send(dir core.Direction, offset core.Offset, price float64, volume int64) (string, error) {
	e := i.engine

	if !i.trading {
		// warm-up orders are expected and not counted
		if i.ctx == nil {
			e.rejected(i.name, "not_trading")
		}
		return "", core.WrapError(core.ErrNotTrading, fmt.Errorf("strategy %q", i.name))
	}
	if volume <= 0 {
		e.rejected(i.name, "invalid_volume")
		return "", core.WrapError(core.ErrInvalidVolume, fmt.Errorf("got %d", volume))
	}

	order, err := e.broker.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol:    i.symbol,
		Direction: dir,
		Offset:    offset,
		Price:     price,
		Volume:    volume,
		Reference: i.name,
	})
	if err != nil {
		e.rejected(i.name, "broker")
		return "", core.WrapError(core.ErrOrderFailed, err)
	}

	i.orders[order.OrderID] = struct{}{}
	e.orderOwner[order.OrderID] = i

	if e.metrics != nil {
		e.metrics.RecordOrder(i.name, string(dir), string(offset))
	}
	e.logger.Debug("order sent",
		zap.String("strategy", i.name),
		zap.String("order_id", order.OrderID),
		zap.String("direction", string(dir)),
		zap.String("offset", string(offset)),
		zap.Float64("price", price),
		zap.Int64("volume", volume),
	)
	return order.OrderID, nil
}

// LoadBar replays [now-days, now) of stored bars through OnBar
func (i *instance) LoadBar(days int) {
	e := i.engine
	if days <= 0 {
		return
	}
	if e.history == nil {
		i.WriteLog("no history provider, skipping warm-up")
		return
	}

	ctx := i.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	end := e.now()
	start := end.AddDate(0, 0, -days)

	bars, err := e.history.ReadBars(ctx, i.symbol, e.cfg.Interval, start, end)
	if err != nil {
		e.logger.Warn("load history failed",
			zap.String("strategy", i.name),
			zap.String("symbol", i.symbol),
			zap.Error(err),
		)
		return
	}
	for _, bar := range bars {
		i.strategy.OnBar(bar)
	}
	i.WriteLog(fmt.Sprintf("loaded %d bars over %d days", len(bars), days))
}

func (i *instance) PutEvent() { i.putEvent() }

func (i *instance) putEvent() {
	ev := i.event()
	for _, o := range i.engine.observers {
		o.OnStrategyEvent(ev)
	}
}

func (i *instance) event() strategy.Event {
	ev := strategy.Event{
		Name:    i.name,
		Class:   i.class,
		Symbol:  i.symbol,
		Inited:  i.inited,
		Trading: i.trading,
		Pos:     i.pos,
		Time:    i.engine.now(),
	}
	if r, ok := i.strategy.(strategy.Reporter); ok {
		ev.Parameters = r.Parameters()
		ev.Variables = r.Variables()
	}
	return ev
}

func (i *instance) WriteLog(msg string) {
	i.engine.logger.Info(msg, zap.String("strategy", i.name))
}

func (e *Engine) rejected(name, reason string) {
	if e.metrics != nil {
		e.metrics.RecordRejected(name, reason)
	}
}
