// Package engine hosts strategy instances: it routes market data to them,
// turns their order primitives into broker requests and feeds fills back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/metrics"
	"github.com/newthinker/cta/internal/strategy"
	"go.uber.org/zap"
)

// HistoryProvider supplies stored bars with start <= Time < end
type HistoryProvider interface {
	ReadBars(ctx context.Context, symbol string, interval core.Interval, start, end time.Time) ([]core.Bar, error)
}

// Config holds engine settings
type Config struct {
	// Interval of the history bars LoadBar replays
	Interval core.Interval `mapstructure:"interval"`
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics records order, trade and market data counters
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now as the reference for LoadBar and events
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithObserver registers an observer at construction
func WithObserver(o strategy.Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// Engine runs strategies against a broker. All strategy callbacks happen
// under mu, so each instance sees one callback at a time.
type Engine struct {
	cfg      Config
	broker   broker.Broker
	history  HistoryProvider
	registry *strategy.Registry
	logger   *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	mu         sync.Mutex
	instances  map[string]*instance
	order      []string
	bySymbol   map[string][]*instance
	orderOwner map[string]*instance
	observers  []strategy.Observer
}

// New creates an engine and subscribes it to b's order updates.
// b must not deliver updates synchronously from PlaceOrder.
func New(cfg Config, b broker.Broker, history HistoryProvider, registry *strategy.Registry, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if b == nil {
		return nil, fmt.Errorf("engine: broker is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: strategy registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval == "" {
		cfg.Interval = core.IntervalMinute
	}

	e := &Engine{
		cfg:        cfg,
		broker:     b,
		history:    history,
		registry:   registry,
		logger:     logger,
		now:        time.Now,
		instances:  make(map[string]*instance),
		bySymbol:   make(map[string][]*instance),
		orderOwner: make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := b.Subscribe(e.onUpdate); err != nil {
		return nil, fmt.Errorf("engine: subscribe to %s: %w", b.Name(), err)
	}
	return e, nil
}

// Close stops receiving broker updates
func (e *Engine) Close() error {
	return e.broker.Unsubscribe()
}

// AddObserver registers an observer for strategy events
func (e *Engine) AddObserver(o strategy.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// AddStrategy creates an instance of class named name trading symbol
func (e *Engine) AddStrategy(class, name, symbol string, setting strategy.Setting) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.instances[name]; exists {
		return core.WrapError(core.ErrStrategyExists, fmt.Errorf("name %q", name))
	}
	if symbol == "" {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategy %q has no symbol", name))
	}

	inst := &instance{
		engine: e,
		name:   name,
		class:  class,
		symbol: symbol,
		orders: make(map[string]struct{}),
	}
	tmpl, err := e.registry.New(class, inst, setting)
	if err != nil {
		return fmt.Errorf("add strategy %s: %w", name, err)
	}
	inst.strategy = tmpl

	e.instances[name] = inst
	e.order = append(e.order, name)
	e.bySymbol[symbol] = append(e.bySymbol[symbol], inst)

	e.logger.Info("strategy added",
		zap.String("strategy", name),
		zap.String("class", class),
		zap.String("symbol", symbol),
	)
	return nil
}

// InitStrategy runs OnInit, during which LoadBar replays history
func (e *Engine) InitStrategy(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.get(name)
	if err != nil {
		return err
	}
	if inst.inited {
		return core.WrapError(core.ErrAlreadyInited, fmt.Errorf("strategy %q", name))
	}

	inst.ctx = ctx
	inst.strategy.OnInit()
	inst.ctx = nil
	inst.inited = true
	inst.putEvent()

	e.logger.Info("strategy initialized", zap.String("strategy", name))
	return nil
}

// StartStrategy enables trading for an initialized instance
func (e *Engine) StartStrategy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.get(name)
	if err != nil {
		return err
	}
	if !inst.inited {
		return core.WrapError(core.ErrNotInited, fmt.Errorf("strategy %q", name))
	}
	if inst.trading {
		return nil
	}

	inst.strategy.OnStart()
	inst.trading = true
	inst.putEvent()

	e.logger.Info("strategy started", zap.String("strategy", name))
	return nil
}

// StopStrategy disables trading and cancels the instance's resting orders
func (e *Engine) StopStrategy(ctx context.Context, name string) error {
	e.mu.Lock()
	inst, err := e.get(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !inst.trading {
		e.mu.Unlock()
		return nil
	}

	inst.strategy.OnStop()
	inst.trading = false
	ids := make([]string, 0, len(inst.orders))
	for id := range inst.orders {
		ids = append(ids, id)
	}
	inst.putEvent()
	e.mu.Unlock()

	// cancellations come back through onUpdate, which takes mu
	for _, id := range ids {
		if err := e.broker.CancelOrder(ctx, id); err != nil {
			e.logger.Warn("cancel order failed",
				zap.String("strategy", name),
				zap.String("order_id", id),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("strategy stopped", zap.String("strategy", name), zap.Int("cancelled", len(ids)))
	return nil
}

// InitAll initializes every instance that is not yet initialized
func (e *Engine) InitAll(ctx context.Context) error {
	for _, name := range e.Strategies() {
		if err := e.InitStrategy(ctx, name); err != nil && !errors.Is(err, core.ErrAlreadyInited) {
			return err
		}
	}
	return nil
}

// StartAll starts every instance
func (e *Engine) StartAll() error {
	for _, name := range e.Strategies() {
		if err := e.StartStrategy(name); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every instance, returning the first error
func (e *Engine) StopAll(ctx context.Context) error {
	var first error
	for _, name := range e.Strategies() {
		if err := e.StopStrategy(ctx, name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Strategies returns instance names in the order they were added
func (e *Engine) Strategies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Snapshot returns the current event for an instance
func (e *Engine) Snapshot(name string) (strategy.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.get(name)
	if err != nil {
		return strategy.Event{}, err
	}
	return inst.event(), nil
}

// Strategy returns the strategy object behind an instance
func (e *Engine) Strategy(name string) (strategy.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.get(name)
	if err != nil {
		return nil, err
	}
	return inst.strategy, nil
}

// ProcessTick dispatches a tick to initialized instances on its symbol
func (e *Engine) ProcessTick(tick core.Tick) {
	if !tick.IsValid() {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordTick(tick.Symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.bySymbol[tick.Symbol] {
		if inst.inited {
			inst.strategy.OnTick(tick)
		}
	}
}

// ProcessBar dispatches a bar to initialized instances on its symbol
func (e *Engine) ProcessBar(bar core.Bar) {
	if e.metrics != nil {
		e.metrics.RecordBar(bar.Symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.bySymbol[bar.Symbol] {
		if inst.inited {
			inst.strategy.OnBar(bar)
		}
	}
}

// onUpdate routes broker updates to the owning instance
func (e *Engine) onUpdate(u broker.OrderUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := u.Order.OrderID
	inst, ok := e.orderOwner[id]
	if !ok {
		return
	}
	if !u.Order.IsActive() {
		delete(inst.orders, id)
		delete(e.orderOwner, id)
	}

	inst.strategy.OnOrder(u.Order)

	if u.Trade != nil {
		trade := *u.Trade
		inst.pos += trade.SignedVolume()
		if e.metrics != nil {
			e.metrics.RecordTrade(inst.name, string(trade.Direction))
		}
		e.logger.Debug("trade",
			zap.String("strategy", inst.name),
			zap.String("direction", string(trade.Direction)),
			zap.String("offset", string(trade.Offset)),
			zap.Float64("price", trade.Price),
			zap.Int64("volume", trade.Volume),
			zap.Int64("pos", inst.pos),
		)
		inst.strategy.OnTrade(trade)
	}
}

// get looks up an instance. Callers must hold mu.
func (e *Engine) get(name string) (*instance, error) {
	inst, ok := e.instances[name]
	if !ok {
		return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("name %q", name))
	}
	return inst, nil
}
