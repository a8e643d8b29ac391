// Package ma_cross implements a fast/slow simple moving average crossover
// that flips between long and short on every cross.
package ma_cross

import (
	"errors"
	"fmt"

	"github.com/newthinker/cta/internal/bargen"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/indicator"
	"github.com/newthinker/cta/internal/strategy"
)

// ClassName is the registry key of this strategy
const ClassName = "ma_cross"

// historyMargin is the number of bars kept beyond the longest window
const historyMargin = 5

// Config holds the per-instance parameters
type Config struct {
	FastWindow int   `mapstructure:"fast_window"`
	SlowWindow int   `mapstructure:"slow_window"`
	FixedSize  int64 `mapstructure:"fixed_size"`
	InitDays   int   `mapstructure:"init_days"`
}

// DefaultConfig returns the stock 10/30 crossover trading one lot
func DefaultConfig() Config {
	return Config{
		FastWindow: 10,
		SlowWindow: 30,
		FixedSize:  1,
		InitDays:   10,
	}
}

// Validate checks the windows and size
func (c Config) Validate() error {
	if c.FastWindow < 1 || c.SlowWindow < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("windows must be positive, got fast=%d slow=%d", c.FastWindow, c.SlowWindow))
	}
	if c.FastWindow >= c.SlowWindow {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast_window (%d) must be shorter than slow_window (%d)", c.FastWindow, c.SlowWindow))
	}
	if c.FixedSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fixed_size must be positive, got %d", c.FixedSize))
	}
	if c.InitDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("init_days cannot be negative, got %d", c.InitDays))
	}
	return nil
}

// Strategy trades a fixed size on fast/slow SMA crosses
type Strategy struct {
	host    strategy.Host
	cfg     Config
	history *indicator.Window
	bg      *bargen.Generator

	fastMA float64
	slowMA float64
}

// New creates a strategy bound to host
func New(host strategy.Host, cfg Config) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Strategy{
		host:    host,
		cfg:     cfg,
		history: indicator.NewWindow(max(cfg.FastWindow, cfg.SlowWindow) + historyMargin),
	}
	s.bg = bargen.New(s.OnBar, 0, nil)
	return s, nil
}

// Factory decodes setting over DefaultConfig and builds the strategy
func Factory(host strategy.Host, setting strategy.Setting) (strategy.Template, error) {
	cfg := DefaultConfig()
	if err := strategy.Decode(setting, &cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	return New(host, cfg)
}

// Register adds this strategy class to r
func Register(r *strategy.Registry) {
	r.Register(ClassName, Factory)
}

func (s *Strategy) OnInit() {
	s.host.WriteLog("strategy initializing")
	s.host.LoadBar(s.cfg.InitDays)
}

func (s *Strategy) OnStart() {
	s.host.WriteLog("strategy started")
}

func (s *Strategy) OnStop() {
	s.host.WriteLog("strategy stopped")
	s.history.Reset()
}

// OnTick only feeds the bar generator; orders come from OnBar
func (s *Strategy) OnTick(tick core.Tick) {
	s.bg.UpdateTick(tick)
}

func (s *Strategy) OnBar(bar core.Bar) {
	s.history.Push(bar)
	if s.history.Len() < s.cfg.SlowWindow {
		return
	}

	s.fastMA, _ = s.history.Mean(s.cfg.FastWindow)
	s.slowMA, _ = s.history.Mean(s.cfg.SlowWindow)

	pos := s.host.Pos()
	price := bar.Close

	switch {
	case s.fastMA > s.slowMA && pos <= 0:
		if pos < 0 {
			s.send("cover", s.host.Cover, price, -pos)
		}
		s.send("buy", s.host.Buy, price, s.cfg.FixedSize)
	case s.fastMA < s.slowMA && pos >= 0:
		if pos > 0 {
			s.send("sell", s.host.Sell, price, pos)
		}
		s.send("short", s.host.Short, price, s.cfg.FixedSize)
	}

	s.host.PutEvent()
}

func (s *Strategy) OnOrder(order core.Order) {}

func (s *Strategy) OnTrade(trade core.Trade) {
	s.host.PutEvent()
}

func (s *Strategy) OnStopOrder(stopOrder core.StopOrder) {}

// Parameters reports the configured windows and size
func (s *Strategy) Parameters() map[string]any {
	return map[string]any{
		"fast_window": s.cfg.FastWindow,
		"slow_window": s.cfg.SlowWindow,
		"fixed_size":  s.cfg.FixedSize,
	}
}

// Variables reports the latest averages
func (s *Strategy) Variables() map[string]any {
	return map[string]any{
		"fast_ma": s.fastMA,
		"slow_ma": s.slowMA,
	}
}

// FastMA returns the fast average from the latest evaluated bar
func (s *Strategy) FastMA() float64 { return s.fastMA }

// SlowMA returns the slow average from the latest evaluated bar
func (s *Strategy) SlowMA() float64 { return s.slowMA }

// Closes returns the held closing prices, oldest first
func (s *Strategy) Closes() []float64 { return s.history.Closes() }

// send submits one order; rejections are logged and never interrupt the bar.
// Orders dropped while not trading (history warm-up) are not logged.
func (s *Strategy) send(action string, fn func(float64, int64) (string, error), price float64, volume int64) {
	_, err := fn(price, volume)
	if errors.Is(err, core.ErrNotTrading) {
		return
	}
	if err != nil {
		s.host.WriteLog(fmt.Sprintf("%s %d @ %.4f failed: %v", action, volume, price, err))
	}
}
