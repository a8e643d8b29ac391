// Package bargen aggregates ticks into minute bars and minute bars into
// larger window bars.
package bargen

import (
	"math"
	"time"

	"github.com/newthinker/cta/internal/core"
)

// BarHandler receives a completed bar
type BarHandler func(bar core.Bar)

// Generator builds 1-minute bars from ticks and, when window is set,
// N-minute bars from 1-minute bars. It is not safe for concurrent use.
type Generator struct {
	onBar       BarHandler
	window      int
	onWindowBar BarHandler

	bar        *core.Bar
	windowBar  *core.Bar
	lastVolume float64
	seenTick   bool
}

// New creates a generator that emits minute bars to onBar.
// window > 0 enables N-minute aggregation through UpdateBar.
func New(onBar BarHandler, window int, onWindowBar BarHandler) *Generator {
	return &Generator{
		onBar:       onBar,
		window:      window,
		onWindowBar: onWindowBar,
	}
}

// UpdateTick folds a tick into the running minute bar
func (g *Generator) UpdateTick(tick core.Tick) {
	if tick.LastPrice <= 0 {
		return
	}

	minute := tick.Time.Truncate(time.Minute)
	if g.bar != nil && !minute.Equal(g.bar.Time) {
		g.emit()
	}

	if g.bar == nil {
		g.bar = &core.Bar{
			Symbol:   tick.Symbol,
			Interval: core.IntervalMinute,
			Open:     tick.LastPrice,
			High:     tick.LastPrice,
			Low:      tick.LastPrice,
			Close:    tick.LastPrice,
			Time:     minute,
		}
	} else {
		g.bar.High = math.Max(g.bar.High, tick.LastPrice)
		g.bar.Low = math.Min(g.bar.Low, tick.LastPrice)
		g.bar.Close = tick.LastPrice
	}

	// cumulative volume can reset between sessions
	if g.seenTick {
		g.bar.Volume += math.Max(tick.Volume-g.lastVolume, 0)
	}
	g.lastVolume = tick.Volume
	g.seenTick = true
}

// UpdateBar folds a minute bar into the running window bar
func (g *Generator) UpdateBar(bar core.Bar) {
	if g.window <= 0 {
		return
	}

	if g.windowBar == nil {
		g.windowBar = &core.Bar{
			Symbol:   bar.Symbol,
			Interval: core.MinuteInterval(g.window),
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Time:     bar.Time.Truncate(time.Duration(g.window) * time.Minute),
		}
	} else {
		g.windowBar.High = math.Max(g.windowBar.High, bar.High)
		g.windowBar.Low = math.Min(g.windowBar.Low, bar.Low)
	}
	g.windowBar.Close = bar.Close
	g.windowBar.Volume += bar.Volume

	if (bar.Time.Minute()+1)%g.window == 0 {
		finished := *g.windowBar
		g.windowBar = nil
		if g.onWindowBar != nil {
			g.onWindowBar(finished)
		}
	}
}

// Flush emits the running minute bar, if any
func (g *Generator) Flush() {
	if g.bar != nil {
		g.emit()
	}
}

func (g *Generator) emit() {
	finished := *g.bar
	g.bar = nil
	if g.onBar != nil {
		g.onBar(finished)
	}
}
