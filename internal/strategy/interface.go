package strategy

import (
	"github.com/newthinker/cta/internal/core"
)

// Setting holds the raw per-instance parameters for a strategy class
type Setting map[string]any

// Template is the callback contract every strategy implements.
// The host invokes one callback at a time.
type Template interface {
	OnInit()
	OnStart()
	OnStop()
	OnTick(tick core.Tick)
	OnBar(bar core.Bar)
	OnOrder(order core.Order)
	OnTrade(trade core.Trade)
	OnStopOrder(stopOrder core.StopOrder)
}

// Reporter is implemented by strategies that expose their parameters and
// live variables to observers
type Reporter interface {
	Parameters() map[string]any
	Variables() map[string]any
}

// Host is the per-instance view of the engine a strategy trades through
type Host interface {
	// Symbol returns the instrument this instance trades
	Symbol() string
	// Pos returns the signed net position: long > 0, flat 0, short < 0
	Pos() int64

	// Order primitives return the host-assigned order id
	Buy(price float64, volume int64) (string, error)
	Sell(price float64, volume int64) (string, error)
	Short(price float64, volume int64) (string, error)
	Cover(price float64, volume int64) (string, error)

	// LoadBar replays the given number of days of history through OnBar
	LoadBar(days int)
	// PutEvent notifies observers that the strategy state changed
	PutEvent()
	// WriteLog records an informational message
	WriteLog(msg string)
}

// Factory builds a strategy instance bound to host
type Factory func(host Host, setting Setting) (Template, error)
