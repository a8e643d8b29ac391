package backtest

import (
	"fmt"
	"time"

	"github.com/newthinker/cta/internal/broker"
	"github.com/newthinker/cta/internal/core"
	"github.com/newthinker/cta/internal/strategy"
)

// Mode selects the market data a backtest replays
type Mode string

const (
	ModeBar  Mode = "bar"
	ModeTick Mode = "tick"
)

// Params describes one backtest run
type Params struct {
	Class    string           `mapstructure:"class" json:"class"`
	Name     string           `mapstructure:"name" json:"name"`
	Symbol   string           `mapstructure:"symbol" json:"symbol"`
	Interval core.Interval    `mapstructure:"interval" json:"interval"`
	Setting  strategy.Setting `mapstructure:"setting" json:"setting"`
	Start    time.Time        `mapstructure:"start" json:"start"`
	End      time.Time        `mapstructure:"end" json:"end"`           // exclusive
	Rate     float64          `mapstructure:"rate" json:"rate"`         // commission on turnover
	Slippage float64          `mapstructure:"slippage" json:"slippage"` // price units per contract per fill
	Size     float64          `mapstructure:"size" json:"size"`         // contract multiplier
	Capital  float64          `mapstructure:"capital" json:"capital"`
	Mode     Mode             `mapstructure:"mode" json:"mode"`
}

// WithDefaults fills unset fields
func (p Params) WithDefaults() Params {
	if p.Name == "" {
		p.Name = p.Class
	}
	if p.Interval == "" {
		p.Interval = core.IntervalDaily
	}
	if p.Size <= 0 {
		p.Size = 1
	}
	if p.Capital <= 0 {
		p.Capital = 1_000_000
	}
	if p.Mode == "" {
		p.Mode = ModeBar
	}
	return p
}

// Validate checks the run parameters
func (p Params) Validate() error {
	var err error
	switch {
	case p.Class == "":
		err = fmt.Errorf("class is required")
	case p.Symbol == "":
		err = fmt.Errorf("symbol is required")
	case !p.End.After(p.Start):
		err = fmt.Errorf("end %s must be after start %s", p.End.Format(time.DateOnly), p.Start.Format(time.DateOnly))
	case p.Rate < 0 || p.Slippage < 0:
		err = fmt.Errorf("rate and slippage cannot be negative")
	case p.Mode != ModeBar && p.Mode != ModeTick:
		err = fmt.Errorf("unknown mode %q", p.Mode)
	}
	if err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	return nil
}

// Result holds the complete backtest output
type Result struct {
	ID         string          `json:"id"`
	Strategy   string          `json:"strategy"`
	Class      string          `json:"class"`
	Symbol     string          `json:"symbol"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Params     Params          `json:"params"`
	Trades     []core.Trade    `json:"trades"`
	RoundTrips []RoundTrip     `json:"round_trips"`
	Equity     []EquityPoint   `json:"equity"`
	Position   broker.Position `json:"position"`
	Stats      Stats           `json:"stats"`
}

// RoundTrip is a closed exposure from entry to exit
type RoundTrip struct {
	Direction  core.Direction `json:"direction"` // side of the entry
	Volume     int64          `json:"volume"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  float64        `json:"exit_price"`
	EntryTime  time.Time      `json:"entry_time"`
	ExitTime   time.Time      `json:"exit_time"`
	PnL        float64        `json:"pnl"` // net of commission and slippage
}

// IsWin returns true if the round trip was profitable
func (r RoundTrip) IsWin() bool {
	return r.PnL > 0
}

// EquityPoint is the account balance at the end of a trading day
type EquityPoint struct {
	Date    time.Time `json:"date"`
	Balance float64   `json:"balance"`
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades   int     `json:"total_trades"` // fills
	RoundTrips    int     `json:"round_trips"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // percent of round trips
	TotalPnL      float64 `json:"total_pnl"`
	Commission    float64 `json:"commission"`
	Slippage      float64 `json:"slippage"`
	EndBalance    float64 `json:"end_balance"`
	TotalReturn   float64 `json:"total_return"` // percent of capital
	MaxDrawdown   float64 `json:"max_drawdown"` // percent of peak balance
	SharpeRatio   float64 `json:"sharpe_ratio"` // annualized from daily returns
}
