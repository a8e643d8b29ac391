package backtest

import (
	"math"
	"time"

	"github.com/newthinker/cta/internal/core"
)

// costs applies commission and slippage to fills
type costs struct {
	size     float64
	rate     float64
	slippage float64
}

func (c costs) commission(price float64, volume int64) float64 {
	return price * float64(volume) * c.size * c.rate
}

func (c costs) slip(volume int64) float64 {
	return float64(volume) * c.size * c.slippage
}

// buildRoundTrips pairs opposing fills into round trips. Same-side fills
// average into the open exposure; a fill larger than the exposure closes it
// and opens the remainder at the fill price.
func buildRoundTrips(fills []core.Trade, c costs) []RoundTrip {
	var trips []RoundTrip
	var qty int64
	var avg float64
	var entry time.Time

	for _, f := range fills {
		signed := f.SignedVolume()
		if signed == 0 {
			continue
		}

		if qty == 0 || (qty > 0) == (signed > 0) {
			if qty == 0 {
				entry = f.Time
			}
			held := abs(qty)
			avg = (avg*float64(held) + f.Price*float64(f.Volume)) / float64(held+f.Volume)
			qty += signed
			continue
		}

		closed := min(abs(qty), f.Volume)
		dir := core.DirectionLong
		side := 1.0
		if qty < 0 {
			dir = core.DirectionShort
			side = -1
		}
		gross := (f.Price - avg) * float64(closed) * c.size * side
		cost := c.commission(avg, closed) + c.commission(f.Price, closed) + 2*c.slip(closed)

		trips = append(trips, RoundTrip{
			Direction:  dir,
			Volume:     closed,
			EntryPrice: avg,
			ExitPrice:  f.Price,
			EntryTime:  entry,
			ExitTime:   f.Time,
			PnL:        gross - cost,
		})

		prev := qty
		qty += signed
		switch {
		case qty == 0:
			avg = 0
		case (prev > 0) != (qty > 0):
			avg = f.Price
			entry = f.Time
		}
	}
	return trips
}

// equityCurve keeps one balance per calendar day, the last one seen
type equityCurve []EquityPoint

func (e *equityCurve) update(t time.Time, balance float64) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if n := len(*e); n > 0 && (*e)[n-1].Date.Equal(day) {
		(*e)[n-1].Balance = balance
		return
	}
	*e = append(*e, EquityPoint{Date: day, Balance: balance})
}

// CalculateStats computes performance statistics
func CalculateStats(trips []RoundTrip, equity []EquityPoint, capital float64, fills int, commission, slippage float64) Stats {
	stats := Stats{
		TotalTrades: fills,
		RoundTrips:  len(trips),
		Commission:  commission,
		Slippage:    slippage,
		EndBalance:  capital,
	}

	for _, t := range trips {
		if t.IsWin() {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}
	if len(trips) > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(len(trips)) * 100
	}

	if len(equity) == 0 || capital <= 0 {
		return stats
	}

	balances := make([]float64, 0, len(equity)+1)
	balances = append(balances, capital)
	for _, p := range equity {
		balances = append(balances, p.Balance)
	}

	stats.EndBalance = balances[len(balances)-1]
	stats.TotalPnL = stats.EndBalance - capital
	stats.TotalReturn = stats.TotalPnL / capital * 100
	stats.MaxDrawdown = calculateMaxDrawdown(balances) * 100
	stats.SharpeRatio = calculateSharpeRatio(dailyReturns(balances))
	return stats
}

func dailyReturns(balances []float64) []float64 {
	returns := make([]float64, 0, len(balances))
	for i := 1; i < len(balances); i++ {
		if balances[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, balances[i]/balances[i-1]-1)
	}
	return returns
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of a balance series
func calculateMaxDrawdown(balances []float64) float64 {
	var maxDD, peak float64

	for _, b := range balances {
		if b > peak {
			peak = b
		}
		if peak > 0 {
			if dd := (peak - b) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	// Annualize (assuming ~252 trading days)
	return mean * 252 / (stdDev * math.Sqrt(252))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
