package broker

import (
	"sync"
	"time"

	"github.com/newthinker/cta/internal/core"
)

// Position is a signed net holding in one instrument.
type Position struct {
	// Symbol is the instrument code.
	Symbol string `json:"symbol"`
	// Quantity is the net contracts held (negative for short).
	Quantity int64 `json:"quantity"`
	// AverageCost is the average entry price of the open quantity.
	AverageCost float64 `json:"average_cost"`
	// LastPrice is the latest fill or mark price.
	LastPrice float64 `json:"last_price"`
	// RealizedPL is the profit/loss from closed quantity.
	RealizedPL float64 `json:"realized_pl"`
	// UpdatedAt is when the position was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLong returns true if this is a long position.
func (p Position) IsLong() bool {
	return p.Quantity > 0
}

// IsShort returns true if this is a short position.
func (p Position) IsShort() bool {
	return p.Quantity < 0
}

// UnrealizedPL returns the mark-to-market profit of the open quantity.
func (p Position) UnrealizedPL(multiplier float64) float64 {
	return (p.LastPrice - p.AverageCost) * float64(p.Quantity) * multiplier
}

// PositionTracker keeps signed positions and realized P&L from trades.
type PositionTracker struct {
	positions  map[string]*Position // symbol -> position
	multiplier float64
	mu         sync.RWMutex
}

// NewPositionTracker creates a tracker. multiplier is the contract size used
// to turn price moves into P&L; values <= 0 mean 1.
func NewPositionTracker(multiplier float64) *PositionTracker {
	if multiplier <= 0 {
		multiplier = 1
	}
	return &PositionTracker{
		positions:  make(map[string]*Position),
		multiplier: multiplier,
	}
}

// GetPosition returns a copy of the position for a symbol.
// Unknown symbols return a flat position.
func (pt *PositionTracker) GetPosition(symbol string) Position {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if pos, exists := pt.positions[symbol]; exists {
		return *pos
	}
	return Position{Symbol: symbol}
}

// GetAllPositions returns all non-flat positions.
func (pt *PositionTracker) GetAllPositions() []Position {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	positions := make([]Position, 0, len(pt.positions))
	for _, pos := range pt.positions {
		if pos.Quantity != 0 {
			positions = append(positions, *pos)
		}
	}
	return positions
}

// UpdateOnTrade applies a fill and returns the P&L it realized.
// Fills in the direction of the position average into the cost; opposing
// fills realize P&L on the closed part and any excess opens a new position
// at the fill price.
func (pt *PositionTracker) UpdateOnTrade(trade core.Trade) float64 {
	if trade.Volume == 0 {
		return 0
	}

	pt.mu.Lock()
	defer pt.mu.Unlock()

	pos, exists := pt.positions[trade.Symbol]
	if !exists {
		pos = &Position{Symbol: trade.Symbol}
		pt.positions[trade.Symbol] = pos
	}

	signed := trade.SignedVolume()
	var realized float64

	switch {
	case pos.Quantity == 0 || sameSign(pos.Quantity, signed):
		total := float64(abs(pos.Quantity))*pos.AverageCost + float64(trade.Volume)*trade.Price
		pos.Quantity += signed
		pos.AverageCost = total / float64(abs(pos.Quantity))
	default:
		closed := min(abs(pos.Quantity), trade.Volume)
		// long positions gain when price rises, short when it falls
		direction := float64(sign(pos.Quantity))
		realized = (trade.Price - pos.AverageCost) * float64(closed) * direction * pt.multiplier
		pos.RealizedPL += realized
		pos.Quantity += signed
		switch {
		case pos.Quantity == 0:
			pos.AverageCost = 0
		case !sameSign(pos.Quantity, -signed):
			// flipped through flat
			pos.AverageCost = trade.Price
		}
	}

	pos.LastPrice = trade.Price
	pos.UpdatedAt = trade.Time
	return realized
}

// Mark updates the last price used for unrealized P&L.
func (pt *PositionTracker) Mark(symbol string, price float64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pos, ok := pt.positions[symbol]; ok {
		pos.LastPrice = price
	}
}

// TotalUnrealizedPL returns the sum of unrealized P&L across all positions.
func (pt *PositionTracker) TotalUnrealizedPL() float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	var total float64
	for _, pos := range pt.positions {
		total += pos.UnrealizedPL(pt.multiplier)
	}
	return total
}

// TotalRealizedPL returns the sum of realized P&L across all positions.
func (pt *PositionTracker) TotalRealizedPL() float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	var total float64
	for _, pos := range pt.positions {
		total += pos.RealizedPL
	}
	return total
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
