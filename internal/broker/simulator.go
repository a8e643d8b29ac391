package broker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/cta/internal/core"
)

// Simulator is an in-process broker. Orders rest until MatchBar or MatchTick
// crosses them, which fills the whole remaining volume at once.
// Updates are delivered synchronously, outside the simulator lock.
type Simulator struct {
	mu sync.RWMutex

	connected bool
	orders    map[string]*core.Order
	active    map[string]struct{}
	orderID   int64
	handler   UpdateHandler

	// now stamps orders and trades; backtests set it to the data clock
	now func() time.Time
}

// NewSimulator creates a disconnected simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		orders: make(map[string]*core.Order),
		active: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Name returns the broker identifier.
func (s *Simulator) Name() string {
	return "simulator"
}

// Connect marks the simulator connected.
func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return ErrAlreadyConnected
	}
	s.connected = true
	return nil
}

// Disconnect marks the simulator disconnected. Resting orders are kept.
func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	s.connected = false
	return nil
}

// IsConnected returns the connection status.
func (s *Simulator) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// PlaceOrder accepts a limit order. No update is emitted until it trades or
// is cancelled.
func (s *Simulator) PlaceOrder(ctx context.Context, req OrderRequest) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.orderID++
	order := &core.Order{
		OrderID:   fmt.Sprintf("SIM-%d", s.orderID),
		Reference: req.Reference,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Offset:    req.Offset,
		Price:     req.Price,
		Volume:    req.Volume,
		Status:    core.StatusNotTraded,
		Time:      s.now(),
	}
	s.orders[order.OrderID] = order
	s.active[order.OrderID] = struct{}{}

	orderCopy := *order
	return &orderCopy, nil
}

// CancelOrder cancels a resting order.
func (s *Simulator) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()

	if !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}

	order, exists := s.orders[orderID]
	if !exists {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	if !order.IsActive() {
		s.mu.Unlock()
		return ErrOrderNotCancellable
	}

	order.Status = core.StatusCancelled
	delete(s.active, orderID)
	update := OrderUpdate{Order: *order, Event: "cancelled", Timestamp: s.now()}
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(update)
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (s *Simulator) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	order, exists := s.orders[orderID]
	if !exists {
		return nil, ErrOrderNotFound
	}
	orderCopy := *order
	return &orderCopy, nil
}

// GetOpenOrders returns resting orders in submission order.
func (s *Simulator) GetOpenOrders(ctx context.Context) ([]core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	return s.activeOrders(), nil
}

// Subscribe registers the update handler, replacing any previous one.
func (s *Simulator) Subscribe(handler UpdateHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

// Unsubscribe removes the update handler.
func (s *Simulator) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
	return nil
}

// SetClock replaces the time source used to stamp orders and trades.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// MatchBar crosses resting orders for bar.Symbol against the bar range.
// Long orders fill when the low reaches the limit, at the better of limit and
// open; short orders fill when the high reaches the limit.
func (s *Simulator) MatchBar(bar core.Bar) []core.Trade {
	return s.match(bar.Symbol, bar.Time, bar.Low, bar.High, bar.Open, bar.Open)
}

// MatchTick crosses resting orders for tick.Symbol against the quote.
// Without a quote the last price is used on both sides.
func (s *Simulator) MatchTick(tick core.Tick) []core.Trade {
	ask, bid := tick.Ask, tick.Bid
	if ask <= 0 {
		ask = tick.LastPrice
	}
	if bid <= 0 {
		bid = tick.LastPrice
	}
	return s.match(tick.Symbol, tick.Time, ask, bid, ask, bid)
}

func (s *Simulator) match(symbol string, at time.Time, longCross, shortCross, longBest, shortBest float64) []core.Trade {
	s.mu.Lock()

	var updates []OrderUpdate
	var trades []core.Trade

	for _, order := range s.activeOrders() {
		if order.Symbol != symbol {
			continue
		}

		var price float64
		switch order.Direction {
		case core.DirectionLong:
			if longCross <= 0 || order.Price < longCross {
				continue
			}
			price = math.Min(order.Price, longBest)
		case core.DirectionShort:
			if shortCross <= 0 || order.Price > shortCross {
				continue
			}
			price = math.Max(order.Price, shortBest)
		}

		o := s.orders[order.OrderID]
		trade := core.Trade{
			TradeID:   uuid.NewString(),
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Direction: o.Direction,
			Offset:    o.Offset,
			Price:     price,
			Volume:    o.Remaining(),
			Time:      at,
		}
		o.Traded = o.Volume
		o.Status = core.StatusAllTraded
		delete(s.active, o.OrderID)

		trades = append(trades, trade)
		tradeCopy := trade
		updates = append(updates, OrderUpdate{Order: *o, Trade: &tradeCopy, Event: "filled", Timestamp: at})
	}
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		for _, u := range updates {
			handler(u)
		}
	}
	return trades
}

// activeOrders returns copies of resting orders sorted by id sequence.
// Callers must hold s.mu.
func (s *Simulator) activeOrders() []core.Order {
	out := make([]core.Order, 0, len(s.active))
	for id := range s.active {
		out = append(out, *s.orders[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return orderSeq(out[i].OrderID) < orderSeq(out[j].OrderID)
	})
	return out
}

func orderSeq(id string) int64 {
	var n int64
	fmt.Sscanf(id, "SIM-%d", &n)
	return n
}
