package core

import (
	"strconv"
	"strings"
	"time"
)

// Interval is the span a bar covers
type Interval string

const (
	IntervalMinute Interval = "1m"
	IntervalHour   Interval = "1h"
	IntervalDaily  Interval = "1d"
)

// MinuteInterval labels an n-minute bar, e.g. "5m"
func MinuteInterval(n int) Interval {
	if n <= 1 {
		return IntervalMinute
	}
	return Interval(strconv.Itoa(n) + "m")
}

// Duration returns the wall-clock length of the interval, or zero if unknown.
// Besides the named intervals, any "<n>m" label is n minutes.
func (i Interval) Duration() time.Duration {
	switch i {
	case IntervalMinute:
		return time.Minute
	case IntervalHour:
		return time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	}
	if s, ok := strings.CutSuffix(string(i), "m"); ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return 0
}

// Tick represents a single market data update
type Tick struct {
	Symbol     string
	LastPrice  float64
	LastVolume float64
	Volume     float64 // cumulative traded volume for the session
	Bid        float64
	Ask        float64
	Time       time.Time
}

// IsValid checks if the tick has required fields
func (t Tick) IsValid() bool {
	return t.Symbol != "" && t.LastPrice > 0
}

// Bar represents an OHLC aggregate over a fixed interval
type Bar struct {
	Symbol   string
	Interval Interval
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Time     time.Time // start of the interval
}

// Direction is the side of an order or trade
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Offset tells whether an order opens or closes exposure
type Offset string

const (
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusSubmitting OrderStatus = "SUBMITTING"
	StatusNotTraded  OrderStatus = "NOTTRADED"
	StatusPartTraded OrderStatus = "PARTTRADED"
	StatusAllTraded  OrderStatus = "ALLTRADED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusRejected   OrderStatus = "REJECTED"
)

// Order is a limit order as seen by a strategy
type Order struct {
	OrderID   string
	Reference string // owning strategy name
	Symbol    string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    int64
	Traded    int64
	Status    OrderStatus
	Time      time.Time
}

// IsActive returns true while the order can still trade
func (o Order) IsActive() bool {
	switch o.Status {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	}
	return false
}

// Remaining returns the untraded volume
func (o Order) Remaining() int64 {
	return o.Volume - o.Traded
}

// Trade is a fill against an order
type Trade struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    int64
	Time      time.Time
}

// SignedVolume returns the trade volume with the sign of its direction
func (t Trade) SignedVolume() int64 {
	if t.Direction == DirectionShort {
		return -t.Volume
	}
	return t.Volume
}

// StopOrderStatus is the state of a locally held stop order
type StopOrderStatus string

const (
	StopStatusWaiting   StopOrderStatus = "WAITING"
	StopStatusCancelled StopOrderStatus = "CANCELLED"
	StopStatusTriggered StopOrderStatus = "TRIGGERED"
)

// StopOrder is a conditional order held by the host until its price triggers
type StopOrder struct {
	StopOrderID string
	Symbol      string
	Direction   Direction
	Offset      Offset
	Price       float64
	Volume      int64
	Status      StopOrderStatus
	OrderIDs    []string
}
