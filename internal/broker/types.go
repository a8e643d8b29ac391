// Package broker provides the order-routing interface the engine trades
// through and an in-process simulator that matches orders against bars.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/cta/internal/core"
)

// Broker-specific errors.
var (
	// ErrNotConnected indicates the broker is not connected.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrAlreadyConnected indicates the broker is already connected.
	ErrAlreadyConnected = errors.New("broker: already connected")
	// ErrOrderNotFound indicates the order was not found.
	ErrOrderNotFound = errors.New("broker: order not found")
	// ErrInvalidSymbol indicates an invalid or empty symbol.
	ErrInvalidSymbol = errors.New("broker: invalid symbol")
	// ErrInvalidVolume indicates a non-positive order volume.
	ErrInvalidVolume = errors.New("broker: invalid volume")
	// ErrInvalidPrice indicates a non-positive limit price.
	ErrInvalidPrice = errors.New("broker: invalid price")
	// ErrInvalidDirection indicates an unknown direction or offset.
	ErrInvalidDirection = errors.New("broker: invalid direction or offset")
	// ErrOrderNotCancellable indicates the order cannot be cancelled.
	ErrOrderNotCancellable = errors.New("broker: order cannot be cancelled")
)

// OrderRequest represents a request to place a new limit order.
type OrderRequest struct {
	// Symbol is the instrument code (e.g., "rb2410", "IF2406").
	Symbol string `json:"symbol"`
	// Direction is LONG or SHORT.
	Direction core.Direction `json:"direction"`
	// Offset tells whether the order opens or closes exposure.
	Offset core.Offset `json:"offset"`
	// Price is the limit price.
	Price float64 `json:"price"`
	// Volume is the number of contracts.
	Volume int64 `json:"volume"`
	// Reference names the strategy that sent the order.
	Reference string `json:"reference,omitempty"`
}

// Validate checks if the order request has valid required fields.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if r.Volume <= 0 {
		return ErrInvalidVolume
	}
	if r.Price <= 0 {
		return ErrInvalidPrice
	}
	if r.Direction != core.DirectionLong && r.Direction != core.DirectionShort {
		return ErrInvalidDirection
	}
	if r.Offset != core.OffsetOpen && r.Offset != core.OffsetClose {
		return ErrInvalidDirection
	}
	return nil
}

// OrderUpdate represents an order status change, with the fill when one happened.
type OrderUpdate struct {
	// Order is the order after the change.
	Order core.Order `json:"order"`
	// Trade is set when the change was a fill.
	Trade *core.Trade `json:"trade,omitempty"`
	// Event describes what changed (e.g., "filled", "cancelled").
	Event string `json:"event"`
	// Timestamp is when the update occurred.
	Timestamp time.Time `json:"timestamp"`
}

// UpdateHandler is a callback function for order updates.
type UpdateHandler func(update OrderUpdate)

// Broker defines the interface for order routing.
type Broker interface {
	// Name returns the broker identifier.
	Name() string

	// Connection management
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// Order operations
	PlaceOrder(ctx context.Context, request OrderRequest) (*core.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*core.Order, error)
	GetOpenOrders(ctx context.Context) ([]core.Order, error)

	// Real-time updates
	Subscribe(handler UpdateHandler) error
	Unsubscribe() error
}
