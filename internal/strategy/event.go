package strategy

import "time"

// Event is a snapshot of a strategy instance published on PutEvent
type Event struct {
	Name       string         `json:"name"`
	Class      string         `json:"class"`
	Symbol     string         `json:"symbol"`
	Inited     bool           `json:"inited"`
	Trading    bool           `json:"trading"`
	Pos        int64          `json:"pos"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
	Time       time.Time      `json:"time"`
}

// Observer receives strategy events. Implementations must not block.
type Observer interface {
	OnStrategyEvent(ev Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnStrategyEvent(ev Event) { f(ev) }
