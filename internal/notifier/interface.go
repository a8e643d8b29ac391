package notifier

import (
	"context"

	"github.com/newthinker/cta/internal/strategy"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier forwards strategy events to an outside consumer
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send delivers a single event
	Send(ctx context.Context, ev strategy.Event) error
}
