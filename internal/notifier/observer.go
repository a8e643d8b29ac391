package notifier

import (
	"context"
	"sync"

	"github.com/newthinker/cta/internal/strategy"
	"go.uber.org/zap"
)

// Observer queues strategy events and delivers them to a Registry from a
// single background goroutine.
// Events arriving while the queue is full are dropped and logged.
type Observer struct {
	registry *Registry
	logger   *zap.Logger
	queue    chan strategy.Event

	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped int
}

// NewObserver creates an observer with the given queue capacity
func NewObserver(registry *Registry, logger *zap.Logger, buffer int) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Observer{
		registry: registry,
		logger:   logger,
		queue:    make(chan strategy.Event, buffer),
	}
}

// Start launches the delivery goroutine. It exits when ctx is done or Close
// drains the queue.
func (o *Observer) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-o.queue:
				if !ok {
					return
				}
				o.deliver(ctx, ev)
			}
		}
	}()
}

// OnStrategyEvent implements strategy.Observer
func (o *Observer) OnStrategyEvent(ev strategy.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	select {
	case o.queue <- ev:
	default:
		o.dropped++
		o.logger.Warn("notifier queue full, dropping event",
			zap.String("strategy", ev.Name),
			zap.Int("dropped", o.dropped),
		)
	}
}

// Dropped returns the number of events discarded on a full queue
func (o *Observer) Dropped() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dropped
}

// Close stops accepting events and waits for queued ones to be delivered
func (o *Observer) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.queue)
		o.mu.Unlock()
	})
	o.wg.Wait()
}

func (o *Observer) deliver(ctx context.Context, ev strategy.Event) {
	for name, err := range o.registry.NotifyAll(ctx, ev) {
		o.logger.Warn("notifier failed",
			zap.String("notifier", name),
			zap.String("strategy", ev.Name),
			zap.Error(err),
		)
	}
}
