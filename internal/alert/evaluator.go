package alert

import (
	"sync"
	"time"

	"github.com/newthinker/cta/internal/strategy"
	"go.uber.org/zap"
)

// Evaluator is a strategy observer that forwards an event to next only when
// at least one rule fires for it. Time is taken from the event, so "for" and
// the cooldown follow the data clock in backtests and replays.
type Evaluator struct {
	rules    []Rule
	next     strategy.Observer
	logger   *zap.Logger
	cooldown time.Duration

	// Track pending alerts (waiting for "for" duration), per rule and strategy
	pending map[string]time.Time
	// Track last fired time for cooldown
	lastFired map[string]time.Time

	mu sync.Mutex
}

// NewEvaluator creates a new alert evaluator in front of next.
func NewEvaluator(rules []Rule, next strategy.Observer, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		rules:     rules,
		next:      next,
		logger:    logger,
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
	}
}

// SetCooldown sets the minimum gap between two firings of a rule for the same
// strategy.
func (e *Evaluator) SetCooldown(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = d
}

// OnStrategyEvent implements strategy.Observer
func (e *Evaluator) OnStrategyEvent(ev strategy.Event) {
	if e.fire(ev) {
		e.next.OnStrategyEvent(ev)
	}
}

func (e *Evaluator) fire(ev strategy.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	values := Values(ev)
	fired := false
	for i := range e.rules {
		rule := &e.rules[i]
		key := rule.Name + "/" + ev.Name

		if !rule.Evaluate(values) {
			delete(e.pending, key)
			continue
		}

		if rule.For > 0 {
			since, isPending := e.pending[key]
			if !isPending {
				e.pending[key] = ev.Time
				continue
			}
			if ev.Time.Sub(since) < rule.For {
				continue
			}
		}

		if last, hasFired := e.lastFired[key]; hasFired && ev.Time.Sub(last) < e.cooldown {
			continue
		}

		e.lastFired[key] = ev.Time
		delete(e.pending, key)
		fired = true
		e.logger.Info(rule.FormatMessage(ev.Name),
			zap.String("rule", rule.Name),
			zap.String("strategy", ev.Name),
			zap.Int64("pos", ev.Pos),
		)
	}
	return fired
}
