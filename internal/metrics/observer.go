package metrics

import "github.com/newthinker/cta/internal/strategy"

// Observer returns a strategy observer that mirrors each event into gauges.
// Numeric variables become cta_strategy_variable series; others are skipped.
func (r *Registry) Observer() strategy.Observer {
	return strategy.ObserverFunc(func(ev strategy.Event) {
		r.SetPosition(ev.Name, ev.Symbol, ev.Pos)
		r.SetTrading(ev.Name, ev.Trading)
		for name, v := range ev.Variables {
			if f, ok := toFloat(v); ok {
				r.SetVariable(ev.Name, name, f)
			}
		}
	})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
