package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// Market data
	ticksProcessed *prometheus.CounterVec
	barsProcessed  *prometheus.CounterVec

	// Orders and fills
	ordersSent     *prometheus.CounterVec
	ordersRejected *prometheus.CounterVec
	tradesTotal    *prometheus.CounterVec

	// Strategy state
	strategyPos     *prometheus.GaugeVec
	strategyVar     *prometheus.GaugeVec
	strategyTrading *prometheus.GaugeVec

	// Backtests
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram

	// HTTP
	scrapesTotal *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		ticksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_ticks_processed_total",
				Help: "Total number of ticks dispatched to strategies",
			},
			[]string{"symbol"},
		),
		barsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_bars_processed_total",
				Help: "Total number of bars dispatched to strategies",
			},
			[]string{"symbol"},
		),
		ordersSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_orders_sent_total",
				Help: "Total number of orders accepted by the broker",
			},
			[]string{"strategy", "direction", "offset"},
		),
		ordersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_orders_rejected_total",
				Help: "Total number of orders refused by the engine or broker",
			},
			[]string{"strategy", "reason"},
		),
		tradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_trades_total",
				Help: "Total number of fills delivered to strategies",
			},
			[]string{"strategy", "direction"},
		),
		strategyPos: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cta_strategy_position",
				Help: "Signed net position of a strategy",
			},
			[]string{"strategy", "symbol"},
		),
		strategyVar: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cta_strategy_variable",
				Help: "Numeric variables reported by a strategy",
			},
			[]string{"strategy", "variable"},
		),
		strategyTrading: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cta_strategy_trading",
				Help: "1 while a strategy is allowed to send orders",
			},
			[]string{"strategy"},
		),
		backtestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_backtests_total",
				Help: "Total number of backtests",
			},
			[]string{"status"},
		),
		backtestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cta_backtest_duration_seconds",
				Help:    "Backtest duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
		scrapesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cta_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"path", "status"},
		),
	}

	reg.MustRegister(r.ticksProcessed)
	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.ordersSent)
	reg.MustRegister(r.ordersRejected)
	reg.MustRegister(r.tradesTotal)
	reg.MustRegister(r.strategyPos)
	reg.MustRegister(r.strategyVar)
	reg.MustRegister(r.strategyTrading)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.scrapesTotal)

	return r
}

// RecordTick records a dispatched tick.
func (r *Registry) RecordTick(symbol string) {
	r.ticksProcessed.WithLabelValues(symbol).Inc()
}

// RecordBar records a dispatched bar.
func (r *Registry) RecordBar(symbol string) {
	r.barsProcessed.WithLabelValues(symbol).Inc()
}

// RecordOrder records an accepted order.
func (r *Registry) RecordOrder(strategy, direction, offset string) {
	r.ordersSent.WithLabelValues(strategy, direction, offset).Inc()
}

// RecordRejected records a refused order.
func (r *Registry) RecordRejected(strategy, reason string) {
	r.ordersRejected.WithLabelValues(strategy, reason).Inc()
}

// RecordTrade records a fill.
func (r *Registry) RecordTrade(strategy, direction string) {
	r.tradesTotal.WithLabelValues(strategy, direction).Inc()
}

// SetPosition sets a strategy's net position.
func (r *Registry) SetPosition(strategy, symbol string, pos int64) {
	r.strategyPos.WithLabelValues(strategy, symbol).Set(float64(pos))
}

// SetVariable sets a numeric strategy variable.
func (r *Registry) SetVariable(strategy, name string, value float64) {
	r.strategyVar.WithLabelValues(strategy, name).Set(value)
}

// SetTrading sets whether a strategy is trading.
func (r *Registry) SetTrading(strategy string, trading bool) {
	v := 0.0
	if trading {
		v = 1
	}
	r.strategyTrading.WithLabelValues(strategy).Set(v)
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
