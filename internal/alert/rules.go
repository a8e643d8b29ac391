// Package alert gates strategy events on threshold rules before they reach
// notifiers.
package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/cta/internal/strategy"
)

var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*(-?[\d.]+)$`)

// Rule defines an alert rule such as "pos != 0" or "fast_ma > 3700".
type Rule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

type condition struct {
	name      string
	op        string
	threshold float64
}

func (r *Rule) parse() (condition, error) {
	m := exprPattern.FindStringSubmatch(strings.TrimSpace(r.Expr))
	if len(m) != 4 {
		return condition{}, fmt.Errorf("rule %s: cannot parse %q", r.Name, r.Expr)
	}
	threshold, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return condition{name: m[1], op: m[2], threshold: threshold}, nil
}

// Validate checks that the rule has a name and a parseable expression.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	_, err := r.parse()
	return err
}

// Evaluate evaluates the rule expression against values. Unknown names and
// malformed expressions never match.
func (r *Rule) Evaluate(values map[string]float64) bool {
	c, err := r.parse()
	if err != nil {
		return false
	}

	value, exists := values[c.name]
	if !exists {
		return false
	}

	switch c.op {
	case ">":
		return value > c.threshold
	case "<":
		return value < c.threshold
	case ">=":
		return value >= c.threshold
	case "<=":
		return value <= c.threshold
	case "==":
		return value == c.threshold
	case "!=":
		return value != c.threshold
	default:
		return false
	}
}

// FormatMessage formats the alert message for one strategy.
func (r *Rule) FormatMessage(strategyName string) string {
	severity := r.Severity
	if severity == "" {
		severity = "info"
	}
	return fmt.Sprintf("[%s] %s on %s: %s", strings.ToUpper(severity), r.Name, strategyName, r.Message)
}

// Values flattens an event into the names rules can refer to: pos, trading,
// inited and every numeric variable.
func Values(ev strategy.Event) map[string]float64 {
	values := map[string]float64{
		"pos":     float64(ev.Pos),
		"trading": boolValue(ev.Trading),
		"inited":  boolValue(ev.Inited),
	}
	for name, v := range ev.Variables {
		switch n := v.(type) {
		case float64:
			values[name] = n
		case float32:
			values[name] = float64(n)
		case int:
			values[name] = float64(n)
		case int64:
			values[name] = float64(n)
		}
	}
	return values
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
