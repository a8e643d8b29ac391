package indicator

import "github.com/newthinker/cta/internal/core"

// Window is a fixed-capacity ring of the most recent bars.
// Pushing past capacity overwrites the oldest bar.
type Window struct {
	bars  []core.Bar
	head  int // index of the next write
	count int
}

// NewWindow creates a window holding at most capacity bars
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{bars: make([]core.Bar, capacity)}
}

// Push appends a bar, evicting the oldest when full
func (w *Window) Push(bar core.Bar) {
	w.bars[w.head] = bar
	w.head = (w.head + 1) % len(w.bars)
	if w.count < len(w.bars) {
		w.count++
	}
}

// Len returns the number of bars held
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity
func (w *Window) Cap() int { return len(w.bars) }

// Reset drops all bars
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}

// Last returns the closing prices of the newest n bars, oldest first.
// It returns nil when fewer than n bars are held.
func (w *Window) Last(n int) []float64 {
	if n <= 0 || n > w.count {
		return nil
	}
	out := make([]float64, n)
	start := w.head - n
	if start < 0 {
		start += len(w.bars)
	}
	for i := 0; i < n; i++ {
		out[i] = w.bars[(start+i)%len(w.bars)].Close
	}
	return out
}

// Closes returns every held closing price, oldest first
func (w *Window) Closes() []float64 {
	return w.Last(w.count)
}

// Mean returns the simple average of the newest n closes.
// ok is false until n bars are available.
func (w *Window) Mean(n int) (mean float64, ok bool) {
	closes := w.Last(n)
	if closes == nil {
		return 0, false
	}
	sma := SMA(closes, n)
	return sma[len(sma)-1], true
}
