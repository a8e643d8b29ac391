package engine

import (
	"sync/atomic"
	"time"
)

// DataClock is a settable time source driven by the data being replayed.
// Set and Now are safe to call from different goroutines, so API readers can
// snapshot strategies while a feed loop advances the clock.
type DataClock struct {
	t atomic.Pointer[time.Time]
}

// NewDataClock creates a clock reading start
func NewDataClock(start time.Time) *DataClock {
	c := &DataClock{}
	c.Set(start)
	return c
}

// Set moves the clock to t
func (c *DataClock) Set(t time.Time) {
	c.t.Store(&t)
}

// Now returns the last time passed to Set
func (c *DataClock) Now() time.Time {
	return *c.t.Load()
}
