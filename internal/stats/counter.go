package stats

import "sync/atomic"

// Counter is an atomic monotonic counter shared between load workers.
type Counter struct {
	value uint64
}

// Inc increments the counter by 1 and returns the new value.
func (c *Counter) Inc() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Add adds delta to the counter and returns the new value.
func (c *Counter) Add(delta uint64) uint64 {
	return atomic.AddUint64(&c.value, delta)
}

// Load returns the current value.
func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}
