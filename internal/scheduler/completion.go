package scheduler

import (
	"sync"
	"time"
)

// completion is a single target's in-flight or finished execution.
type completion struct {
	once     sync.Once
	done     chan struct{}
	duration *time.Duration
	err      error
}

// completions guarantees at-most-once execution per target name for a run.
// LoadOrStore picks exactly one entry per name; the entry's Once picks exactly
// one executor and blocks every other caller until it has finished.
type completions struct {
	entries sync.Map // name -> *completion
}

// do runs fn for name unless another caller already did, and returns the
// shared result.
func (c *completions) do(name string, fn func() (*time.Duration, error)) (*time.Duration, error) {
	v, _ := c.entries.LoadOrStore(name, &completion{done: make(chan struct{})})
	entry := v.(*completion)
	entry.once.Do(func() {
		defer close(entry.done)
		entry.duration, entry.err = fn()
	})
	return entry.duration, entry.err
}

// finished returns the results of every execution that has completed.
func (c *completions) finished() map[string]Result {
	out := make(map[string]Result)
	c.entries.Range(func(key, value any) bool {
		entry := value.(*completion)
		select {
		case <-entry.done:
			name := key.(string)
			out[name] = resultFor(name, entry.duration, entry.err)
		default:
		}
		return true
	})
	return out
}
