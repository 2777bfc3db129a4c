package command

import (
	"context"
	"slices"
	"sync"
)

// Locks provides keyed mutual exclusion between command targets.
// Targets naming the same resource never run at the same time, while
// targets with disjoint resources proceed concurrently.
type Locks struct {
	mu    sync.Mutex               // Guards the slots map itself
	slots map[string]chan struct{} // Per-resource semaphores of capacity one
}

// NewLocks creates an empty lock set.
func NewLocks() *Locks {
	return &Locks{slots: make(map[string]chan struct{})}
}

func (l *Locks) slot(resource string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[resource]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[resource] = s
	}
	return s
}

// Acquire blocks until every resource is held or ctx is done. Resources are
// taken in sorted order, so callers with overlapping sets cannot deadlock.
// The returned release func is safe to call once.
func (l *Locks) Acquire(ctx context.Context, resources []string) (release func(), err error) {
	sorted := slices.Clone(resources)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]chan struct{}, 0, len(sorted))
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, resource := range sorted {
		s := l.slot(resource)
		select {
		case s <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
