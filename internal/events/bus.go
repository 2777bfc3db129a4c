package events

import (
	"sync"
	"sync/atomic"
)

const defaultBufSize = 256

// Bus is a channel-based pub-sub bus for run events.
// Subscribers follow a set of topics or every topic.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event
	chans   []chan Event // every subscriber channel, closed once on Close
	closed  bool
	dropped atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving events published to topic.
// bufSize <= 0 selects the default buffer.
func (b *Bus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.SubscribeTopics(bufSize, topic)
}

// SubscribeTopics returns one channel receiving events from each of topics.
func (b *Bus) SubscribeTopics(bufSize int, topics ...string) <-chan Event {
	return b.subscribe(bufSize, func(ch chan Event) {
		for _, topic := range topics {
			b.subs[topic] = append(b.subs[topic], ch)
		}
	})
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *Bus) SubscribeAll(bufSize int) <-chan Event {
	return b.subscribe(bufSize, func(ch chan Event) {
		b.allSubs = append(b.allSubs, ch)
	})
}

func (b *Bus) subscribe(bufSize int, register func(chan Event)) <-chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	register(ch)
	b.chans = append(b.chans, ch)
	return ch
}

// Publish delivers event to the topic's subscribers and to every
// SubscribeAll channel. It never blocks: a full subscriber misses the event
// and the drop is counted.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		b.offer(ch, event)
	}
	for _, ch := range b.allSubs {
		b.offer(ch, event)
	}
}

func (b *Bus) offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, ch := range b.chans {
		close(ch)
	}
}
