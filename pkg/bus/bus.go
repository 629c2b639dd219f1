// Package bus carries turn lifecycle events from the game master engine to
// whoever is rendering progress.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	KindPhase     Kind = "phase"
	KindCommitted Kind = "committed"
	KindCancelled Kind = "cancelled"
	KindFailed    Kind = "failed"
)

type Event struct {
	TurnID string
	Kind   Kind
	Phase  string
	Error  string
	At     time.Time
}

// Terminal reports whether no further events follow for the turn.
func (ev Event) Terminal() bool { return ev.Kind != KindPhase }

type EventBus struct {
	events  chan Event
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const (
	defaultBuffer  = 64
	publishTimeout = 100 * time.Millisecond
)

func New(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &EventBus{events: make(chan Event, buffer)}
}

// Publish queues ev, waiting briefly when the buffer is full before dropping it.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	select {
	case b.events <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- ev:
		case <-timer.C:
			b.dropped.Add(1)
		}
	}
}

func (b *EventBus) Consume(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-b.events:
		if !ok {
			return Event{}, false
		}
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

// Drain discards whatever is buffered and returns how many events it dropped.
func (b *EventBus) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-b.events:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}

func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}
