// Package events fans session events out to in-process subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/ports"
)

// Bus delivers every emitted event to every subscriber. A subscriber whose
// buffer is full misses the event; Emit never blocks.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	nextID int
	now    func() time.Time
	log    *slog.Logger
}

var (
	_ ports.EventSink   = (*Bus)(nil)
	_ ports.EventSource = (*Bus)(nil)
)

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{subs: map[int]chan domain.Event{}, now: time.Now, log: log}
}

func (b *Bus) Emit(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = b.now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropping event for slow subscriber",
				"subscriber", id,
				"type", string(ev.Type),
				"session", ev.GraphExecutionStateID,
			)
		}
	}
}

func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
