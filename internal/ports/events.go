package ports

import "github.com/waffletower/InvokeAI/internal/domain"

// EventSink receives session events.
type EventSink interface {
	Emit(ev domain.Event)
}

// EventSource fans events out to subscribers. The returned cancel func
// unsubscribes and closes the channel.
type EventSource interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}
