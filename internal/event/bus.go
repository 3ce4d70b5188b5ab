package event

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the per-subscriber queue depth used when the
// configured size is not positive.
const DefaultBufferSize = 128

// Bus fans lifecycle events out to registered subscribers. Each subscriber
// owns a bounded queue drained by its own goroutine; when the queue is full
// the oldest event is dropped so that publishing never blocks the ingress or
// health-check loops. Publish order is preserved per subscriber, which keeps
// per-node event order intact.
type Bus struct {
	mu         sync.Mutex
	subs       map[string]*subscription
	bufferSize int
	onDrop     func(subscriber string)
	closed     bool
}

type subscription struct {
	name    string
	ch      chan Event
	done    chan struct{}
	handler Handler
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs:       make(map[string]*subscription),
		bufferSize: bufferSize,
	}
}

// SetDropHook registers a callback invoked once per dropped event, keyed by
// subscriber name. Used for instrumentation.
func (b *Bus) SetDropHook(hook func(subscriber string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = hook
}

// Subscribe registers a named handler. A second Subscribe with the same name
// replaces the previous subscription. The returned function cancels the
// subscription and waits for its queue to drain.
func (b *Bus) Subscribe(name string, handler Handler) func() {
	sub := &subscription{
		name:    name,
		ch:      make(chan Event, b.bufferSize),
		done:    make(chan struct{}),
		handler: handler,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.done)
		return func() {}
	}
	if prev, ok := b.subs[name]; ok {
		close(prev.ch)
	}
	b.subs[name] = sub
	b.mu.Unlock()

	go sub.drain()

	return func() { b.unsubscribe(name, sub) }
}

// Publish enqueues the event for every subscriber. Never blocks: a full
// subscriber queue drops its oldest event and logs a warning.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.enqueue(ev) {
			continue
		}
		log.Warn().
			Str("subscriber", sub.name).
			Str("kind", string(ev.Kind)).
			Str("node_id", ev.NodeID).
			Msg("Event queue full, dropped oldest event")
		if b.onDrop != nil {
			b.onDrop(sub.name)
		}
	}
}

// Close stops all subscriptions and waits for their queues to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
		<-sub.done
	}
}

func (b *Bus) unsubscribe(name string, sub *subscription) {
	b.mu.Lock()
	current, ok := b.subs[name]
	if !ok || current != sub {
		b.mu.Unlock()
		return
	}
	delete(b.subs, name)
	b.mu.Unlock()

	close(sub.ch)
	<-sub.done
}

// enqueue reports false when it had to evict the oldest queued event to make
// room for the new one.
func (s *subscription) enqueue(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
	}

	// Queue full: evict one, then queue. The drain goroutine may race the
	// eviction, in which case the plain send succeeds.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
	return false
}

func (s *subscription) drain() {
	defer close(s.done)
	for ev := range s.ch {
		s.handler(ev)
	}
}
