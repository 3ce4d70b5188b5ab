package event

import (
	"sync"
	"testing"
	"time"

	"github.com/kashguard/go-heartbeat-infra/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(nodeID string) registry.NodeRecord {
	return registry.NodeRecord{NodeID: nodeID, Status: registry.StatusAlive}
}

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	var mu sync.Mutex
	var got []Kind
	done := make(chan struct{})

	bus.Subscribe("test", func(ev Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	now := time.Now()
	bus.Publish(New(KindNodeJoined, record("node-1"), now))
	bus.Publish(New(KindNodeSuspected, record("node-1"), now))
	bus.Publish(New(KindNodeDied, record("node-1"), now))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{KindNodeJoined, KindNodeSuspected, KindNodeDied}, got)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(2)

	block := make(chan struct{})
	bus.Subscribe("slow", func(ev Event) {
		<-block
	})

	published := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(New(KindNodeJoined, record("node-1"), time.Now()))
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	close(block)
	bus.Close()
}

func TestOverflowDropsOldest(t *testing.T) {
	bus := NewBus(2)

	var dropped int
	var droppedMu sync.Mutex
	bus.SetDropHook(func(subscriber string) {
		droppedMu.Lock()
		dropped++
		droppedMu.Unlock()
	})

	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var got []string

	bus.Subscribe("test", func(ev Event) {
		once.Do(func() { close(started) })
		<-block
		mu.Lock()
		got = append(got, ev.NodeID)
		mu.Unlock()
	})

	// First event occupies the handler, the next two fill the queue.
	bus.Publish(New(KindNodeJoined, record("a"), time.Now()))
	<-started
	bus.Publish(New(KindNodeJoined, record("b"), time.Now()))
	bus.Publish(New(KindNodeJoined, record("c"), time.Now()))
	// Queue full: "b" is evicted for "d".
	bus.Publish(New(KindNodeJoined, record("d"), time.Now()))

	close(block)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "c", "d"}, got)

	droppedMu.Lock()
	defer droppedMu.Unlock()
	assert.Equal(t, 1, dropped)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.Subscribe("test", func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(New(KindNodeJoined, record("node-1"), time.Now()))
	unsubscribe()

	// Unsubscribe drains the queue before returning.
	mu.Lock()
	require.Equal(t, 1, count)
	mu.Unlock()

	bus.Publish(New(KindNodeLeft, record("node-1"), time.Now()))

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewBus(4)
	bus.Subscribe("test", func(ev Event) {})
	bus.Close()
	bus.Close()
	bus.Publish(New(KindNodeJoined, record("node-1"), time.Now()))
}
