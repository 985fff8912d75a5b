package socket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBusPreservesOrder(t *testing.T) {
	eb := NewEventBus(4)

	var mu sync.Mutex
	var got []string
	record := func(e Event) {
		mu.Lock()
		got = append(got, string(e.Type)+":"+e.Key)
		mu.Unlock()
	}
	eb.Subscribe(EventConnOpened, record)
	eb.Subscribe(EventConnClosed, record)

	for _, k := range []string{"a", "b", "c"} {
		eb.Publish(Event{Type: EventConnOpened, Key: k})
		eb.Publish(Event{Type: EventConnClosed, Key: k})
	}
	eb.Close()

	assert.Equal(t, []string{
		"conn.opened:a", "conn.closed:a",
		"conn.opened:b", "conn.closed:b",
		"conn.opened:c", "conn.closed:c",
	}, got)
}

func TestEventBusAfterClose(t *testing.T) {
	eb := NewEventBus(0)
	called := false
	eb.Subscribe(EventConnError, func(Event) { called = true })
	eb.Close()
	eb.Close()

	eb.Publish(Event{Type: EventConnError, Key: "a"})
	assert.False(t, called)
	assert.Equal(t, int64(1), eb.DroppedEvents())
}

func TestEventBusRecoversPanics(t *testing.T) {
	eb := NewEventBus(0)
	delivered := 0
	eb.Subscribe(EventConnOpened, func(Event) { panic("boom") })
	eb.Subscribe(EventConnOpened, func(Event) { delivered++ })

	eb.Publish(Event{Type: EventConnOpened, Key: "a"})
	eb.Close()

	assert.Equal(t, 1, delivered)
	assert.Equal(t, int64(1), eb.DroppedEvents())
}

func TestEventBusPublishNeverBlocks(t *testing.T) {
	eb := NewEventBus(1)
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	eb.Subscribe(EventConnOpened, func(e Event) {
		<-release
		mu.Lock()
		got = append(got, e.Key)
		mu.Unlock()
	})

	published := make(chan struct{})
	go func() {
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			eb.Publish(Event{Type: EventConnOpened, Key: k})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	close(release)
	eb.Close()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Zero(t, eb.Pending())
}
