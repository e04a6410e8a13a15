package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeAndPublishDeliversEvent(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{Type: EventWorkerEnabled, Message: "worker-1 enabled"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventWorkerEnabled, ev.Type)
		assert.Equal(t, "worker-1 enabled", ev.Message)
		assert.False(t, ev.Timestamp.IsZero(), "Publish must stamp a zero-value timestamp")
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published event")
	}
}

func TestPublishPreservesExplicitTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	stamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Publish(&Event{Type: EventJobStarted, Timestamp: stamp})

	ev := <-sub
	assert.True(t, stamp.Equal(ev.Timestamp))
}

func TestUnsubscribeClosesChannelAndDropsCount(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	assert.False(t, ok, "Unsubscribe must close the subscriber channel")
}

func TestBroadcastSkipsFullSubscriberBuffer(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	for i := 0; i < 60; i++ {
		b.Publish(&Event{Type: EventJobFinished, Message: "tick"})
	}
	time.Sleep(50 * time.Millisecond)

	// The subscriber's buffer (50) must have been filled without the
	// broker blocking or panicking on a full channel.
	assert.Equal(t, 50, len(sub))
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	b.Publish(&Event{Type: EventTableAdded})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatal("a subscriber did not receive the broadcast event")
		}
	}
}

func TestStopUnblocksPublish(t *testing.T) {
	b := NewBroker()
	// Never started: run() is not draining eventCh, so once the buffer
	// (100) is full, Publish must fall back to the stopCh branch rather
	// than blocking forever.
	for i := 0; i < 100; i++ {
		b.Publish(&Event{Type: EventWorkerDisabled})
	}

	done := make(chan struct{})
	go func() {
		b.Publish(&Event{Type: EventWorkerDisabled})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not unblock after Stop")
	}
}
