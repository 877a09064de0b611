package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/regnode/cfg"
	"github.com/maxpert/regnode/encoding"
	"github.com/maxpert/regnode/environment"
	"github.com/maxpert/regnode/notify/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = environment.Identity{Datacenter: "default", Environment: "test"}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventServerStarted, "node-1", testIdentity)
	b := NewEvent(EventServerStarted, "node-1", testIdentity)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, EventServerStarted, a.Type)
	assert.Equal(t, "node-1", a.InstanceID)
	assert.Equal(t, testIdentity, a.Identity)
	assert.False(t, a.Time.IsZero())
}

func TestHub_SubscribeAll(t *testing.T) {
	hub := NewHub(0)

	events, cancel, err := hub.Subscribe()
	require.NoError(t, err)
	defer cancel()

	hub.Publish(NewEvent(EventServerStopped, "node-1", testIdentity))

	ev := receive(t, events)
	assert.Equal(t, EventServerStopped, ev.Type)
}

func TestHub_GlobFilter(t *testing.T) {
	hub := NewHub(0)

	events, cancel, err := hub.Subscribe("server.*")
	require.NoError(t, err)
	defer cancel()

	hub.Publish(NewEvent(EventRegistryAvailable, "n", testIdentity))
	hub.Publish(NewEvent(EventServerFailed, "n", testIdentity))

	ev := receive(t, events)
	assert.Equal(t, EventServerFailed, ev.Type)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_InvalidPattern(t *testing.T) {
	hub := NewHub(0)
	_, _, err := hub.Subscribe("server.[")
	assert.Error(t, err)
}

func TestHub_AvailableBeforeStarted(t *testing.T) {
	hub := NewHub(0)

	var channels []<-chan Event
	for i := 0; i < 5; i++ {
		ch, cancel, err := hub.Subscribe()
		require.NoError(t, err)
		defer cancel()
		channels = append(channels, ch)
	}

	hub.Publish(NewEvent(EventRegistryAvailable, "n", testIdentity))
	hub.Publish(NewEvent(EventServerStarted, "n", testIdentity))

	for _, ch := range channels {
		assert.Equal(t, EventRegistryAvailable, receive(t, ch).Type)
		assert.Equal(t, EventServerStarted, receive(t, ch).Type)
	}
}

func TestHub_FullBufferDrops(t *testing.T) {
	hub := NewHub(2)

	events, cancel, err := hub.Subscribe()
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(NewEvent(EventServerStarted, "n", testIdentity))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, events, 2)
}

func TestHub_CancelIdempotent(t *testing.T) {
	hub := NewHub(0)

	events, cancel, err := hub.Subscribe()
	require.NoError(t, err)

	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)

	// Publishing with no subscribers is fine
	hub.Publish(NewEvent(EventServerStopped, "n", testIdentity))
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	hub := NewHub(64)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancel, err := hub.Subscribe("server.*")
			if err == nil {
				cancel()
			}
		}()
		go func() {
			defer wg.Done()
			hub.Publish(NewEvent(EventServerStarted, "n", testIdentity))
		}()
	}
	wg.Wait()
}

func TestForwarder_PublishesEncodedEvents(t *testing.T) {
	hub := NewHub(0)
	mock := &sink.MockSink{}

	f, err := NewForwarder(hub, cfg.SinkConfiguration{Name: "audit", Events: []string{"server.*"}}, mock)
	require.NoError(t, err)
	f.Start()

	hub.Publish(NewEvent(EventRegistryAvailable, "node-1", testIdentity))
	started := NewEvent(EventServerStarted, "node-1", testIdentity)
	started.InstancesRecovered = 3
	hub.Publish(started)

	require.Eventually(t, func() bool { return len(mock.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.Stop(context.Background()))
	assert.True(t, mock.Closed())

	msg := mock.Messages()[0]
	assert.Equal(t, defaultTopic, msg.Topic)
	assert.Equal(t, "node-1", msg.Key)

	var decoded Event
	require.NoError(t, encoding.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, started.ID, decoded.ID)
	assert.Equal(t, EventServerStarted, decoded.Type)
	assert.Equal(t, 3, decoded.InstancesRecovered)
	assert.Equal(t, testIdentity, decoded.Identity)
}

func TestForwarder_SinkErrorsDoNotStop(t *testing.T) {
	hub := NewHub(0)
	mock := &sink.MockSink{PublishErr: errors.New("broker down")}

	f, err := NewForwarder(hub, cfg.SinkConfiguration{Name: "flaky", Topic: "custom"}, mock)
	require.NoError(t, err)
	f.Start()

	hub.Publish(NewEvent(EventServerStarted, "n", testIdentity))
	hub.Publish(NewEvent(EventServerStopped, "n", testIdentity))

	require.NoError(t, f.Stop(context.Background()))
	assert.Empty(t, mock.Messages())
	assert.True(t, mock.Closed())
}

func TestNewForwarder_InvalidPattern(t *testing.T) {
	_, err := NewForwarder(NewHub(0), cfg.SinkConfiguration{Name: "bad", Events: []string{"["}}, &sink.MockSink{})
	assert.Error(t, err)
}
