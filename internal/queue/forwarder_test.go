package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregiver-hub/internal/event"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeBroker struct {
	mu            sync.Mutex
	dialFailures  int
	publishErrors int
	dials         int
	releases      int
	messages      []published
}

func (b *fakeBroker) dial(context.Context) (Publisher, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.dials <= b.dialFailures {
		return nil, nil, errors.New("connection refused")
	}
	return b, func() {
		b.mu.Lock()
		b.releases++
		b.mu.Unlock()
	}, nil
}

func (b *fakeBroker) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErrors > 0 {
		b.publishErrors--
		return errors.New("channel closed")
	}
	b.messages = append(b.messages, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (b *fakeBroker) snapshot() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func TestMessage(t *testing.T) {
	e := event.New(event.TypeDeviceRevoked, "caregiver-1", map[string]string{"device_id": "d-1"})

	key, msg, err := Message(e)
	require.NoError(t, err)
	assert.Equal(t, "device.revoked", key)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, e.ID, msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "device.revoked", decoded["type"])
	assert.Equal(t, "caregiver-1", decoded["actor_id"])
}

func TestForwarder_RetriesUntilDelivered(t *testing.T) {
	broker := &fakeBroker{dialFailures: 2, publishErrors: 1}
	f := NewForwarder("caregiver.auth", broker.dial)
	f.minBackoff = time.Millisecond
	f.maxBackoff = 4 * time.Millisecond

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, events)
		close(done)
	}()

	bus.Publish(event.New(event.TypeUserLoggedIn, "u-1", nil))
	bus.Publish(event.New(event.TypePatientPaired, "p-1", nil))

	require.Eventually(t, func() bool { return len(broker.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	msgs := broker.snapshot()
	assert.Equal(t, "user.logged_in", msgs[0].key)
	assert.Equal(t, "patient.paired", msgs[1].key)
	assert.Equal(t, "caregiver.auth", msgs[0].exchange)

	cancel()
	<-done

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Equal(t, 4, broker.dials, "two failed dials, one dropped channel, one good connection")
	assert.Equal(t, 2, broker.releases)
}

func TestForwarder_BacksOffWhenPublishKeepsFailing(t *testing.T) {
	broker := &fakeBroker{publishErrors: 4}
	f := NewForwarder("caregiver.auth", broker.dial)
	f.minBackoff = time.Millisecond
	f.maxBackoff = 4 * time.Millisecond

	var (
		mu     sync.Mutex
		waited []time.Duration
	)
	f.wait = func(_ context.Context, d time.Duration) bool {
		mu.Lock()
		waited = append(waited, d)
		mu.Unlock()
		return true
	}

	events := make(chan event.Event, 2)
	events <- event.New(event.TypeDeviceRevoked, "c-1", nil)
	events <- event.New(event.TypeDeviceUpdated, "c-1", nil)
	close(events)

	f.Run(context.Background(), events)

	require.Len(t, broker.snapshot(), 2)
	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}, waited, "every failed publish waits before redialing")

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Equal(t, 5, broker.dials)
	assert.Equal(t, 5, broker.releases)
}

func TestForwarder_StopsWhenChannelCloses(t *testing.T) {
	broker := &fakeBroker{}
	f := NewForwarder("x", broker.dial)

	events := make(chan event.Event)
	close(events)

	done := make(chan struct{})
	go func() {
		f.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
	assert.Zero(t, broker.dials)
}
