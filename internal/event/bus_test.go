package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_DeliversToEverySubscriber(t *testing.T) {
	bus := NewBus()

	first, unsubscribeFirst := bus.Subscribe()
	defer unsubscribeFirst()
	second, unsubscribeSecond := bus.Subscribe()
	defer unsubscribeSecond()

	bus.Publish(New(TypeUserLoggedIn, "user-1", map[string]string{"session_id": "s-1"}))

	for _, ch := range []<-chan Event{first, second} {
		select {
		case e := <-ch:
			assert.Equal(t, TypeUserLoggedIn, e.Type)
			assert.Equal(t, "user-1", e.ActorID)
			assert.NotEmpty(t, e.ID)
			_, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestInMemoryBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsubscribe := bus.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	bus.Publish(New(TypeDeviceRevoked, "user-1", nil))
}

func TestInMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			bus.Publish(New(TypeSessionRefreshed, "user-1", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}
