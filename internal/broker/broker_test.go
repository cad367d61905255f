package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok, "subscription closed unexpectedly")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestRedisBroker_PublishReachesSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBrokerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Subscribe(ctx)
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	require.NoError(t, b.Publish(ctx, Event{
		Type:      EventBorrowed,
		BookID:    3,
		BorrowID:  7,
		Available: false,
		At:        at,
	}))

	got := receive(t, events)
	assert.Equal(t, EventBorrowed, got.Type)
	assert.Equal(t, uint(3), got.BookID)
	assert.Equal(t, uint(7), got.BorrowID)
	assert.False(t, got.Available)
	assert.True(t, at.Equal(got.At))
}

func TestRedisBroker_SubscriptionClosesWithContext(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBrokerWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestNewRedisBroker_InvalidURL(t *testing.T) {
	_, err := NewRedisBroker("not a url")
	assert.Error(t, err)
}

func TestMemoryBroker_FansOutToAllSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(ctx)
	require.NoError(t, err)
	second, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, Event{Type: EventReturned, BookID: 1, Available: true}))

	for _, events := range []<-chan Event{first, second} {
		got := receive(t, events)
		assert.Equal(t, EventReturned, got.Type)
		assert.True(t, got.Available)
	}
}

func TestMemoryBroker_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = b.Publish(ctx, Event{Type: EventBookAdded, BookID: uint(i + 1)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, events, subscriberBuffer)
}

func TestMemoryBroker_UnsubscribeOnCancelAndClose(t *testing.T) {
	b := NewMemoryBroker()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())

	late, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	_, ok := <-late
	assert.False(t, ok)
}
