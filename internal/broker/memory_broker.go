package broker

import (
	"context"
	"sync"

	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 64

// MemoryBroker fans events out within a single process. It is used when no
// Redis is configured.
type MemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (m *MemoryBroker) Publish(_ context.Context, event Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			logger.Log.Warn("Subscriber too slow, dropping circulation event",
				zap.String("type", string(event.Type)),
				zap.Uint("book_id", event.BookID),
			)
		}
	}
	return nil
}

func (m *MemoryBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, nil
	}
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.unsubscribe(ch)
	}()

	return ch, nil
}

func (m *MemoryBroker) unsubscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[ch]; ok {
		delete(m.subscribers, ch)
		close(ch)
	}
}

func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = make(map[chan Event]struct{})
	m.closed = true
	return nil
}
