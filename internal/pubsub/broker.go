package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultChannelBufferSize = 64

// Broker fans events out to any number of subscribers. Subscriptions are
// tied to a context and removed when it is done.
type Broker[T any] struct {
	subs     map[chan Event[T]]context.CancelFunc
	mu       sync.RWMutex
	isClosed bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]context.CancelFunc),
	}
}

func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isClosed {
		return
	}
	b.isClosed = true

	for ch, cancel := range b.subs {
		cancel()
		close(ch)
		delete(b.subs, ch)
	}
}

func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		closedCh := make(chan Event[T])
		close(closedCh)
		return closedCh
	}

	subCtx, subCancel := context.WithCancel(ctx)
	subscriberChannel := make(chan Event[T], defaultChannelBufferSize)
	b.subs[subscriberChannel] = subCancel

	go func() {
		<-subCtx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[subscriberChannel]; ok {
			close(subscriberChannel)
			delete(b.subs, subscriberChannel)
		}
	}()

	return subscriberChannel
}

func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed {
		return
	}

	event := Event[T]{Type: eventType, Payload: payload}

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer is full. Hand off to a goroutine with a
			// deadline so a stalled consumer never blocks the publisher.
			go func(sChan chan Event[T], ev Event[T]) {
				b.mu.RLock()
				closed := b.isClosed
				b.mu.RUnlock()
				if closed {
					return
				}
				select {
				case sChan <- ev:
				case <-time.After(2 * time.Second):
					slog.Warn("pubsub: dropped event for slow subscriber", "type", ev.Type)
				}
			}(ch, event)
		}
	}
}

func (b *Broker[T]) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
