package sender

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Chan is a bounded FIFO between producers and one consumer. Send blocks
// while the buffer is full, so producer memory stays bounded by the capacity.
type Chan[V any] struct {
	ch          chan Event[V]
	abandoned   chan struct{}
	closed      atomic.Bool
	closeOnce   sync.Once
	abandonOnce sync.Once
}

func NewChan[V any](capacity int) *Chan[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Chan[V]{
		ch:        make(chan Event[V], capacity),
		abandoned: make(chan struct{}),
	}
}

func (c *Chan[V]) Send(ev Event[V]) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case <-c.abandoned:
		return ErrAbandoned
	default:
	}
	select {
	case c.ch <- ev:
		return nil
	case <-c.abandoned:
		return ErrAbandoned
	}
}

// Close is called by the producer when it is done sending. The consumer
// still receives everything buffered, then io.EOF.
func (c *Chan[V]) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.ch)
	})
}

func (c *Chan[V]) Recv(ctx context.Context) (Event[V], error) {
	select {
	case ev, ok := <-c.ch:
		if !ok {
			return Event[V]{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		var zero Event[V]
		return zero, ctx.Err()
	}
}

// Abandon is called by the consumer when it stops receiving. Blocked and
// future sends fail with ErrAbandoned.
func (c *Chan[V]) Abandon() {
	c.abandonOnce.Do(func() {
		close(c.abandoned)
	})
}

func (c *Chan[V]) Len() int {
	return len(c.ch)
}

func (c *Chan[V]) Cap() int {
	return cap(c.ch)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
