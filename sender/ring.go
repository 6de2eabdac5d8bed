package sender

import (
	"context"
	"io"
	"math/bits"
	"sync/atomic"

	"github.com/siegeai/jch/metrics"
)

type ring[V any] struct {
	buf  []Event[V]
	mask uint64

	head atomic.Uint64 // next slot to pop, owned by the consumer
	_    [56]byte
	tail atomic.Uint64 // next slot to push, owned by the producer
	_    [56]byte

	producerGone atomic.Bool
	consumerGone atomic.Bool

	// each side parks on its own channel; one pending wake is enough since
	// the woken side re-checks the indices before parking again
	wakeProducer chan struct{}
	wakeConsumer chan struct{}
}

// RingProducer is the only goroutine allowed to push.
type RingProducer[V any] struct {
	r *ring[V]
}

// RingConsumer is the only goroutine allowed to pop.
type RingConsumer[V any] struct {
	r *ring[V]
}

// NewRing builds a single-producer single-consumer ring buffer. Capacity is
// rounded up to a power of two.
func NewRing[V any](capacity int) (*RingProducer[V], *RingConsumer[V]) {
	if capacity < 1 {
		capacity = 1
	}
	size := uint64(1) << bits.Len64(uint64(capacity-1))
	r := &ring[V]{
		buf:          make([]Event[V], size),
		mask:         size - 1,
		wakeProducer: make(chan struct{}, 1),
		wakeConsumer: make(chan struct{}, 1),
	}
	return &RingProducer[V]{r: r}, &RingConsumer[V]{r: r}
}

func unpark(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (p *RingProducer[V]) Cap() int {
	return len(p.r.buf)
}

func (p *RingProducer[V]) Len() int {
	return int(p.r.tail.Load() - p.r.head.Load())
}

// TryPush never blocks; it returns ErrFull when there is no free slot.
func (p *RingProducer[V]) TryPush(ev Event[V]) error {
	r := p.r
	if r.consumerGone.Load() {
		return ErrAbandoned
	}
	if r.producerGone.Load() {
		return ErrClosed
	}
	t := r.tail.Load()
	if t-r.head.Load() == uint64(len(r.buf)) {
		return ErrFull
	}
	r.buf[t&r.mask] = ev
	r.tail.Store(t + 1)
	unpark(r.wakeConsumer)
	return nil
}

// Push parks until a slot frees up or the consumer goes away.
func (p *RingProducer[V]) Push(ev Event[V]) error {
	for {
		err := p.TryPush(ev)
		if err != ErrFull {
			return err
		}
		metrics.Parks.WithLabelValues("producer").Inc()
		<-p.r.wakeProducer
	}
}

func (p *RingProducer[V]) Send(ev Event[V]) error {
	return p.Push(ev)
}

// Close marks the producer done. The consumer drains what is left and then
// sees the producer as gone.
func (p *RingProducer[V]) Close() {
	p.r.producerGone.Store(true)
	unpark(p.r.wakeConsumer)
}

// TryPop never blocks; it returns ErrEmpty when nothing is buffered and
// ErrAbandoned once the producer closed and the buffer is drained.
func (c *RingConsumer[V]) TryPop() (Event[V], error) {
	r := c.r
	h := r.head.Load()
	if h == r.tail.Load() {
		// tail is re-read after the flag so a final push is not lost
		if r.producerGone.Load() && h == r.tail.Load() {
			return Event[V]{}, ErrAbandoned
		}
		return Event[V]{}, ErrEmpty
	}
	slot := &r.buf[h&r.mask]
	ev := *slot
	*slot = Event[V]{}
	r.head.Store(h + 1)
	unpark(r.wakeProducer)
	return ev, nil
}

// Pop parks until an event arrives. It returns io.EOF once the producer is
// done and the buffer is empty.
func (c *RingConsumer[V]) Pop() (Event[V], error) {
	return c.Recv(context.Background())
}

// Recv is Pop with cancellation; a finished producer shows up as io.EOF.
func (c *RingConsumer[V]) Recv(ctx context.Context) (Event[V], error) {
	for {
		ev, err := c.TryPop()
		switch err {
		case nil:
			return ev, nil
		case ErrAbandoned:
			return ev, io.EOF
		}
		metrics.Parks.WithLabelValues("consumer").Inc()
		select {
		case <-c.r.wakeConsumer:
		case <-ctx.Done():
			return Event[V]{}, ctx.Err()
		}
	}
}

// Close tells the producer nobody is listening; a parked Push returns
// ErrAbandoned.
func (c *RingConsumer[V]) Close() {
	c.r.consumerGone.Store(true)
	unpark(c.r.wakeProducer)
}

func (c *RingConsumer[V]) Abandon() {
	c.Close()
}
