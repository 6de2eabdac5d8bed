package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/metrics"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/sender"
)

// Mode selects how the traversal hands events to the consumer.
type Mode string

const (
	// Direct calls the consumer on the traversal goroutine.
	Direct Mode = "direct"
	// Channel puts a bounded Go channel between producer and consumer.
	Channel Mode = "channel"
	// Ring puts a lock-free single producer single consumer ring between them.
	Ring Mode = "ring"
)

const DefaultCapacity = 8192

const depthSample = 256

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return Direct, nil
	case Direct, Channel, Ring:
		return m, nil
	}
	return Direct, fmt.Errorf("unknown mode %q", s)
}

type Config struct {
	Mode     Mode
	Capacity int
	Handler  []handler.Option
}

func (c Config) capacity() int {
	if c.Capacity <= 0 {
		return DefaultCapacity
	}
	return c.Capacity
}

// Run traverses src with v and delivers every event to dst. In the queued
// modes dst runs on its own goroutine; when it fails the queue is abandoned
// so the traversal stops at its next send, and dst's error is returned.
func Run[V any](ctx context.Context, cfg Config, src parser.EventSource, v handler.Visitor[V], dst sender.Sender[V]) error {
	mode := cfg.Mode
	if mode == "" {
		mode = Direct
	}
	start := time.Now()
	defer func() {
		metrics.TraverseDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	switch mode {
	case Channel:
		q := sender.NewChan[V](cfg.capacity())
		return decoupled(ctx, cfg, src, v, dst, queue[V]{
			tx: q, rx: q, closeSend: q.Close, abandon: q.Abandon, depth: q.Len,
		})
	case Ring:
		p, c := sender.NewRing[V](cfg.capacity())
		return decoupled(ctx, cfg, src, v, dst, queue[V]{
			tx: p, rx: c, closeSend: p.Close, abandon: c.Abandon, depth: p.Len,
		})
	case Direct:
		return handler.Traverse(src, v, sender.Counting(dst), cfg.Handler...)
	}
	return fmt.Errorf("unknown mode %q", mode)
}

type queue[V any] struct {
	tx        sender.Sender[V]
	rx        sender.Receiver[V]
	closeSend func()
	abandon   func()
	depth     func() int
}

func decoupled[V any](ctx context.Context, cfg Config, src parser.EventSource, v handler.Visitor[V], dst sender.Sender[V], q queue[V]) error {
	gauge := metrics.QueueDepth.WithLabelValues(string(cfg.Mode))
	defer gauge.Set(0)

	var g errgroup.Group
	var consumerErr error

	g.Go(func() error {
		defer q.closeSend()
		return handler.Traverse(src, v, q.tx, cfg.Handler...)
	})

	g.Go(func() error {
		n := 0
		out := sender.Counting(dst)
		consumerErr = sender.Drain(ctx, q.rx, sender.Func[V](func(ev sender.Event[V]) error {
			if n++; n%depthSample == 0 {
				gauge.Set(float64(q.depth()))
			}
			return out.Send(ev)
		}))
		if consumerErr != nil {
			q.abandon()
		}
		return consumerErr
	})

	err := g.Wait()
	if consumerErr != nil {
		return consumerErr
	}
	return err
}
