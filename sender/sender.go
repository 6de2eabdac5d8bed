package sender

import (
	"context"
	"errors"

	"github.com/siegeai/jch/metrics"
)

var (
	ErrFull      = errors.New("sender: buffer full")
	ErrEmpty     = errors.New("sender: buffer empty")
	ErrAbandoned = errors.New("sender: peer abandoned")
	ErrClosed    = errors.New("sender: closed")
)

// Sender delivers events to a consumer. A non-nil error is terminal for the
// producer except ErrFull, which only the non-blocking ring push returns.
type Sender[V any] interface {
	Send(ev Event[V]) error
}

// Receiver is the consuming side of a queued Sender. Recv returns io.EOF
// once the producer closed and everything it sent was received.
type Receiver[V any] interface {
	Recv(ctx context.Context) (Event[V], error)
}

type Func[V any] func(ev Event[V]) error

func (f Func[V]) Send(ev Event[V]) error {
	return f(ev)
}

// Retryable reports whether a failed send may succeed later.
func Retryable(err error) bool {
	return errors.Is(err, ErrFull)
}

// Map converts Value events before forwarding them to dst. A conversion
// error becomes a recoverable Error event at the value's path.
func Map[A, B any](dst Sender[B], f func(A) (B, error)) Sender[A] {
	return Func[A](func(ev Event[A]) error {
		out := Event[B]{Kind: ev.Kind, Depth: ev.Depth, Path: ev.Path, Message: ev.Message, Pos: ev.Pos, Fatal: ev.Fatal}
		if ev.Kind == Value {
			v, err := f(ev.Value)
			if err != nil {
				metrics.ErrorsTotal.WithLabelValues("encode").Inc()
				return dst.Send(ErrorEvent[B](ev.Path, err.Error(), nil, false))
			}
			out.Value = v
		}
		return dst.Send(out)
	})
}

// Counting records every event that dst accepts in metrics.EventsTotal.
func Counting[V any](dst Sender[V]) Sender[V] {
	counters := map[Kind]interface{ Inc() }{
		PathSeen: metrics.EventsTotal.WithLabelValues(PathSeen.String()),
		Value:    metrics.EventsTotal.WithLabelValues(Value.String()),
		Finished: metrics.EventsTotal.WithLabelValues(Finished.String()),
		Error:    metrics.EventsTotal.WithLabelValues(Error.String()),
	}
	return Func[V](func(ev Event[V]) error {
		if err := dst.Send(ev); err != nil {
			return err
		}
		if c, ok := counters[ev.Kind]; ok {
			c.Inc()
		}
		return nil
	})
}

// Drain moves events from rx to dst until the producer is done, dst fails or
// ctx is cancelled.
func Drain[V any](ctx context.Context, rx Receiver[V], dst Sender[V]) error {
	for {
		ev, err := rx.Recv(ctx)
		if err != nil {
			if isEOF(err) {
				return nil
			}
			return err
		}
		if err := dst.Send(ev); err != nil {
			return err
		}
	}
}
