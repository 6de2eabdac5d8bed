package handler

import (
	"errors"
	"fmt"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/metrics"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/sender"
)

var (
	ErrMaxDepth = errors.New("maximum nesting depth exceeded")
	ErrDelivery = errors.New("event delivery failed")
)

// Visitor picks which leaves become Value events and what they carry.
type Visitor[V any] interface {
	MatchPath(path jsonpath.Path) bool
	Convert(path jsonpath.Path, tok parser.Token) (V, error)
}

var (
	errEOF    = errors.New("end of input")
	errHalted = errors.New("halted on syntax error")
)

type readError struct{ err error }

func (e *readError) Error() string { return "read json: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type engine[V any] struct {
	src parser.EventSource
	v   Visitor[V]
	tx  sender.Sender[V]
	cfg config
}

// Traverse walks every token of src, sending events to tx in document
// order. Exactly one Finished event ends every traversal whose sender is
// still accepting events.
//
// Syntax errors are delivered as Error events and, depending on the
// policy, stop the walk; they do not make Traverse fail. Traverse returns
// an error when the source fails to read, when nesting goes past the
// maximum depth, or when tx refuses an event (wrapped in ErrDelivery).
func Traverse[V any](src parser.EventSource, v Visitor[V], tx sender.Sender[V], opts ...Option) error {
	cfg := config{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &engine[V]{src: src, v: v, tx: tx, cfg: cfg}
	return e.run()
}

func (e *engine[V]) run() error {
	err := e.document()

	var rerr *readError
	switch {
	case err == nil, errors.Is(err, errEOF), errors.Is(err, errHalted):
		err = nil
	case errors.Is(err, ErrDelivery):
		metrics.ErrorsTotal.WithLabelValues("delivery").Inc()
		return err
	case errors.As(err, &rerr):
		err = rerr
	}

	if ferr := e.send(sender.FinishedEvent[V]()); ferr != nil {
		return ferr
	}
	return err
}

func (e *engine[V]) document() error {
	root := e.cfg.root
	for docs := 0; ; docs++ {
		tok, err := e.next(root)
		if err != nil {
			return err
		}
		switch {
		case tok.Kind == parser.EOF:
			return nil
		case docs > 0 && !e.cfg.multi && tok.Kind != parser.Error:
			if err := e.syntaxError(root, parser.Token{Kind: parser.Error, Text: "unexpected data after top-level value", Pos: tok.Pos}); err != nil {
				return err
			}
		}
		if err := e.value(tok, root, 0); err != nil {
			return err
		}
	}
}

func (e *engine[V]) value(tok parser.Token, path jsonpath.Path, depth int) error {
	switch tok.Kind {
	case parser.String, parser.Number, parser.Bool, parser.Null:
		return e.maybeSendValue(path, depth, tok)
	case parser.StartArray:
		return e.array(path, depth+1)
	case parser.StartObject:
		return e.object(path, depth+1)
	case parser.EOF:
		return errEOF
	case parser.Error:
		return e.syntaxError(path, tok)
	}
	return e.unexpected(path, tok)
}

func (e *engine[V]) array(path jsonpath.Path, depth int) error {
	if err := e.checkDepth(path, depth); err != nil {
		return err
	}
	var i uint64
	for {
		tok, err := e.next(path)
		if err != nil {
			return err
		}
		switch tok.Kind {
		case parser.EndArray:
			return nil
		case parser.EOF:
			return errEOF
		case parser.Error:
			if err := e.syntaxError(path.Append(jsonpath.Index(i)), tok); err != nil {
				return err
			}
		case parser.EndObject, parser.ObjectKey:
			if err := e.unexpected(path, tok); err != nil {
				return err
			}
		default:
			if err := e.value(tok, path.Append(jsonpath.Index(i)), depth); err != nil {
				return err
			}
			i++
		}
	}
}

func (e *engine[V]) object(path jsonpath.Path, depth int) error {
	if err := e.checkDepth(path, depth); err != nil {
		return err
	}
	for {
		tok, err := e.next(path)
		if err != nil {
			return err
		}
		switch tok.Kind {
		case parser.EndObject:
			return nil
		case parser.ObjectKey:
			child := path.Append(jsonpath.Key(tok.Text))
			vtok, err := e.next(child)
			if err != nil {
				return err
			}
			if err := e.value(vtok, child, depth); err != nil {
				return err
			}
		case parser.EOF:
			return errEOF
		case parser.Error:
			if err := e.syntaxError(path, tok); err != nil {
				return err
			}
		default:
			if err := e.unexpected(path, tok); err != nil {
				return err
			}
		}
	}
}

func (e *engine[V]) maybeSendValue(path jsonpath.Path, depth int, tok parser.Token) error {
	if !e.v.MatchPath(path) {
		if e.cfg.emitPaths {
			return e.send(sender.PathEvent[V](depth, path))
		}
		return nil
	}
	v, err := e.v.Convert(path, tok)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("encode").Inc()
		pos := tok.Pos
		return e.send(sender.ErrorEvent[V](path, err.Error(), &pos, false))
	}
	return e.send(sender.ValueEvent(path, v))
}

func (e *engine[V]) next(path jsonpath.Path) (parser.Token, error) {
	tok, err := e.src.Next()
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("io").Inc()
		if serr := e.send(sender.ErrorEvent[V](path, err.Error(), nil, true)); serr != nil {
			return tok, serr
		}
		return tok, &readError{err: err}
	}
	return tok, nil
}

func (e *engine[V]) syntaxError(path jsonpath.Path, tok parser.Token) error {
	metrics.ErrorsTotal.WithLabelValues("syntax").Inc()
	pos := tok.Pos
	halt := e.cfg.policy == Halt
	if err := e.send(sender.ErrorEvent[V](path, tok.Text, &pos, halt)); err != nil {
		return err
	}
	if halt {
		return errHalted
	}
	return nil
}

// unexpected covers tokens a conforming source never yields in that spot.
func (e *engine[V]) unexpected(path jsonpath.Path, tok parser.Token) error {
	return e.syntaxError(path, parser.Token{
		Kind: parser.Error,
		Text: fmt.Sprintf("unexpected %s", tok.Kind),
		Pos:  tok.Pos,
	})
}

func (e *engine[V]) checkDepth(path jsonpath.Path, depth int) error {
	if depth <= e.cfg.maxDepth {
		return nil
	}
	metrics.ErrorsTotal.WithLabelValues("depth").Inc()
	msg := fmt.Sprintf("nesting deeper than %d", e.cfg.maxDepth)
	if err := e.send(sender.ErrorEvent[V](path, msg, nil, true)); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d", ErrMaxDepth, e.cfg.maxDepth)
}

func (e *engine[V]) send(ev sender.Event[V]) error {
	if err := e.tx.Send(ev); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}
