package sender

import (
	"fmt"
	"strconv"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
)

type Kind uint8

const (
	PathSeen Kind = iota + 1
	Value
	Finished
	Error
)

func (k Kind) String() string {
	switch k {
	case PathSeen:
		return "path"
	case Value:
		return "value"
	case Finished:
		return "finished"
	case Error:
		return "error"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Event is what a traversal hands to a Sender. Depth and Path are set for
// PathSeen, Path and Value for Value, Path, Message, Pos and Fatal for Error.
type Event[V any] struct {
	Kind    Kind
	Depth   int
	Path    jsonpath.Path
	Value   V
	Message string
	Pos     *parser.Position
	Fatal   bool
}

func PathEvent[V any](depth int, path jsonpath.Path) Event[V] {
	return Event[V]{Kind: PathSeen, Depth: depth, Path: path}
}

func ValueEvent[V any](path jsonpath.Path, v V) Event[V] {
	return Event[V]{Kind: Value, Path: path, Value: v}
}

func FinishedEvent[V any]() Event[V] {
	return Event[V]{Kind: Finished}
}

func ErrorEvent[V any](path jsonpath.Path, msg string, pos *parser.Position, fatal bool) Event[V] {
	return Event[V]{Kind: Error, Path: path, Message: msg, Pos: pos, Fatal: fatal}
}

func (e Event[V]) String() string {
	switch e.Kind {
	case PathSeen:
		return fmt.Sprintf("%d %s", e.Depth, e.Path.JQ())
	case Value:
		return fmt.Sprintf("%s => %v", e.Path.JQ(), e.Value)
	case Finished:
		return "finished"
	case Error:
		if e.Pos != nil {
			return fmt.Sprintf("error at %s %s: %s", e.Pos, e.Path.JQ(), e.Message)
		}
		return fmt.Sprintf("error %s: %s", e.Path.JQ(), e.Message)
	}
	return e.Kind.String()
}
