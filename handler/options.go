package handler

import (
	"fmt"
	"strings"

	"github.com/siegeai/jch/jsonpath"
)

// DefaultMaxDepth bounds container nesting; deeper input is a fatal error.
const DefaultMaxDepth = 10000

// Policy decides what happens after a syntax error has been reported.
type Policy int

const (
	// Halt stops the traversal after the first syntax error.
	Halt Policy = iota
	// Continue keeps going with the next token the source produces.
	Continue
)

func (p Policy) String() string {
	if p == Continue {
		return "continue"
	}
	return "halt"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "halt":
		return Halt, nil
	case "continue":
		return Continue, nil
	}
	return Halt, fmt.Errorf("unknown error policy %q", s)
}

type config struct {
	maxDepth  int
	policy    Policy
	emitPaths bool
	multi     bool
	root      jsonpath.Path
}

type Option func(*config)

func WithMaxDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

func WithErrorPolicy(p Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithPathEvents emits PathSeen for every leaf the visitor does not match.
func WithPathEvents() Option {
	return func(c *config) {
		c.emitPaths = true
	}
}

// WithMultipleDocuments traverses every top-level value until EOF, all
// rooted at the same path.
func WithMultipleDocuments() Option {
	return func(c *config) {
		c.multi = true
	}
}

// WithRoot prefixes every emitted path.
func WithRoot(p jsonpath.Path) Option {
	return func(c *config) {
		c.root = p
	}
}
