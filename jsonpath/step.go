package jsonpath

import (
	"cmp"
	"strconv"
)

type stepKind uint8

const (
	indexStep stepKind = iota
	keyStep
)

// Step is one element of an address into a json document, either an object
// key or an array index.
type Step struct {
	kind  stepKind
	name  string
	index uint64
}

func Key(name string) Step {
	return Step{kind: keyStep, name: name}
}

func Index(n uint64) Step {
	return Step{kind: indexStep, index: n}
}

func (s Step) IsKey() bool {
	return s.kind == keyStep
}

func (s Step) IsIndex() bool {
	return s.kind == indexStep
}

// Name returns the key of a Key step and "" for an Index step.
func (s Step) Name() string {
	return s.name
}

// Num returns the index of an Index step and 0 for a Key step.
func (s Step) Num() uint64 {
	return s.index
}

func (s Step) String() string {
	if s.kind == keyStep {
		return s.name
	}
	return strconv.FormatUint(s.index, 10)
}

// JQ renders the step the way jq prints paths: keys quoted, indices bare.
func (s Step) JQ() string {
	if s.kind == keyStep {
		return strconv.Quote(s.name)
	}
	return strconv.FormatUint(s.index, 10)
}

// CompareSteps orders indices before keys, indices numerically and keys
// lexicographically.
func CompareSteps(a, b Step) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	if a.kind == keyStep {
		return cmp.Compare(a.name, b.name)
	}
	return cmp.Compare(a.index, b.index)
}
