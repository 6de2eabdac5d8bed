package jsonpath

import (
	"iter"
	"strings"
)

type node struct {
	parent *node
	step   Step
	len    int
}

// Path is an immutable sequence of steps. Append shares the receiver as a
// prefix so extending a path costs one allocation and never copies or
// mutates existing paths. The zero value is the empty path.
type Path struct {
	tail *node
}

func Empty() Path {
	return Path{}
}

func New(steps ...Step) Path {
	p := Empty()
	for _, s := range steps {
		p = p.Append(s)
	}
	return p
}

func (p Path) Append(s Step) Path {
	return Path{tail: &node{parent: p.tail, step: s, len: p.Len() + 1}}
}

func (p Path) Len() int {
	if p.tail == nil {
		return 0
	}
	return p.tail.len
}

func (p Path) IsEmpty() bool {
	return p.tail == nil
}

// Last returns the final step, false for the empty path.
func (p Path) Last() (Step, bool) {
	if p.tail == nil {
		return Step{}, false
	}
	return p.tail.step, true
}

// Steps returns the steps front to back in a freshly allocated slice.
func (p Path) Steps() []Step {
	steps := make([]Step, p.Len())
	for n := p.tail; n != nil; n = n.parent {
		steps[n.len-1] = n.step
	}
	return steps
}

// All iterates the steps front to back.
func (p Path) All() iter.Seq[Step] {
	return func(yield func(Step) bool) {
		for _, s := range p.Steps() {
			if !yield(s) {
				return
			}
		}
	}
}

func (p Path) Equal(q Path) bool {
	if p.Len() != q.Len() {
		return false
	}
	for a, b := p.tail, q.tail; a != nil; a, b = a.parent, b.parent {
		if a == b {
			return true
		}
		if CompareSteps(a.step, b.step) != 0 {
			return false
		}
	}
	return true
}

// Compare orders paths lexicographically by step.
func Compare(p, q Path) int {
	ps, qs := p.Steps(), q.Steps()
	for i := 0; i < len(ps) && i < len(qs); i++ {
		if c := CompareSteps(ps[i], qs[i]); c != 0 {
			return c
		}
	}
	return len(ps) - len(qs)
}

// HasPrefix reports whether q is a leading subsequence of p.
func (p Path) HasPrefix(q Path) bool {
	if q.Len() > p.Len() {
		return false
	}
	n := p.tail
	for n != nil && n.len > q.Len() {
		n = n.parent
	}
	return Path{tail: n}.Equal(q)
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.Steps() {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// JQ renders the path in jq notation, e.g. ["images",3,"thumb"].
func (p Path) JQ() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range p.Steps() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.JQ())
	}
	b.WriteByte(']')
	return b.String()
}
