package jsonpath

import (
	"cmp"
	"strconv"
	"strings"
)

// SchemaStep is a Key, or the wildcard that stands in for every array index.
type SchemaStep struct {
	name     string
	wildcard bool
}

func Wildcard() SchemaStep {
	return SchemaStep{wildcard: true}
}

func SchemaKey(name string) SchemaStep {
	return SchemaStep{name: name}
}

func (s SchemaStep) IsWildcard() bool {
	return s.wildcard
}

func (s SchemaStep) Name() string {
	return s.name
}

func (s SchemaStep) String() string {
	if s.wildcard {
		return "[]"
	}
	return s.name
}

// SchemaPath is a path with indices collapsed, so every element of an array
// lands in the same bucket.
type SchemaPath []SchemaStep

func Canonicalize(p Path) SchemaPath {
	sp := make(SchemaPath, p.Len())
	for n := p.tail; n != nil; n = n.parent {
		if n.step.IsKey() {
			sp[n.len-1] = SchemaKey(n.step.name)
		} else {
			sp[n.len-1] = Wildcard()
		}
	}
	return sp
}

// Canonicalize returns a copy; a SchemaPath is already canonical.
func (sp SchemaPath) Canonicalize() SchemaPath {
	out := make(SchemaPath, len(sp))
	copy(out, sp)
	return out
}

// Keys returns the key steps in order, dropping wildcards.
func (sp SchemaPath) Keys() []string {
	keys := make([]string, 0, len(sp))
	for _, s := range sp {
		if !s.wildcard {
			keys = append(keys, s.name)
		}
	}
	return keys
}

// Key is an unambiguous string encoding used for map lookups.
func (sp SchemaPath) Key() string {
	var b strings.Builder
	for _, s := range sp {
		if s.wildcard {
			b.WriteString("*;")
			continue
		}
		b.WriteString(strconv.Itoa(len(s.name)))
		b.WriteByte(':')
		b.WriteString(s.name)
	}
	return b.String()
}

func (sp SchemaPath) String() string {
	parts := make([]string, len(sp))
	for i, s := range sp {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

func (sp SchemaPath) Equal(o SchemaPath) bool {
	return CompareSchemaPaths(sp, o) == 0
}

// CompareSchemaPaths orders wildcards before keys, then keys lexicographically.
func CompareSchemaPaths(a, b SchemaPath) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].wildcard != b[i].wildcard {
			if a[i].wildcard {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a[i].name, b[i].name); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
