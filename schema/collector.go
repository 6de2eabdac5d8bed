package schema

import (
	"slices"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/sender"
)

// Leaf counts the values of one shape seen at a path. Kind is the shape
// witness, Aggregate the widened type of everything counted.
type Leaf struct {
	Kind      SchemaType
	Count     uint64
	Aggregate SchemaType
}

func (l Leaf) String() string {
	return l.Aggregate.String() + ":" + formatUint(l.Count)
}

type bucket struct {
	path   jsonpath.SchemaPath
	leaves []Leaf
}

func (b *bucket) add(t SchemaType, count uint64) {
	for i := range b.leaves {
		l := &b.leaves[i]
		if SameShape(l.Kind, t) {
			l.Count += count
			l.Aggregate, _ = Merge(l.Aggregate, t)
			return
		}
	}
	b.leaves = append(b.leaves, Leaf{Kind: t.witness(), Count: count, Aggregate: t})
}

type ErrorRecord struct {
	Path    string           `json:"path" yaml:"path"`
	Message string           `json:"message" yaml:"message"`
	Pos     *parser.Position `json:"position,omitempty" yaml:"position,omitempty"`
	Fatal   bool             `json:"fatal,omitempty" yaml:"fatal,omitempty"`
}

// Row is one line of a report.
type Row struct {
	Path   jsonpath.SchemaPath
	Leaves []Leaf
}

// Collector aggregates classified leaves per schema path. It is a Sender
// and is meant to be owned by a single consumer goroutine.
type Collector struct {
	buckets  map[string]*bucket
	errors   []ErrorRecord
	paths    uint64
	finished bool
}

func NewCollector() *Collector {
	return &Collector{buckets: make(map[string]*bucket)}
}

func (c *Collector) Send(ev sender.Event[SchemaType]) error {
	switch ev.Kind {
	case sender.Value:
		c.Add(ev.Path, ev.Value)
	case sender.PathSeen:
		c.paths++
	case sender.Error:
		c.errors = append(c.errors, ErrorRecord{
			Path:    ev.Path.JQ(),
			Message: ev.Message,
			Pos:     ev.Pos,
			Fatal:   ev.Fatal,
		})
	case sender.Finished:
		c.finished = true
	}
	return nil
}

func (c *Collector) Add(path jsonpath.Path, t SchemaType) {
	c.AddCanonical(jsonpath.Canonicalize(path), t, 1)
}

// AddCanonical records count values of type t at sp.
func (c *Collector) AddCanonical(sp jsonpath.SchemaPath, t SchemaType, count uint64) {
	key := sp.Key()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{path: sp.Canonicalize()}
		c.buckets[key] = b
	}
	b.add(t, count)
}

// Merge folds other into c. Merging is commutative per leaf.
func (c *Collector) Merge(other *Collector) {
	for _, b := range other.buckets {
		for _, l := range b.leaves {
			c.AddCanonical(b.path, l.Aggregate, l.Count)
		}
	}
	c.errors = append(c.errors, other.errors...)
	c.paths += other.paths
}

// Done reports whether a Finished event has arrived.
func (c *Collector) Done() bool {
	return c.finished
}

func (c *Collector) Errors() []ErrorRecord {
	return c.errors
}

// PathsSeen counts PathSeen events, i.e. leaves that were not classified.
func (c *Collector) PathsSeen() uint64 {
	return c.paths
}

func (c *Collector) Len() int {
	return len(c.buckets)
}

// Leaves returns the leaves at sp in shape order, or nil.
func (c *Collector) Leaves(sp jsonpath.SchemaPath) []Leaf {
	b, ok := c.buckets[sp.Key()]
	if !ok {
		return nil
	}
	return sortedLeaves(b.leaves)
}

// Report lists every path in order with its leaves in shape order.
func (c *Collector) Report() []Row {
	rows := make([]Row, 0, len(c.buckets))
	for _, b := range c.buckets {
		rows = append(rows, Row{Path: b.path, Leaves: sortedLeaves(b.leaves)})
	}
	slices.SortFunc(rows, func(a, b Row) int {
		return jsonpath.CompareSchemaPaths(a.Path, b.Path)
	})
	return rows
}

func sortedLeaves(leaves []Leaf) []Leaf {
	out := slices.Clone(leaves)
	slices.SortFunc(out, func(a, b Leaf) int {
		return a.Kind.shapeRank() - b.Kind.shapeRank()
	})
	return out
}
