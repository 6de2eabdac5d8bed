package valuer

import (
	"github.com/valyala/fastjson"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/sender"
)

// Materializer rebuilds a document from the leaves of a traversal. Empty
// containers produce no leaves and therefore never show up. Skipped array
// elements are filled with null.
type Materializer struct {
	arena  fastjson.Arena
	root   *fastjson.Value
	errs   []string
	done   bool
	leaves int
}

func NewMaterializer() *Materializer {
	return &Materializer{}
}

func (m *Materializer) Send(ev sender.Event[*fastjson.Value]) error {
	switch ev.Kind {
	case sender.Value:
		m.insert(ev.Path.Steps(), ev.Value)
		m.leaves++
	case sender.Error:
		m.errs = append(m.errs, ev.String())
	case sender.Finished:
		m.done = true
	}
	return nil
}

func (m *Materializer) insert(steps []jsonpath.Step, v *fastjson.Value) {
	if len(steps) == 0 {
		m.root = v
		return
	}
	if !fits(m.root, steps[0]) {
		m.root = m.container(steps[0])
	}
	cur := m.root
	for i, s := range steps {
		if i == len(steps)-1 {
			set(cur, s, v)
			return
		}
		next := child(cur, s)
		if !fits(next, steps[i+1]) {
			next = m.container(steps[i+1])
			set(cur, s, next)
		}
		cur = next
	}
}

// container makes the value that can hold s.
func (m *Materializer) container(s jsonpath.Step) *fastjson.Value {
	if s.IsIndex() {
		return m.arena.NewArray()
	}
	return m.arena.NewObject()
}

func fits(v *fastjson.Value, s jsonpath.Step) bool {
	if v == nil {
		return false
	}
	if s.IsIndex() {
		return v.Type() == fastjson.TypeArray
	}
	return v.Type() == fastjson.TypeObject
}

func child(v *fastjson.Value, s jsonpath.Step) *fastjson.Value {
	if s.IsKey() {
		o, _ := v.Object()
		return o.Get(s.Name())
	}
	arr, _ := v.Array()
	if n := s.Num(); n < uint64(len(arr)) {
		return arr[n]
	}
	return nil
}

func set(v *fastjson.Value, s jsonpath.Step, item *fastjson.Value) {
	if s.IsKey() {
		v.Set(s.Name(), item)
		return
	}
	v.SetArrayItem(int(s.Num()), item)
}

// Result is the rebuilt document, nil when no leaf was seen.
func (m *Materializer) Result() *fastjson.Value {
	return m.root
}

func (m *Materializer) Done() bool {
	return m.done
}

func (m *Materializer) Leaves() int {
	return m.leaves
}

func (m *Materializer) Errors() []string {
	return m.errs
}
