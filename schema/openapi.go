package schema

import (
	"encoding/json"
	"io"
	"math"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/siegeai/jch/jsonpath"
)

type shapeNode struct {
	props  map[string]*shapeNode
	items  *shapeNode
	leaves []Leaf
}

func (n *shapeNode) insert(sp jsonpath.SchemaPath, leaves []Leaf) {
	cur := n
	for _, s := range sp {
		if s.IsWildcard() {
			if cur.items == nil {
				cur.items = &shapeNode{}
			}
			cur = cur.items
			continue
		}
		if cur.props == nil {
			cur.props = make(map[string]*shapeNode)
		}
		next, ok := cur.props[s.Name()]
		if !ok {
			next = &shapeNode{}
			cur.props[s.Name()] = next
		}
		cur = next
	}
	cur.leaves = append(cur.leaves, leaves...)
}

// OpenAPI renders the collected shapes as one schema tree. A path where
// several shapes were seen becomes a oneOf; a null alongside exactly one
// other shape becomes nullable instead.
func (c *Collector) OpenAPI() *openapi3.Schema {
	root := &shapeNode{}
	for _, row := range c.Report() {
		root.insert(row.Path, row.Leaves)
	}
	return root.schema()
}

// Subtree renders the part of the tree below prefix, nil if nothing was
// collected there.
func (c *Collector) Subtree(prefix ...string) *openapi3.Schema {
	root := &shapeNode{}
	for _, row := range c.Report() {
		if len(row.Path) < len(prefix) {
			continue
		}
		match := true
		for i, k := range prefix {
			if row.Path[i].IsWildcard() || row.Path[i].Name() != k {
				match = false
				break
			}
		}
		if match {
			root.insert(row.Path[len(prefix):], row.Leaves)
		}
	}
	if root.props == nil && root.items == nil && root.leaves == nil {
		return nil
	}
	return root.schema()
}

func (c *Collector) WriteOpenAPI(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c.OpenAPI())
}

func (n *shapeNode) schema() *openapi3.Schema {
	var alts []*openapi3.Schema
	nullable := false
	if n.props != nil {
		props := make(map[string]*openapi3.Schema, len(n.props))
		for k, v := range n.props {
			props[k] = v.schema()
		}
		alts = append(alts, NewObjectSchema(props))
	}
	if n.items != nil {
		alts = append(alts, NewArraySchema(n.items.schema()))
	}
	for _, l := range n.leaves {
		if l.Kind.Kind == KindNull {
			nullable = true
			continue
		}
		alts = append(alts, NewLeafSchema(l))
	}

	switch len(alts) {
	case 0:
		return NewNullSchema()
	case 1:
		alts[0].Nullable = nullable
		return alts[0]
	}
	refs := make(openapi3.SchemaRefs, len(alts))
	for i, a := range alts {
		refs[i] = a.NewRef()
	}
	return &openapi3.Schema{OneOf: refs, Nullable: nullable}
}

func NewObjectSchema(props map[string]*openapi3.Schema) *openapi3.Schema {
	ps := make(openapi3.Schemas, len(props))
	for k, v := range props {
		ps[k] = v.NewRef()
	}
	return &openapi3.Schema{
		Type:       openapi3.TypeObject,
		Properties: ps,
	}
}

func NewArraySchema(item *openapi3.Schema) *openapi3.Schema {
	return &openapi3.Schema{
		Type:  openapi3.TypeArray,
		Items: item.NewRef(),
	}
}

func NewNullSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Nullable: true,
	}
}

func NewLeafSchema(l Leaf) *openapi3.Schema {
	t := l.Aggregate
	s := &openapi3.Schema{
		Extensions: map[string]interface{}{"x-count": l.Count},
	}
	switch t.Kind {
	case KindString:
		s.Type = openapi3.TypeString
		n := t.MaxLen
		s.MaxLength = &n
	case KindNumber:
		switch t.Number.Kind {
		case Unsigned:
			s.Type = openapi3.TypeInteger
			s.Min = ptr(0.0)
			s.Max = ptr(float64(t.Number.UMax))
		case Signed:
			s.Type = openapi3.TypeInteger
			s.Min = ptr(float64(t.Number.IMin))
			s.Max = ptr(float64(t.Number.IMax))
		case Float:
			s.Type = openapi3.TypeNumber
			s.Min = finitePtr(t.Number.FMin)
			s.Max = finitePtr(t.Number.FMax)
		}
	case KindBoolean:
		s.Type = openapi3.TypeBoolean
	case KindUnknown:
		s.Description = "unrecognised value " + t.Raw
	}
	return s
}

func ptr[T any](v T) *T {
	return &v
}

func finitePtr(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

