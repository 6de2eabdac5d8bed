package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeDropsIndices(t *testing.T) {
	p := New(Index(0), Key("images"), Index(3), Key("thumb"))
	sp := Canonicalize(p)

	assert.Equal(t, "[]/images/[]/thumb", sp.String())
	assert.Equal(t, []string{"images", "thumb"}, sp.Keys())
	for _, s := range sp {
		if !s.IsWildcard() {
			assert.NotEmpty(t, s.Name())
		}
	}
}

func TestCanonicalizeIndexInsensitive(t *testing.T) {
	a := Canonicalize(New(Key("b"), Index(0)))
	b := Canonicalize(New(Key("b"), Index(2)))
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
}

func TestCanonicalizeIdempotent(t *testing.T) {
	sp := Canonicalize(New(Key("a"), Index(7), Key("c")))
	assert.Equal(t, sp, sp.Canonicalize())
	assert.Equal(t, sp.Key(), sp.Canonicalize().Key())
}

func TestSchemaPathKeyUnambiguous(t *testing.T) {
	a := SchemaPath{SchemaKey("a"), SchemaKey("b")}
	b := SchemaPath{SchemaKey("a:b")}
	c := SchemaPath{SchemaKey("a"), Wildcard()}
	d := SchemaPath{SchemaKey("a"), SchemaKey("*;")}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, c.Key(), d.Key())
}

func TestCompareSchemaPaths(t *testing.T) {
	assert.Negative(t, CompareSchemaPaths(SchemaPath{Wildcard()}, SchemaPath{SchemaKey("a")}))
	assert.Negative(t, CompareSchemaPaths(SchemaPath{SchemaKey("a")}, SchemaPath{SchemaKey("b")}))
	assert.Negative(t, CompareSchemaPaths(SchemaPath{SchemaKey("b")}, SchemaPath{SchemaKey("b"), Wildcard()}))
	assert.Zero(t, CompareSchemaPaths(nil, SchemaPath{}))
}
