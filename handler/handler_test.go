package handler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/sender"
)

type recorder[V any] struct {
	events []sender.Event[V]
}

func (r *recorder[V]) Send(ev sender.Event[V]) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder[V]) lines() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.String()
	}
	return out
}

func (r *recorder[V]) count(kind sender.Kind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func plain(t *testing.T, input string, opts ...Option) (*recorder[parser.Token], error) {
	t.Helper()
	rec := &recorder[parser.Token]{}
	err := Traverse[parser.Token](parser.NewScanner(strings.NewReader(input)), Plain{}, rec, opts...)
	return rec, err
}

func TestTraverseValues(t *testing.T) {
	rec, err := plain(t, `{"a":1,"b":[1,2,3],"c":"x"}`)
	assert.Nil(t, err)
	assert.Equal(t, []string{
		`["a"] => number(1)`,
		`["b",0] => number(1)`,
		`["b",1] => number(2)`,
		`["b",2] => number(3)`,
		`["c"] => string("x")`,
		`finished`,
	}, rec.lines())
}

func TestTraverseNested(t *testing.T) {
	rec, err := plain(t, `[{"k":[[true]]},null,{"e":{}},[]]`)
	assert.Nil(t, err)
	assert.Equal(t, []string{
		`[0,"k",0,0] => bool(true)`,
		`[1] => null`,
		`finished`,
	}, rec.lines())
}

func TestTraverseTopLevelScalar(t *testing.T) {
	rec, err := plain(t, `"solo"`)
	assert.Nil(t, err)
	assert.Equal(t, []string{`[] => string("solo")`, `finished`}, rec.lines())
}

func TestExactlyOneFinishedLast(t *testing.T) {
	inputs := []string{``, `{`, `[1,2`, `{"x":}`, `[1}`, `{"a":1} 2`, `nul`, `{"a":[{"b":1}]}`}
	for _, policy := range []Policy{Halt, Continue} {
		for _, input := range inputs {
			rec, err := plain(t, input, WithErrorPolicy(policy))
			assert.Nil(t, err, input)
			assert.Equal(t, 1, rec.count(sender.Finished), input)
			assert.Equal(t, sender.Finished, rec.events[len(rec.events)-1].Kind, input)
		}
	}
}

func TestMissingValueHalt(t *testing.T) {
	rec, err := plain(t, `{"x":}`, WithErrorPolicy(Halt))
	assert.Nil(t, err)
	assert.Len(t, rec.events, 2)
	ev := rec.events[0]
	assert.Equal(t, sender.Error, ev.Kind)
	assert.True(t, ev.Fatal)
	assert.Equal(t, `["x"]`, ev.Path.JQ())
	assert.Equal(t, parser.Position{Line: 1, Col: 6, Offset: 5}, *ev.Pos)
	assert.Equal(t, sender.Finished, rec.events[1].Kind)
}

func TestMissingValueContinue(t *testing.T) {
	rec, err := plain(t, `{"x":,"y":2}`, WithErrorPolicy(Continue))
	assert.Nil(t, err)
	assert.Len(t, rec.events, 3)
	assert.Equal(t, sender.Error, rec.events[0].Kind)
	assert.False(t, rec.events[0].Fatal)
	assert.Equal(t, `["y"] => number(2)`, rec.events[1].String())
	assert.Equal(t, sender.Finished, rec.events[2].Kind)
}

func TestContinueKeepsIndices(t *testing.T) {
	rec, err := plain(t, `[1,,3]`, WithErrorPolicy(Continue))
	assert.Nil(t, err)
	assert.Equal(t, `[0] => number(1)`, rec.events[0].String())
	assert.Equal(t, sender.Error, rec.events[1].Kind)
	assert.Equal(t, `[1]`, rec.events[1].Path.JQ())
	assert.Equal(t, `[1] => number(3)`, rec.events[2].String())
}

func TestStrayColonInArrayEnds(t *testing.T) {
	cases := map[string][]string{
		`[:]`:     {`error at 1:2 [0]: expected value, found ':'`, `finished`},
		`[1 : 2]`: {`[0] => number(1)`, `error at 1:4 [1]: expected ',' or ']', found ':'`, `[1] => number(2)`, `finished`},
	}
	for input, want := range cases {
		rec, err := plain(t, input, WithErrorPolicy(Continue))
		assert.Nil(t, err, input)
		assert.Equal(t, want, rec.lines(), input)
	}
}

func TestMissingColonKeepsValue(t *testing.T) {
	rec, err := plain(t, `{"a" 1,"b":2}`, WithErrorPolicy(Continue))
	assert.Nil(t, err)
	assert.Equal(t, 1, rec.count(sender.Error))
	assert.Equal(t, sender.Error, rec.events[0].Kind)
	assert.Equal(t, `[]`, rec.events[0].Path.JQ())
	assert.Equal(t, `["a"] => number(1)`, rec.events[1].String())
	assert.Equal(t, `["b"] => number(2)`, rec.events[2].String())
	assert.Equal(t, sender.Finished, rec.events[3].Kind)
}

func TestTruncatedInput(t *testing.T) {
	rec, err := plain(t, `{"a":[1,2`, WithErrorPolicy(Continue))
	assert.Nil(t, err)
	assert.Equal(t, 2, rec.count(sender.Value))
	assert.Equal(t, 1, rec.count(sender.Error))
	assert.Equal(t, sender.Finished, rec.events[len(rec.events)-1].Kind)
}

func TestMaxDepth(t *testing.T) {
	deep := strings.Repeat("[", 20) + strings.Repeat("]", 20)
	rec, err := plain(t, deep, WithMaxDepth(10))
	assert.ErrorIs(t, err, ErrMaxDepth)
	assert.Equal(t, 1, rec.count(sender.Error))
	assert.True(t, rec.events[0].Fatal)
	assert.Equal(t, 10, rec.events[0].Path.Len())
	assert.Equal(t, sender.Finished, rec.events[1].Kind)

	rec, err = plain(t, deep, WithMaxDepth(20))
	assert.Nil(t, err)
	assert.Equal(t, 0, rec.count(sender.Error))
}

func TestDefaultMaxDepth(t *testing.T) {
	deep := strings.Repeat("[", DefaultMaxDepth+1) + strings.Repeat("]", DefaultMaxDepth+1)
	_, err := plain(t, deep)
	assert.ErrorIs(t, err, ErrMaxDepth)
}

type brokenSource struct {
	toks []parser.Token
	err  error
}

func (s *brokenSource) Next() (parser.Token, error) {
	if len(s.toks) == 0 {
		return parser.Token{}, s.err
	}
	tok := s.toks[0]
	s.toks = s.toks[1:]
	return tok, nil
}

func TestReadErrorIsFatal(t *testing.T) {
	boom := errors.New("disk on fire")
	src := &brokenSource{
		toks: []parser.Token{{Kind: parser.StartArray}, {Kind: parser.Number, Text: "1"}},
		err:  boom,
	}
	rec := &recorder[parser.Token]{}
	err := Traverse[parser.Token](src, Plain{}, rec, WithErrorPolicy(Continue))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{`[0] => number(1)`, `error []: disk on fire`, `finished`}, rec.lines())
	assert.True(t, rec.events[1].Fatal)
}

func TestDeliveryErrorStops(t *testing.T) {
	calls := 0
	tx := sender.Func[parser.Token](func(ev sender.Event[parser.Token]) error {
		calls++
		if calls == 2 {
			return sender.ErrAbandoned
		}
		return nil
	})
	err := Traverse[parser.Token](parser.NewScanner(strings.NewReader(`[1,2,3,4]`)), Plain{}, tx)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, sender.ErrAbandoned)
	assert.Equal(t, 2, calls)
}

func TestPathEvents(t *testing.T) {
	rec := &recorder[struct{}]{}
	err := Traverse[struct{}](parser.NewScanner(strings.NewReader(`{"a":{"b":1},"c":[true]}`)), Paths{}, rec, WithPathEvents())
	assert.Nil(t, err)
	assert.Equal(t, []string{`2 ["a","b"]`, `2 ["c",0]`, `finished`}, rec.lines())
}

func TestMatchMixesPathsAndValues(t *testing.T) {
	rec, err := plain(t, `{"a":1,"b":{"c":2}}`, WithPathEvents())
	assert.Nil(t, err)
	assert.Equal(t, 0, rec.count(sender.PathSeen))

	rec = &recorder[parser.Token]{}
	v := Plain{Match: MatchKeys("b")}
	err = Traverse[parser.Token](parser.NewScanner(strings.NewReader(`{"a":1,"b":{"c":2}}`)), v, rec, WithPathEvents())
	assert.Nil(t, err)
	assert.Equal(t, []string{`1 ["a"]`, `["b","c"] => number(2)`, `finished`}, rec.lines())
}

func TestMultipleDocuments(t *testing.T) {
	input := "{\"a\":1}\n{\"a\":2}\n"
	rec := &recorder[parser.Token]{}
	src := parser.NewScanner(strings.NewReader(input), parser.WithMultipleDocuments())
	err := Traverse[parser.Token](src, Plain{}, rec, WithMultipleDocuments())
	assert.Nil(t, err)
	assert.Equal(t, []string{`["a"] => number(1)`, `["a"] => number(2)`, `finished`}, rec.lines())
}

func TestRoot(t *testing.T) {
	root := jsonpath.New(jsonpath.Key("GET /users"), jsonpath.Key("response"))
	rec, err := plain(t, `{"id":7}`, WithRoot(root))
	assert.Nil(t, err)
	assert.Equal(t, `["GET /users","response","id"] => number(7)`, rec.events[0].String())
}

type failingVisitor struct{}

func (failingVisitor) MatchPath(jsonpath.Path) bool { return true }

func (failingVisitor) Convert(_ jsonpath.Path, tok parser.Token) (int, error) {
	if tok.Kind == parser.String {
		return 0, errors.New("strings not supported")
	}
	return 1, nil
}

func TestConvertErrorIsRecoverable(t *testing.T) {
	rec := &recorder[int]{}
	err := Traverse[int](parser.NewScanner(strings.NewReader(`[1,"x",2]`)), failingVisitor{}, rec)
	assert.Nil(t, err)
	assert.Equal(t, 2, rec.count(sender.Value))
	assert.Equal(t, 1, rec.count(sender.Error))
	assert.False(t, rec.events[1].Fatal)
	assert.Equal(t, `[1]`, rec.events[1].Path.JQ())
}

func TestDecoderSource(t *testing.T) {
	rec := &recorder[parser.Token]{}
	err := Traverse[parser.Token](parser.NewDecoderSource(strings.NewReader(`{"a":[1,"x"]}`)), Plain{}, rec)
	assert.Nil(t, err)
	assert.Equal(t, []string{`["a",0] => number(1)`, `["a",1] => string("x")`, `finished`}, rec.lines())
}

func TestMatchKeys(t *testing.T) {
	m := MatchKeys("images", "thumb")
	assert.True(t, m(jsonpath.New(jsonpath.Index(0), jsonpath.Key("images"), jsonpath.Index(3), jsonpath.Key("thumb"))))
	assert.True(t, m(jsonpath.New(jsonpath.Key("images"), jsonpath.Key("thumb"), jsonpath.Key("url"))))
	assert.False(t, m(jsonpath.New(jsonpath.Key("images"))))
	assert.False(t, m(jsonpath.New(jsonpath.Key("videos"), jsonpath.Key("thumb"))))
	assert.True(t, ParseMatch("")(jsonpath.Empty()))
	assert.False(t, ParseMatch("-")(jsonpath.Empty()))
	assert.True(t, ParseMatch("/a/")(jsonpath.New(jsonpath.Key("a"))))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Continue")
	assert.Nil(t, err)
	assert.Equal(t, Continue, p)
	p, err = ParsePolicy("")
	assert.Nil(t, err)
	assert.Equal(t, Halt, p)
	_, err = ParsePolicy("retry")
	assert.NotNil(t, err)
}
