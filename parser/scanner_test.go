package parser

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(t *testing.T, src EventSource) []Token {
	t.Helper()
	var toks []Token
	for i := 0; i < 10000; i++ {
		tok, err := src.Next()
		assert.Nil(t, err)
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks
		}
	}
	t.Fatal("source never reached EOF")
	return nil
}

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestScanObject(t *testing.T) {
	toks := collect(t, NewScanner(strings.NewReader(`{"a":1,"b":[1,2,3],"c":"x"}`)))
	assert.Equal(t, []Kind{
		StartObject,
		ObjectKey, Number,
		ObjectKey, StartArray, Number, Number, Number, EndArray,
		ObjectKey, String,
		EndObject, EOF,
	}, kinds(toks))
	assert.Equal(t, "a", toks[1].Text)
	assert.Equal(t, "1", toks[2].Text)
	assert.Equal(t, "x", toks[10].Text)
}

func TestScanScalars(t *testing.T) {
	toks := collect(t, NewScanner(strings.NewReader(`[true, false, null, -1.5e3, 0, "", 18446744073709551616]`)))
	assert.Equal(t, []Kind{StartArray, Bool, Bool, Null, Number, Number, String, Number, EndArray, EOF}, kinds(toks))
	assert.True(t, toks[1].Bool)
	assert.False(t, toks[2].Bool)
	assert.Equal(t, "-1.5e3", toks[4].Text)
	assert.Equal(t, "18446744073709551616", toks[7].Text)
}

func TestScanStringEscapes(t *testing.T) {
	toks := collect(t, NewScanner(strings.NewReader(`["a\"b\\c\/d\n\t", "é😀", "\ud800x"]`)))
	assert.Equal(t, "a\"b\\c/d\n\t", toks[1].Text)
	assert.Equal(t, "é😀", toks[2].Text)
	assert.Equal(t, "�x", toks[3].Text)
}

func TestScanPositions(t *testing.T) {
	toks := collect(t, NewScanner(strings.NewReader("{\n  \"a\": [1,\n    2]\n}")))
	assert.Equal(t, Position{Line: 1, Col: 1, Offset: 0}, toks[0].Pos)
	assert.Equal(t, 2, toks[1].Pos.Line)
	assert.Equal(t, 3, toks[1].Pos.Col)
	assert.Equal(t, 3, toks[4].Pos.Line)
	assert.Equal(t, 5, toks[4].Pos.Col)
}

func TestScanMissingValueRecovers(t *testing.T) {
	toks := collect(t, NewScanner(strings.NewReader(`{"x":}`)))
	assert.Equal(t, []Kind{StartObject, ObjectKey, Error, EndObject, EOF}, kinds(toks))
	assert.Equal(t, 1, toks[2].Pos.Line)
	assert.Equal(t, 6, toks[2].Pos.Col)
	assert.Contains(t, toks[2].Text, "'}'")
}

func TestScanRecovery(t *testing.T) {
	cases := map[string][]Kind{
		`[1,]`:      {StartArray, Number, Error, EndArray, EOF},
		`[1 2]`:     {StartArray, Number, Error, Number, EndArray, EOF},
		`{"a" 1}`:   {StartObject, Error, ObjectKey, Number, EndObject, EOF},
		`{"a":1,}`:  {StartObject, ObjectKey, Number, Error, EndObject, EOF},
		`[1}`:       {StartArray, Number, Error, Error, EOF},
		`{"a":1} 2`: {StartObject, ObjectKey, Number, EndObject, Error, EOF},
		``:          {Error, EOF},
		`[1, [2`:    {StartArray, Number, StartArray, Number, Error, EOF},
		`[:]`:       {StartArray, Error, EndArray, EOF},
		`[1 : 2]`:   {StartArray, Number, Error, Number, EndArray, EOF},
		`{:}`:       {StartObject, Error, EndObject, EOF},
	}
	for input, want := range cases {
		toks := collect(t, NewScanner(strings.NewReader(input)))
		assert.Equal(t, want, kinds(toks), input)
	}
}

func TestScanLexicalErrors(t *testing.T) {
	for _, input := range []string{`[tru]`, `[@, 1]`, `"abc`, `{"a":nul}`, `{"a\q":1}`} {
		toks := collect(t, NewScanner(strings.NewReader(input)))
		assert.Contains(t, kinds(toks), Error, input)
		assert.Equal(t, EOF, toks[len(toks)-1].Kind, input)
	}
}

// Every input ends in EOF within a number of tokens linear in its length.
func TestScanAlwaysEnds(t *testing.T) {
	inputs := []string{
		`[:::`, `[-:`, `[:.,]`, `e[:}:`, `[1 : 2]`, `{"a"::1}`, `{"a" "b" "c"}`,
		`]]]]`, `}}}`, `,,,,`, `::::`, `[,:,:,]`, `{,:,}`, `[[[[:`, `{"a":[}]`,
		`"\q`, `[1,2,3,,,,:]`, `{"x":{"y":[:]}}`, `@#$%`, `[tr ue]`,
	}
	for _, input := range inputs {
		for _, opts := range [][]Option{nil, {WithMultipleDocuments()}} {
			s := NewScanner(strings.NewReader(input), opts...)
			limit := 4*len(input) + 4
			n := 0
			for ; n < limit; n++ {
				tok, err := s.Next()
				assert.Nil(t, err, input)
				if tok.Kind == EOF {
					break
				}
			}
			assert.Less(t, n, limit, input)
		}
	}
}

func TestScanMultipleDocuments(t *testing.T) {
	input := "{\"a\":1}\n{\"a\":2}\n\n[3]\n"
	toks := collect(t, NewScanner(strings.NewReader(input), WithMultipleDocuments()))
	assert.Equal(t, []Kind{
		StartObject, ObjectKey, Number, EndObject,
		StartObject, ObjectKey, Number, EndObject,
		StartArray, Number, EndArray,
		EOF,
	}, kinds(toks))
	assert.Equal(t, 4, toks[8].Pos.Line)

	toks = collect(t, NewScanner(strings.NewReader(""), WithMultipleDocuments()))
	assert.Equal(t, []Kind{EOF}, kinds(toks))
}

func TestScanEOFIsSticky(t *testing.T) {
	s := NewScanner(strings.NewReader(`1`))
	tok, _ := s.Next()
	assert.Equal(t, Number, tok.Kind)
	for range 3 {
		tok, err := s.Next()
		assert.Nil(t, err)
		assert.Equal(t, EOF, tok.Kind)
	}
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestScanReaderError(t *testing.T) {
	boom := errors.New("boom")
	s := NewScanner(&failingReader{data: `[1,`, err: boom})
	for range 2 {
		_, err := s.Next()
		assert.Nil(t, err)
	}
	_, err := s.Next()
	assert.ErrorIs(t, err, boom)
	_, err = s.Next()
	assert.ErrorIs(t, err, boom)
}

func TestScanSmallBuffer(t *testing.T) {
	input := `{"long":"` + strings.Repeat("x", 100) + `","n":12345}`
	toks := collect(t, NewScanner(io.LimitReader(strings.NewReader(input), int64(len(input))), WithBufferSize(16)))
	assert.Equal(t, strings.Repeat("x", 100), toks[2].Text)
	assert.Equal(t, "12345", toks[4].Text)
}

func TestUnquote(t *testing.T) {
	for raw, want := range map[string]string{
		`"a\nb"`:    "a\nb",
		`a\nb`:      "a\nb",
		`""`:        "",
		`"\ud800x"`: "�x",
		`"é\/"`:     "é/",
	} {
		got, err := unquote(raw)
		assert.Nil(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	got, err := unquote(`"a\q"`)
	assert.NotNil(t, err)
	assert.Equal(t, `a\q`, got)
}
