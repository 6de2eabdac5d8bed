package parser

import (
	"encoding/json"
	"errors"
	"io"
	"slices"
)

const lineWindow = 1 << 14

type frame struct {
	object  bool
	wantKey bool
}

// DecoderSource adapts encoding/json's token stream to EventSource. The
// decoder cannot recover from a syntax error, so the first Error token is
// followed by EOF.
type DecoderSource struct {
	dec    *json.Decoder
	lines  *lineReader
	frames []frame
	multi  bool
	docs   int
	done   bool
	err    error
}

func NewDecoderSource(r io.Reader, opts ...Option) *DecoderSource {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	lines := &lineReader{r: r, lastDropped: -1}
	dec := json.NewDecoder(lines)
	dec.UseNumber()
	return &DecoderSource{dec: dec, lines: lines, multi: o.multi}
}

func (s *DecoderSource) Next() (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	start, exact := s.tokenStart()
	pos := s.lines.position(start)
	if s.done {
		return Token{Kind: EOF, Pos: pos}, nil
	}

	raw, err := s.dec.Token()
	if err != nil {
		return s.failed(err, pos)
	}
	if n := width(raw); !exact && n > 0 {
		pos = s.lines.position(s.dec.InputOffset() - int64(n))
	}
	if !s.multi && s.docs > 0 && len(s.frames) == 0 {
		s.done = true
		return Token{Kind: Error, Text: "unexpected data after top-level value", Pos: pos}, nil
	}

	switch v := raw.(type) {
	case json.Delim:
		switch v {
		case '{', '[':
			s.beginValue()
			s.frames = append(s.frames, frame{object: v == '{', wantKey: v == '{'})
			if v == '{' {
				return Token{Kind: StartObject, Pos: pos}, nil
			}
			return Token{Kind: StartArray, Pos: pos}, nil
		case '}':
			s.frames = s.frames[:len(s.frames)-1]
			s.endValue()
			return Token{Kind: EndObject, Pos: pos}, nil
		default:
			s.frames = s.frames[:len(s.frames)-1]
			s.endValue()
			return Token{Kind: EndArray, Pos: pos}, nil
		}
	case string:
		if n := len(s.frames); n > 0 && s.frames[n-1].object && s.frames[n-1].wantKey {
			s.frames[n-1].wantKey = false
			return Token{Kind: ObjectKey, Text: v, Pos: pos}, nil
		}
		s.scalar()
		return Token{Kind: String, Text: v, Pos: pos}, nil
	case json.Number:
		s.scalar()
		return Token{Kind: Number, Text: string(v), Pos: pos}, nil
	case bool:
		s.scalar()
		return Token{Kind: Bool, Bool: v, Pos: pos}, nil
	case nil:
		s.scalar()
		return Token{Kind: Null, Pos: pos}, nil
	}
	s.done = true
	return Token{Kind: Error, Text: "unsupported token", Pos: pos}, nil
}

// tokenStart finds where the next token begins. The decoder's own offset
// stops before the whitespace and ':' or ',' that precede it. It is exact
// only when the token has already been buffered.
func (s *DecoderSource) tokenStart() (int64, bool) {
	off := s.dec.InputOffset()
	br, ok := s.dec.Buffered().(io.ByteReader)
	if !ok {
		return off, false
	}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return off, false
		}
		switch b {
		case ' ', '\t', '\n', '\r', ',', ':':
			off++
		default:
			return off, true
		}
	}
}

// width is the encoded length of a token, or 0 for strings whose escapes
// make it unknown.
func width(raw json.Token) int {
	switch v := raw.(type) {
	case json.Delim:
		return 1
	case json.Number:
		return len(v)
	case bool:
		if v {
			return 4
		}
		return 5
	case nil:
		return 4
	}
	return 0
}

func (s *DecoderSource) failed(err error, pos Position) (Token, error) {
	var syntax *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		if len(s.frames) > 0 || (!s.multi && s.docs == 0) {
			return Token{Kind: Error, Text: "unexpected end of input", Pos: pos}, nil
		}
		return Token{Kind: EOF, Pos: pos}, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return Token{Kind: Error, Text: "unexpected end of input", Pos: pos}, nil
	case errors.As(err, &syntax):
		s.done = true
		return Token{Kind: Error, Text: syntax.Error(), Pos: s.lines.position(syntax.Offset)}, nil
	}
	s.err = err
	return Token{}, err
}

func (s *DecoderSource) beginValue() {
	if n := len(s.frames); n > 0 && s.frames[n-1].object {
		s.frames[n-1].wantKey = true
	}
}

func (s *DecoderSource) endValue() {
	if len(s.frames) == 0 {
		s.docs++
	}
}

func (s *DecoderSource) scalar() {
	s.beginValue()
	s.endValue()
}

// lineReader remembers where recent newlines were so byte offsets reported
// by the decoder can be turned into line and column.
type lineReader struct {
	r           io.Reader
	offset      int64
	base        int
	lastDropped int64
	newlines    []int64
}

func (l *lineReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == '\n' {
			l.newlines = append(l.newlines, l.offset+int64(i))
		}
	}
	l.offset += int64(n)
	if len(l.newlines) > lineWindow {
		half := len(l.newlines) / 2
		l.base += half
		l.lastDropped = l.newlines[half-1]
		l.newlines = append(l.newlines[:0], l.newlines[half:]...)
	}
	return n, err
}

func (l *lineReader) position(off int64) Position {
	i, _ := slices.BinarySearch(l.newlines, off)
	start := l.lastDropped + 1
	if i > 0 {
		start = l.newlines[i-1] + 1
	}
	return Position{Line: l.base + i + 1, Col: int(off-start) + 1, Offset: off}
}
