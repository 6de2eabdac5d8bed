package parser

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/creachadair/jtree"
)

type state uint8

const (
	stValue      state = iota // a value is required
	stValueOrEnd              // just after '['
	stKeyOrEnd                // just after '{'
	stKey                     // after ',' inside an object
	stCommaOrEnd
	stDone // top-level value complete
)

const defaultBufferSize = 64 << 10

// maxStalls bounds lexical errors reported at one offset before the
// scanner gives up on the rest of the input.
const maxStalls = 3

type options struct {
	multi   bool
	bufSize int
}

type Option func(*options)

// WithMultipleDocuments accepts a stream of whitespace separated top-level
// values (ndjson) instead of exactly one.
func WithMultipleDocuments() Option {
	return func(o *options) {
		o.multi = true
	}
}

func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// lexeme is one token of the lexical scanner, held until a state consumes it.
type lexeme struct {
	tok  jtree.Token
	text string
	pos  Position
	eof  bool
	err  error
}

var lexNames = map[jtree.Token]string{
	jtree.LBrace:  "'{'",
	jtree.RBrace:  "'}'",
	jtree.LSquare: "'['",
	jtree.RSquare: "']'",
	jtree.Comma:   "','",
	jtree.Colon:   "':'",
	jtree.Integer: "number",
	jtree.Number:  "number",
	jtree.String:  "string",
	jtree.True:    "true",
	jtree.False:   "false",
	jtree.Null:    "null",
}

func (l lexeme) String() string {
	if name, ok := lexNames[l.tok]; ok {
		return name
	}
	return "invalid token"
}

// failReader remembers the first read failure so lexical errors can be told
// apart from a broken reader.
type failReader struct {
	r   io.Reader
	err error
}

func (f *failReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && err != io.EOF && f.err == nil {
		f.err = err
	}
	return n, err
}

// Scanner turns the lexical tokens of a jtree.Scanner into structural
// tokens. It never gives up on bad input: each syntax problem is reported as
// an Error token and scanning resumes at the next lexical token that makes
// sense. Every lexeme is consumed after at most two looks, so the stream
// always ends in EOF.
type Scanner struct {
	rd      *failReader
	lex     *jtree.Scanner
	cur     lexeme
	held    bool
	end     Position
	stack   []byte
	state   state
	multi   bool
	pending []Token
	err     error

	lastErr int64
	stalls  int
	stuck   bool
}

func NewScanner(r io.Reader, opts ...Option) *Scanner {
	o := options{bufSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	rd := &failReader{r: r}
	return &Scanner{
		rd:      rd,
		lex:     jtree.NewScanner(bufio.NewReaderSize(rd, o.bufSize)),
		end:     Position{Line: 1, Col: 1},
		multi:   o.multi,
		lastErr: -1,
	}
}

func (s *Scanner) Next() (Token, error) {
	if len(s.pending) > 0 {
		tok := s.pending[0]
		s.pending = s.pending[1:]
		return tok, nil
	}
	if s.err != nil {
		return Token{}, s.err
	}
	for {
		lx, err := s.peek()
		if err != nil {
			return s.fail(err)
		}
		if lx.eof {
			return s.atEOF(lx.pos), nil
		}
		if lx.err != nil {
			s.drop()
			if s.state == stValue || s.state == stValueOrEnd {
				s.afterValue()
			}
			return s.lexicalError(lx), nil
		}

		switch s.state {
		case stDone:
			if s.multi && !isSeparator(lx.tok) {
				s.state = stValue
				continue
			}
			s.drop()
			return s.errorf(lx.pos, "unexpected data after top-level value"), nil

		case stCommaOrEnd:
			top := s.stack[len(s.stack)-1]
			switch {
			case lx.tok == jtree.Comma:
				s.drop()
				s.state = s.afterComma(top)
				continue
			case lx.tok == jtree.RSquare && top == '[':
				s.drop()
				return s.close(EndArray, lx.pos), nil
			case lx.tok == jtree.RBrace && top == '{':
				s.drop()
				return s.close(EndObject, lx.pos), nil
			case lx.tok == jtree.RSquare || lx.tok == jtree.RBrace:
				s.drop()
				return s.errorf(lx.pos, "mismatched %s", lx), nil
			case lx.tok == jtree.Colon:
				// a ':' in place of ',' still separates two members
				s.drop()
			}
			s.state = s.afterComma(top)
			return s.errorf(lx.pos, "expected ',' or '%c', found %s", closer(top), lx), nil

		case stKeyOrEnd, stKey:
			switch {
			case lx.tok == jtree.String:
				s.drop()
				return s.scanKey(lx)
			case lx.tok == jtree.RBrace && s.state == stKeyOrEnd:
				s.drop()
				return s.close(EndObject, lx.pos), nil
			case lx.tok == jtree.RBrace:
				s.state = stKeyOrEnd
				return s.errorf(lx.pos, "trailing comma in object"), nil
			}
			s.drop()
			return s.errorf(lx.pos, "expected object key, found %s", lx), nil

		default:
			if lx.tok == jtree.RSquare && s.state == stValueOrEnd {
				s.drop()
				return s.close(EndArray, lx.pos), nil
			}
			return s.scanValue(lx), nil
		}
	}
}

// peek returns the held lexeme, reading the next one when nothing is held.
// A lexeme stays held until drop.
func (s *Scanner) peek() (lexeme, error) {
	if s.held {
		return s.cur, nil
	}
	if s.stuck {
		s.cur, s.held = lexeme{eof: true, pos: s.end}, true
		return s.cur, nil
	}
	err := s.lex.Next()
	if s.rd.err != nil {
		return lexeme{}, s.rd.err
	}
	loc := s.lex.Location()
	start := Position{Line: loc.First.Line, Col: loc.First.Column + 1, Offset: int64(loc.Pos)}
	switch {
	case err == io.EOF:
		s.cur = lexeme{eof: true, pos: s.end}
	case err != nil:
		s.cur = lexeme{err: err, pos: start}
	default:
		s.cur = lexeme{tok: s.lex.Token(), pos: start}
		switch s.cur.tok {
		case jtree.String, jtree.Integer, jtree.Number:
			s.cur.text = string(s.lex.Text())
		}
		s.end = Position{Line: loc.Last.Line, Col: loc.Last.Column + 1, Offset: int64(loc.End)}
		s.lastErr, s.stalls = -1, 0
	}
	s.held = true
	return s.cur, nil
}

func (s *Scanner) drop() {
	s.held = false
}

func (s *Scanner) fail(err error) (Token, error) {
	s.err = err
	return Token{}, err
}

func (s *Scanner) lexicalError(lx lexeme) Token {
	if lx.pos.Offset == s.lastErr {
		s.stalls++
	} else {
		s.lastErr, s.stalls = lx.pos.Offset, 0
	}
	if s.stalls < maxStalls {
		return s.errorf(lx.pos, "%v", lx.err)
	}
	s.stuck = true
	s.stack = s.stack[:0]
	s.state = stDone
	return s.errorf(lx.pos, "cannot resume after %v", lx.err)
}

func (s *Scanner) atEOF(pos Position) Token {
	if s.state == stDone || (s.multi && s.state == stValue && len(s.stack) == 0) {
		s.state = stDone
		return Token{Kind: EOF, Pos: pos}
	}
	s.stack = s.stack[:0]
	s.state = stDone
	return s.errorf(pos, "unexpected end of input")
}

func (s *Scanner) scanValue(lx lexeme) Token {
	switch lx.tok {
	case jtree.LBrace:
		s.drop()
		s.stack = append(s.stack, '{')
		s.state = stKeyOrEnd
		return Token{Kind: StartObject, Pos: lx.pos}

	case jtree.LSquare:
		s.drop()
		s.stack = append(s.stack, '[')
		s.state = stValueOrEnd
		return Token{Kind: StartArray, Pos: lx.pos}

	case jtree.String:
		s.drop()
		s.afterValue()
		text, err := unquote(lx.text)
		if err != nil {
			return s.errorf(lx.pos, "%v", err)
		}
		return Token{Kind: String, Text: text, Pos: lx.pos}

	case jtree.Integer, jtree.Number:
		s.drop()
		s.afterValue()
		return Token{Kind: Number, Text: lx.text, Pos: lx.pos}

	case jtree.True, jtree.False:
		s.drop()
		s.afterValue()
		return Token{Kind: Bool, Bool: lx.tok == jtree.True, Pos: lx.pos}

	case jtree.Null:
		s.drop()
		s.afterValue()
		return Token{Kind: Null, Pos: lx.pos}

	case jtree.Colon:
		s.drop()
	}
	// ',' ']' and '}' stay held for stCommaOrEnd
	s.afterValue()
	return s.errorf(lx.pos, "expected value, found %s", lx)
}

// scanKey looks one lexeme past the key for its ':'. A missing colon is
// reported before the key so the value that follows still belongs to it.
func (s *Scanner) scanKey(key lexeme) (Token, error) {
	text, uerr := unquote(key.text)
	s.state = stValue

	var out []Token
	if uerr != nil {
		out = append(out, s.errorf(key.pos, "%v", uerr))
	}
	lx, err := s.peek()
	if err != nil {
		return s.fail(err)
	}
	switch {
	case lx.eof || lx.err != nil:
	case lx.tok == jtree.Colon:
		s.drop()
	default:
		out = append(out, s.errorf(lx.pos, "expected ':' after object key, found %s", lx))
	}
	out = append(out, Token{Kind: ObjectKey, Text: text, Pos: key.pos})
	s.pending = append(s.pending, out[1:]...)
	return out[0], nil
}

func (s *Scanner) close(kind Kind, start Position) Token {
	s.stack = s.stack[:len(s.stack)-1]
	s.afterValue()
	return Token{Kind: kind, Pos: start}
}

func (s *Scanner) afterValue() {
	if len(s.stack) == 0 {
		s.state = stDone
	} else {
		s.state = stCommaOrEnd
	}
}

func (s *Scanner) afterComma(top byte) state {
	if top == '{' {
		return stKey
	}
	return stValue
}

func (s *Scanner) errorf(pos Position, format string, args ...any) Token {
	return Token{Kind: Error, Text: fmt.Sprintf(format, args...), Pos: pos}
}

// unquote decodes the text of a string lexeme. A string that does not decode
// still yields its raw contents.
func unquote(raw string) (string, error) {
	if raw == "" || raw[0] != '"' {
		raw = `"` + raw + `"`
	}
	var text string
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return raw[1 : len(raw)-1], fmt.Errorf("invalid string %s", raw)
	}
	return text, nil
}

func closer(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

// isSeparator reports lexemes that can only follow a value.
func isSeparator(tok jtree.Token) bool {
	switch tok {
	case jtree.Comma, jtree.Colon, jtree.RSquare, jtree.RBrace:
		return true
	}
	return false
}
