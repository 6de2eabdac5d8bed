package parser

import (
	"fmt"
	"strconv"
)

type Kind uint8

const (
	Invalid Kind = iota
	String
	Number
	Bool
	Null
	StartArray
	EndArray
	StartObject
	EndObject
	ObjectKey
	EOF
	Error
)

var kindNames = [...]string{
	Invalid:     "invalid",
	String:      "string",
	Number:      "number",
	Bool:        "bool",
	Null:        "null",
	StartArray:  "start-array",
	EndArray:    "end-array",
	StartObject: "start-object",
	EndObject:   "end-object",
	ObjectKey:   "object-key",
	EOF:         "eof",
	Error:       "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Position is a 1-based line and column plus the 0-based byte offset.
type Position struct {
	Line   int
	Col    int
	Offset int64
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is one syntactic event of a json stream. Text holds the decoded
// string for String and ObjectKey, the literal text for Number and the
// message for Error.
type Token struct {
	Kind Kind
	Text string
	Bool bool
	Pos  Position
}

func (t Token) IsScalar() bool {
	switch t.Kind {
	case String, Number, Bool, Null:
		return true
	}
	return false
}

func (t Token) String() string {
	switch t.Kind {
	case String, ObjectKey:
		return t.Kind.String() + "(" + strconv.Quote(t.Text) + ")"
	case Number:
		return "number(" + t.Text + ")"
	case Bool:
		return "bool(" + strconv.FormatBool(t.Bool) + ")"
	case Error:
		return "error(" + t.Pos.String() + ": " + t.Text + ")"
	}
	return t.Kind.String()
}

// EventSource yields tokens one at a time. Syntax problems come back as
// Error tokens so a consumer can keep reading; a non-nil error means the
// underlying reader failed and the source is unusable.
type EventSource interface {
	Next() (Token, error)
}
