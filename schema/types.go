package schema

import (
	"fmt"
	"strconv"
)

type Kind uint8

const (
	KindString Kind = iota + 1
	KindNumber
	KindBoolean
	KindNull
	KindUnknown
)

type NumberKind uint8

const (
	Unsigned NumberKind = iota + 1
	Signed
	Float
)

func (k NumberKind) String() string {
	switch k {
	case Unsigned:
		return "Unsigned"
	case Signed:
		return "Signed"
	case Float:
		return "Float"
	}
	return "NumberKind(" + strconv.Itoa(int(k)) + ")"
}

// NumberType holds the observed range of one numeric variant. Only the
// fields of Kind are meaningful.
type NumberType struct {
	Kind NumberKind
	UMax uint64
	IMin int64
	IMax int64
	FMin float64
	FMax float64
}

// SchemaType is the type of one leaf value together with its magnitude.
type SchemaType struct {
	Kind   Kind
	MaxLen uint64
	Number NumberType
	Raw    string
}

func String(maxLen uint64) SchemaType {
	return SchemaType{Kind: KindString, MaxLen: maxLen}
}

func UnsignedNumber(max uint64) SchemaType {
	return SchemaType{Kind: KindNumber, Number: NumberType{Kind: Unsigned, UMax: max}}
}

func SignedNumber(min, max int64) SchemaType {
	return SchemaType{Kind: KindNumber, Number: NumberType{Kind: Signed, IMin: min, IMax: max}}
}

func FloatNumber(min, max float64) SchemaType {
	return SchemaType{Kind: KindNumber, Number: NumberType{Kind: Float, FMin: min, FMax: max}}
}

func Boolean() SchemaType {
	return SchemaType{Kind: KindBoolean}
}

func Null() SchemaType {
	return SchemaType{Kind: KindNull}
}

func Unknown(raw string) SchemaType {
	return SchemaType{Kind: KindUnknown, Raw: raw}
}

// SameShape compares the variant, and for numbers the number variant.
// Lengths and ranges never matter.
func SameShape(a, b SchemaType) bool {
	if a.Kind != b.Kind {
		return false
	}
	return a.Kind != KindNumber || a.Number.Kind == b.Number.Kind
}

// Shape names the variant, e.g. "string" or "unsigned".
func (t SchemaType) Shape() string {
	switch t.Kind {
	case KindString:
		return "string"
	case KindNumber:
		switch t.Number.Kind {
		case Unsigned:
			return "unsigned"
		case Signed:
			return "signed"
		case Float:
			return "float"
		}
		return "number"
	case KindBoolean:
		return "boolean"
	case KindNull:
		return "null"
	}
	return "unknown"
}

func (t SchemaType) shapeRank() int {
	switch t.Kind {
	case KindNumber:
		return int(KindNumber)*4 + int(t.Number.Kind)
	default:
		return int(t.Kind) * 4
	}
}

// witness drops magnitudes so that only the shape remains.
func (t SchemaType) witness() SchemaType {
	w := SchemaType{Kind: t.Kind}
	if t.Kind == KindNumber {
		w.Number.Kind = t.Number.Kind
	}
	return w
}

func (t SchemaType) String() string {
	switch t.Kind {
	case KindString:
		return fmt.Sprintf("String(max_len=%d)", t.MaxLen)
	case KindNumber:
		n := t.Number
		switch n.Kind {
		case Unsigned:
			return fmt.Sprintf("Number(Unsigned,max=%d)", n.UMax)
		case Signed:
			return fmt.Sprintf("Number(Signed,min=%d,max=%d)", n.IMin, n.IMax)
		case Float:
			return fmt.Sprintf("Number(Float,min=%s,max=%s)", formatFloat(n.FMin), formatFloat(n.FMax))
		}
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindNull:
		return "Null"
	}
	return fmt.Sprintf("Unknown(%q)", t.Raw)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
