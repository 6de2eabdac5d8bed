package schema

import (
	"math"
	"strconv"

	"github.com/siegeai/jch/parser"
)

// nanSentinel is the string some producers write for a float NaN.
const nanSentinel = "NaN"

// Classify maps a scalar token onto the type lattice. Numbers try unsigned,
// then signed, then float; anything that parses as none of them is Unknown.
func Classify(tok parser.Token) SchemaType {
	switch tok.Kind {
	case parser.String:
		if tok.Text == nanSentinel {
			return FloatNumber(math.NaN(), math.NaN())
		}
		return String(uint64(len(tok.Text)))
	case parser.Number:
		return classifyNumber(tok.Text)
	case parser.Bool:
		return Boolean()
	case parser.Null:
		return Null()
	}
	return Unknown(tok.String())
}

func classifyNumber(text string) SchemaType {
	if u, err := strconv.ParseUint(text, 10, 64); err == nil {
		return UnsignedNumber(u)
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return SignedNumber(i, i)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err == nil || isRange(err) {
		return FloatNumber(f, f)
	}
	return Unknown(text)
}

func isRange(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}
