package schema

import "math"

// Merge widens a by b. It reports false, and returns a unchanged, when the
// two are not the same shape. Merge is commutative and associative so the
// aggregate never depends on arrival order.
func Merge(a, b SchemaType) (SchemaType, bool) {
	if !SameShape(a, b) {
		return a, false
	}
	switch a.Kind {
	case KindString:
		return String(max(a.MaxLen, b.MaxLen)), true
	case KindNumber:
		x, y := a.Number, b.Number
		switch x.Kind {
		case Unsigned:
			return UnsignedNumber(max(x.UMax, y.UMax)), true
		case Signed:
			return SignedNumber(min(x.IMin, y.IMin), max(x.IMax, y.IMax)), true
		case Float:
			return FloatNumber(floatMin(x.FMin, y.FMin), floatMax(x.FMax, y.FMax)), true
		}
	case KindUnknown:
		return Unknown(min(a.Raw, b.Raw)), true
	}
	return a, true
}

// floatMin and floatMax treat NaN as absent; the result is NaN only when
// both sides are.
func floatMin(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	}
	return math.Min(a, b)
}

func floatMax(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	}
	return math.Max(a, b)
}
