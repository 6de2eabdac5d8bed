package valuer

import (
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
)

// Visitor turns matching leaves into generic JSON values.
type Visitor struct {
	Match handler.MatchFunc
}

func (v Visitor) MatchPath(path jsonpath.Path) bool {
	if v.Match == nil {
		return true
	}
	return v.Match(path)
}

// Convert allocates from a fresh arena so a value stays valid after it was
// handed to another goroutine.
func (Visitor) Convert(_ jsonpath.Path, tok parser.Token) (*fastjson.Value, error) {
	var a fastjson.Arena
	return FromToken(&a, tok)
}

func FromToken(a *fastjson.Arena, tok parser.Token) (*fastjson.Value, error) {
	switch tok.Kind {
	case parser.String:
		return a.NewString(tok.Text), nil
	case parser.Number:
		return a.NewNumberString(tok.Text), nil
	case parser.Bool:
		if tok.Bool {
			return a.NewTrue(), nil
		}
		return a.NewFalse(), nil
	case parser.Null:
		return a.NewNull(), nil
	}
	return nil, fmt.Errorf("not a scalar: %s", tok.Kind)
}
