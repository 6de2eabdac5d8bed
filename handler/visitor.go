package handler

import (
	"strings"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
)

// MatchFunc decides whether a leaf path should produce a Value event.
type MatchFunc func(path jsonpath.Path) bool

func MatchAll(jsonpath.Path) bool  { return true }
func MatchNone(jsonpath.Path) bool { return false }

// MatchKeys matches leaves whose key steps, read front to back, start with
// keys. Indices are skipped so "images/thumb" matches every array element.
func MatchKeys(keys ...string) MatchFunc {
	return func(path jsonpath.Path) bool {
		i := 0
		for s := range path.All() {
			if i == len(keys) {
				return true
			}
			if !s.IsKey() {
				continue
			}
			if s.Name() != keys[i] {
				return false
			}
			i++
		}
		return i == len(keys)
	}
}

// ParseMatch turns a slash separated key list into a MatchFunc. The empty
// string and "*" match everything, "-" matches nothing.
func ParseMatch(expr string) MatchFunc {
	switch expr {
	case "", "*":
		return MatchAll
	case "-":
		return MatchNone
	}
	return MatchKeys(strings.Split(strings.Trim(expr, "/"), "/")...)
}

// Plain hands matching tokens through untouched.
type Plain struct {
	Match MatchFunc
}

func (p Plain) MatchPath(path jsonpath.Path) bool {
	if p.Match == nil {
		return true
	}
	return p.Match(path)
}

func (Plain) Convert(_ jsonpath.Path, tok parser.Token) (parser.Token, error) {
	return tok, nil
}

// Paths matches nothing; combined with WithPathEvents it reports every leaf
// path and no values.
type Paths struct{}

func (Paths) MatchPath(jsonpath.Path) bool { return false }

func (Paths) Convert(_ jsonpath.Path, tok parser.Token) (struct{}, error) {
	return struct{}{}, nil
}
