package schema

import (
	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/sender"
)

// Visitor classifies leaves in the producer, so only the small SchemaType
// crosses a queue.
type Visitor struct {
	Match handler.MatchFunc
}

func (v Visitor) MatchPath(path jsonpath.Path) bool {
	if v.Match == nil {
		return true
	}
	return v.Match(path)
}

func (Visitor) Convert(_ jsonpath.Path, tok parser.Token) (SchemaType, error) {
	return Classify(tok), nil
}

// TokenCollector feeds raw tokens into c, classifying in the consumer.
func TokenCollector(c *Collector) sender.Sender[parser.Token] {
	return sender.Map[parser.Token, SchemaType](c, func(tok parser.Token) (SchemaType, error) {
		return Classify(tok), nil
	})
}
