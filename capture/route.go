package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

// templateRoute replaces numeric and uuid path segments with {argN} so
// requests for different ids share one route, and describes each argument
// as a path parameter.
func templateRoute(path string) (string, openapi3.Parameters) {
	var params openapi3.Parameters
	nparams := 1
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		var sch *openapi3.Schema
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			sch = openapi3.NewIntegerSchema()
		} else if _, err := uuid.Parse(p); err == nil {
			sch = openapi3.NewStringSchema().WithFormat("uuid")
		} else {
			continue
		}
		name := fmt.Sprintf("arg%d", nparams)
		parts[i] = "{" + name + "}"
		params = append(params, &openapi3.ParameterRef{Value: openapi3.NewPathParameter(name).WithSchema(sch)})
		nparams++
	}
	return strings.Join(parts, "/"), params
}
