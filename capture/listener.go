package capture

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/metrics"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/schema"
	"github.com/siegeai/jch/sender"
)

const (
	Request  = "request"
	Response = "response"
)

// Listener folds the json bodies of captured http traffic into one schema.
// Every body is rooted at ["<METHOD> <route>", "request"|"response"].
type Listener struct {
	source PacketSource
	opts   []handler.Option

	mu        sync.Mutex
	collector *schema.Collector
	routes    map[string]*route
	exchanges int
}

type route struct {
	method   string
	path     string
	params   openapi3.Parameters
	statuses map[int]struct{}
}

func NewListener(source PacketSource, opts ...handler.Option) *Listener {
	return &Listener{
		source:    source,
		opts:      opts,
		collector: schema.NewCollector(),
		routes:    make(map[string]*route),
	}
}

// Run assembles packets until ctx is done or the source runs dry.
func (l *Listener) Run(ctx context.Context) error {
	a := NewAssembler(l)
	defer a.FlushAll()

	packets := l.source.Packets()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-packets:
			if !ok {
				return nil
			}
			a.Assemble(p)
		case <-ticker.C:
			a.FlushOlderThan(time.Now().Add(-2 * time.Minute))
		}
	}
}

func (l *Listener) HandleExchange(ex Exchange) {
	req, res := ex.Request, ex.Response
	slog.Debug("handling", "method", req.Method, "path", req.URL.Path, "status", res.StatusCode)
	if 500 <= res.StatusCode && res.StatusCode < 600 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.exchanges++

	path, params := templateRoute(req.URL.Path)
	key := req.Method + " " + path
	rt, ok := l.routes[key]
	if !ok {
		rt = &route{method: req.Method, path: path, params: params, statuses: make(map[int]struct{})}
		l.routes[key] = rt
	}
	rt.statuses[res.StatusCode] = struct{}{}

	root := jsonpath.New(jsonpath.Key(key))
	if res.StatusCode != 400 {
		l.collect(root, Request, req.Header.Get("Content-Type"), req.Header.Get("Content-Encoding"), ex.RequestBody)
	}
	l.collect(root, Response, res.Header.Get("Content-Type"), res.Header.Get("Content-Encoding"), ex.ResponseBody)
}

func (l *Listener) collect(root jsonpath.Path, direction, contentType, enc string, raw []byte) {
	body, err := decodeBody(enc, raw)
	if err != nil {
		slog.Warn("could not decode body", "direction", direction, "err", err)
		metrics.BodiesTotal.WithLabelValues(direction, "undecodable").Inc()
		return
	}
	if len(body) == 0 {
		metrics.BodiesTotal.WithLabelValues(direction, "empty").Inc()
		return
	}
	if !isJSON(contentType, body) {
		metrics.BodiesTotal.WithLabelValues(direction, "skipped").Inc()
		return
	}

	// bodies keep arriving, so one body ending must not finish the collector
	tx := sender.Func[schema.SchemaType](func(ev sender.Event[schema.SchemaType]) error {
		if ev.Kind == sender.Finished {
			return nil
		}
		return l.collector.Send(ev)
	})
	opts := append([]handler.Option{
		handler.WithRoot(root.Append(jsonpath.Key(direction))),
		handler.WithErrorPolicy(handler.Continue),
	}, l.opts...)

	if err := handler.Traverse[schema.SchemaType](parser.NewScanner(bytes.NewReader(body)), schema.Visitor{}, tx, opts...); err != nil {
		slog.Warn("could not traverse body", "direction", direction, "err", err)
		metrics.BodiesTotal.WithLabelValues(direction, "failed").Inc()
		return
	}
	metrics.BodiesTotal.WithLabelValues(direction, "collected").Inc()
}

func isJSON(contentType string, body []byte) bool {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return mt == "application/json" || strings.HasSuffix(mt, "+json")
		}
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func (l *Listener) Exchanges() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exchanges
}

func (l *Listener) Report(w io.Writer, f schema.Format) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collector.Write(w, f)
}

// Snapshot returns a copy of everything collected so far.
func (l *Listener) Snapshot() *schema.Collector {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := schema.NewCollector()
	c.Merge(l.collector)
	return c
}

// Document renders every route seen so far as an OpenAPI document. Bodies
// of all statuses of a route share one response schema.
func (l *Listener) Document() *openapi3.T {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := &openapi3.T{
		OpenAPI: "3.0.0",
		Info:    &openapi3.Info{Title: "Captured traffic", Version: "0.0.1"},
		Paths:   openapi3.Paths{},
	}
	for key, rt := range l.routes {
		op := openapi3.NewOperation()
		op.Parameters = rt.params
		if s := l.collector.Subtree(key, Request); s != nil {
			op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithJSONSchema(s)}
		}

		op.Responses = openapi3.Responses{}
		body := l.collector.Subtree(key, Response)
		statuses := make([]int, 0, len(rt.statuses))
		for st := range rt.statuses {
			statuses = append(statuses, st)
		}
		slices.Sort(statuses)
		for _, st := range statuses {
			res := openapi3.NewResponse().WithDescription("")
			if body != nil {
				res = res.WithJSONSchema(body)
			}
			op.Responses[strconv.Itoa(st)] = &openapi3.ResponseRef{Value: res}
		}

		item, ok := doc.Paths[rt.path]
		if !ok {
			item = &openapi3.PathItem{}
			doc.Paths[rt.path] = item
		}
		item.SetOperation(rt.method, op)
	}
	return doc
}
