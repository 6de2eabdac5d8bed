package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni"

	"github.com/siegeai/jch/handler"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/pipeline"
	"github.com/siegeai/jch/schema"
)

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/schema", s.handleSchema()).Methods("POST")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth()).Methods("GET")
	s.router.Use(logMiddleware)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := negroni.NewResponseWriter(w)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", ww.Status(),
			"bytes", ww.Size(),
			"dur", time.Since(start))
	})
}

func (*Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	}
}

var contentTypes = map[schema.Format]string{
	schema.FormatText:    "text/plain; charset=utf-8",
	schema.FormatJSON:    "application/json",
	schema.FormatYAML:    "application/yaml",
	schema.FormatOpenAPI: "application/json",
}

// handleSchema streams the request body through the engine. Syntax errors
// show up inside the report; only a body that cannot be read fails the
// request.
func (s *Server) handleSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format, err := schema.ParseFormat(q.Get("format"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		policy, err := handler.ParsePolicy(q.Get("policy"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ndjson, _ := strconv.ParseBool(q.Get("ndjson"))

		cfg := s.cfg.Pipeline
		cfg.Handler = append(cfg.Handler[:len(cfg.Handler):len(cfg.Handler)], handler.WithErrorPolicy(policy))
		var popts []parser.Option
		if ndjson {
			popts = append(popts, parser.WithMultipleDocuments())
			cfg.Handler = append(cfg.Handler, handler.WithMultipleDocuments())
		}

		body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		c := schema.NewCollector()
		v := schema.Visitor{Match: handler.ParseMatch(q.Get("match"))}
		err = pipeline.Run[schema.SchemaType](r.Context(), cfg, parser.NewScanner(body, popts...), v, c)

		status := http.StatusOK
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		case errors.Is(err, handler.ErrMaxDepth):
			status = http.StatusUnprocessableEntity
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", contentTypes[format])
		w.WriteHeader(status)
		if err := c.Write(w, format); err != nil {
			slog.Warn("could not write report", "err", err)
		}
	}
}
