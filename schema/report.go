package schema

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/siegeai/jch/jsonpath"
)

type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatOpenAPI Format = "openapi"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatOpenAPI:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Write renders the report in format f.
func (c *Collector) Write(w io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		return c.WriteJSON(w)
	case FormatYAML:
		return c.WriteYAML(w)
	case FormatOpenAPI:
		return c.WriteOpenAPI(w)
	}
	return c.WriteText(w)
}

// WriteText prints one line per path: the path, then type:count, or a
// bracketed list when more than one shape was seen. Errors follow.
func (c *Collector) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, row := range c.Report() {
		fmt.Fprintf(bw, "%s %s\n", displayPath(row.Path), formatLeaves(row.Leaves))
	}
	for _, e := range c.errors {
		if e.Pos != nil {
			fmt.Fprintf(bw, "error at %s in %s: %s\n", e.Pos, e.Path, e.Message)
		} else {
			fmt.Fprintf(bw, "error in %s: %s\n", e.Path, e.Message)
		}
	}
	return bw.Flush()
}

func displayPath(sp jsonpath.SchemaPath) string {
	if len(sp) == 0 {
		return "."
	}
	return sp.String()
}

func formatLeaves(leaves []Leaf) string {
	if len(leaves) == 1 {
		return leaves[0].String()
	}
	parts := make([]string, len(leaves))
	for i, l := range leaves {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

type reportDoc struct {
	Paths  []rowDoc      `json:"paths" yaml:"paths"`
	Errors []ErrorRecord `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type rowDoc struct {
	Path  string    `json:"path" yaml:"path"`
	Types []leafDoc `json:"types" yaml:"types"`
}

type leafDoc struct {
	Type   string  `json:"type" yaml:"type"`
	Count  uint64  `json:"count" yaml:"count"`
	MaxLen *uint64 `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Min    any     `json:"min,omitempty" yaml:"min,omitempty"`
	Max    any     `json:"max,omitempty" yaml:"max,omitempty"`
	Raw    string  `json:"raw,omitempty" yaml:"raw,omitempty"`
}

func (c *Collector) doc() reportDoc {
	rows := c.Report()
	d := reportDoc{Paths: make([]rowDoc, len(rows)), Errors: c.errors}
	for i, row := range rows {
		rd := rowDoc{Path: displayPath(row.Path), Types: make([]leafDoc, len(row.Leaves))}
		for j, l := range row.Leaves {
			rd.Types[j] = newLeafDoc(l)
		}
		d.Paths[i] = rd
	}
	return d
}

func newLeafDoc(l Leaf) leafDoc {
	t := l.Aggregate
	ld := leafDoc{Type: t.Shape(), Count: l.Count}
	switch t.Kind {
	case KindString:
		n := t.MaxLen
		ld.MaxLen = &n
	case KindNumber:
		switch t.Number.Kind {
		case Unsigned:
			ld.Max = t.Number.UMax
		case Signed:
			ld.Min, ld.Max = t.Number.IMin, t.Number.IMax
		case Float:
			ld.Min, ld.Max = finite(t.Number.FMin), finite(t.Number.FMax)
		}
	case KindUnknown:
		ld.Raw = t.Raw
	}
	return ld
}

// finite drops bounds json cannot represent.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func (c *Collector) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c.doc())
}

func (c *Collector) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.doc()); err != nil {
		return err
	}
	return enc.Close()
}
