// Package render writes command results as json, yaml or a table. The
// format only affects presentation; views carry no logic of their own.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var ErrUnknownFormat = errors.New("render: unknown output format")

var allFormats = []Format{FormatTable, FormatWide, FormatJSON, FormatYAML}

// Formats lists the accepted --output values.
func Formats() []string {
	out := make([]string, len(allFormats))
	for i, f := range allFormats {
		out[i] = string(f)
	}
	return out
}

// ParseFormat validates an --output value. Empty means table.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	if f == "" {
		return FormatTable, nil
	}
	for _, known := range allFormats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, raw, strings.Join(Formats(), ", "))
}

// View renders as a table. wide adds detail columns.
type View interface {
	Header(wide bool) table.Row
	Rows(wide bool) []table.Row
}

// Dataer supplies the value encoded for json and yaml when it differs
// from the view itself.
type Dataer interface {
	Data() any
}

// Write encodes v to w in format.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON, FormatYAML:
		if d, ok := v.(Dataer); ok {
			v = d.Data()
		}
		if format == FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, FormatWide:
		view, ok := v.(View)
		if !ok {
			return fmt.Errorf("render: %T has no table form", v)
		}
		writeTable(w, view, format == FormatWide)
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

func writeTable(w io.Writer, v View, wide bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(v.Header(wide))
	for _, row := range v.Rows(wide) {
		t.AppendRow(row)
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}

// orNone keeps empty cells visible.
func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
