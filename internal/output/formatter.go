// Package output renders the result of a deprecation run.
package output

import (
	"fmt"
	"io"

	"github.com/spiffcs/deprecator/internal/engine"
)

// Format represents the output format.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatTable}
}

// ParseFormat validates a format name. An empty name selects text.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, json, or table)", name)
	}
}

// Formatter renders a run result.
type Formatter interface {
	Format(result *engine.Result, w io.Writer) error
}

// NewFormatter creates a formatter for the specified format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatTable:
		return &TableFormatter{}
	default:
		return &TextFormatter{}
	}
}
