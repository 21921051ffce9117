// Package format provides shared text formatting utilities for terminal output.
package format

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/spiffcs/deprecator/internal/constants"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripAnsi removes ANSI color sequences from a string.
func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// DisplayWidth returns the visible width of s in terminal columns, ignoring
// color sequences and counting wide characters as two columns.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(StripAnsi(s))
}

// Truncate shortens s to at most maxWidth columns, ending in "..." when
// anything was cut. Color sequences are dropped from truncated strings.
func Truncate(s string, maxWidth int) string {
	if DisplayWidth(s) <= maxWidth {
		return s
	}
	plain := StripAnsi(s)
	if maxWidth <= constants.TruncationSuffixWidth {
		return runewidth.Truncate(plain, maxWidth, "")
	}
	return runewidth.Truncate(plain, maxWidth, "...")
}

// PadRight pads s with spaces to width visible columns.
func PadRight(s string, width int) string {
	visible := DisplayWidth(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}
