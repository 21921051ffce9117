package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spiffcs/deprecator/internal/engine"
)

// TextFormatter prints a single summary line.
type TextFormatter struct{}

// Format implements Formatter.
func (f *TextFormatter) Format(result *engine.Result, w io.Writer) error {
	if result == nil || result.Report.Empty() {
		_, err := fmt.Fprintln(w, "No versions needed to be deprecated.")
		return err
	}

	data, err := json.Marshal(result.Report)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "We have deprecated the following versions - %s\n", data)
	return err
}
