package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/spiffcs/deprecator/internal/engine"
	"github.com/spiffcs/deprecator/internal/format"
	"github.com/spiffcs/deprecator/internal/model"
)

// TableFormatter formats output as a terminal table with one row per
// decided version. Versions no rule matched are left out.
type TableFormatter struct {
	// Now is used to compute ages. Defaults to time.Now.
	Now func() time.Time
}

const (
	colPackage = 30
	colVersion = 16
	colStatus  = 20
	colAge     = 5
	colRules   = 40
)

// Format implements Formatter.
func (f *TableFormatter) Format(result *engine.Result, w io.Writer) error {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}

	if result == nil || len(result.Packages) == 0 {
		fmt.Fprintln(w, "No packages found.")
		return nil
	}

	fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		format.PadRight("Package", colPackage),
		format.PadRight("Version", colVersion),
		format.PadRight("Status", colStatus),
		format.PadRight("Age", colAge),
		"Rules")
	fmt.Fprintln(w, strings.Repeat("-", colPackage+colVersion+colStatus+colAge+colRules+8))

	var deprecated, failed, errored int
	for _, pkg := range result.Packages {
		name := format.PadRight(format.Truncate(pkg.Name, colPackage), colPackage)

		if pkg.Err != nil && len(pkg.Outcomes) == 0 {
			errored++
			fmt.Fprintf(w, "%s  %s  %s\n",
				name,
				format.PadRight("-", colVersion),
				color.RedString(format.Truncate(pkg.Err.Error(), colStatus+colAge+colRules+4)))
			continue
		}

		for _, o := range pkg.Outcomes {
			if o.Status == model.StatusSkippedNoRuleMatch {
				continue
			}
			switch o.Status {
			case model.StatusDeprecated:
				deprecated++
			case model.StatusFailed:
				failed++
			}

			fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
				name,
				format.PadRight(format.Truncate(o.Entry.Version, colVersion), colVersion),
				format.PadRight(colorStatus(o, result.DryRun), colStatus),
				format.PadRight(format.Since(o.Entry.Time, now), colAge),
				format.Truncate(strings.Join(o.Rules, ", "), colRules))
		}
	}

	printFooter(w, result.DryRun, deprecated, failed, errored)
	return nil
}

func colorStatus(o model.Outcome, dryRun bool) string {
	switch o.Status {
	case model.StatusDeprecated:
		if dryRun || o.Simulated {
			return color.CyanString("would deprecate")
		}
		return color.GreenString("deprecated")
	case model.StatusFailed:
		return color.RedString("failed")
	case model.StatusSkippedAlreadyDeprecated:
		return color.HiBlackString("already deprecated")
	default:
		return o.Status.String()
	}
}

func printFooter(w io.Writer, dryRun bool, deprecated, failed, errored int) {
	fmt.Fprintln(w)

	verb := "deprecated"
	if dryRun {
		verb = "would be deprecated (dry run)"
	}
	fmt.Fprintf(w, "  %s %d versions %s\n", color.GreenString("●"), deprecated, verb)
	if failed > 0 {
		fmt.Fprintf(w, "  %s %d versions failed\n", color.RedString("●"), failed)
	}
	if errored > 0 {
		fmt.Fprintf(w, "  %s %d packages could not be processed\n", color.RedString("●"), errored)
	}
}
