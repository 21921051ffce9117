package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spiffcs/deprecator/internal/engine"
	"github.com/spiffcs/deprecator/internal/report"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Pretty bool
}

// JSONOutput is the document written by JSONFormatter.
type JSONOutput struct {
	DryRun     bool          `json:"dryRun"`
	Deprecated report.Report `json:"deprecated"`
	Packages   []JSONPackage `json:"packages"`
}

// JSONPackage describes one processed package.
type JSONPackage struct {
	Name     string        `json:"name"`
	Manifest string        `json:"manifest"`
	Versions []JSONVersion `json:"versions,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// JSONVersion describes the outcome for one version.
type JSONVersion struct {
	Version   string     `json:"version"`
	Status    string     `json:"status"`
	Published *time.Time `json:"published,omitempty"`
	Rules     []string   `json:"rules,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Format implements Formatter.
func (f *JSONFormatter) Format(result *engine.Result, w io.Writer) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(newJSONOutput(result))
}

func newJSONOutput(result *engine.Result) JSONOutput {
	out := JSONOutput{Deprecated: report.Report{}, Packages: []JSONPackage{}}
	if result == nil {
		return out
	}
	out.DryRun = result.DryRun
	if result.Report != nil {
		out.Deprecated = result.Report
	}

	for _, pkg := range result.Packages {
		jp := JSONPackage{Name: pkg.Name, Manifest: pkg.ManifestPath}
		if pkg.Err != nil {
			jp.Error = pkg.Err.Error()
		}
		for _, o := range pkg.Outcomes {
			jv := JSONVersion{
				Version: o.Entry.Version,
				Status:  o.Status.String(),
				Rules:   o.Rules,
			}
			if !o.Entry.Time.IsZero() {
				published := o.Entry.Time
				jv.Published = &published
			}
			if o.Err != nil {
				jv.Error = o.Err.Error()
			}
			jp.Versions = append(jp.Versions, jv)
		}
		out.Packages = append(out.Packages, jp)
	}
	return out
}
