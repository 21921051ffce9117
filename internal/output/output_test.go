package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/spiffcs/deprecator/internal/engine"
	"github.com/spiffcs/deprecator/internal/model"
	"github.com/spiffcs/deprecator/internal/report"
)

var now = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func sampleResult(dryRun bool) *engine.Result {
	published := now.AddDate(0, -7, 0)
	return &engine.Result{
		DryRun: dryRun,
		Report: report.Report{"deprecator": {"2.0.0"}},
		Packages: []engine.PackageResult{
			{
				Name:         "deprecator",
				ManifestPath: "package.json",
				Outcomes: []model.Outcome{
					{Entry: model.VersionEntry{Name: "deprecator", Version: "1.0.0", Deprecated: "old"}, Status: model.StatusSkippedAlreadyDeprecated},
					{Entry: model.VersionEntry{Name: "deprecator", Version: "2.0.0", Time: published}, Status: model.StatusDeprecated, Simulated: dryRun, Rules: []string{"majorVersions"}},
					{Entry: model.VersionEntry{Name: "deprecator", Version: "3.0.0"}, Status: model.StatusSkippedNoRuleMatch},
					{Entry: model.VersionEntry{Name: "deprecator", Version: "2.1.0"}, Status: model.StatusFailed, Rules: []string{"all"}, Err: errors.New("exit 1")},
				},
			},
			{
				Name:         "@acme/ui",
				ManifestPath: "packages/ui/package.json",
				Err:          &model.RegistryFetchError{Package: "@acme/ui", StatusCode: 500},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"table", FormatTable, false},
		{"markdown", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("NewFormatter(json) should return a JSONFormatter")
	}
	if _, ok := NewFormatter(FormatTable).(*TableFormatter); !ok {
		t.Error("NewFormatter(table) should return a TableFormatter")
	}
	if _, ok := NewFormatter("").(*TextFormatter); !ok {
		t.Error("NewFormatter(\"\") should return a TextFormatter")
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name   string
		result *engine.Result
		want   string
	}{
		{
			name:   "nothing deprecated",
			result: &engine.Result{Report: report.Report{}},
			want:   "No versions needed to be deprecated.\n",
		},
		{
			name:   "nil result",
			result: nil,
			want:   "No versions needed to be deprecated.\n",
		},
		{
			name:   "deprecated versions",
			result: &engine.Result{Report: report.Report{"b": {"1.0.0"}, "a": {"1.0.0", "2.0.0"}}},
			want:   `We have deprecated the following versions - {"a":["1.0.0","2.0.0"],"b":["1.0.0"]}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&TextFormatter{}).Format(tt.result, &buf); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{Pretty: true}).Format(sampleResult(true), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var got JSONOutput
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if !got.DryRun {
		t.Error("DryRun = false, want true")
	}
	if diff := cmp.Diff(report.Report{"deprecator": {"2.0.0"}}, got.Deprecated); diff != "" {
		t.Errorf("Deprecated mismatch (-want +got):\n%s", diff)
	}
	if len(got.Packages) != 2 {
		t.Fatalf("got %d packages, want 2", len(got.Packages))
	}

	versions := got.Packages[0].Versions
	if len(versions) != 4 {
		t.Fatalf("got %d versions, want 4", len(versions))
	}
	if versions[1].Status != "deprecated" || versions[1].Published == nil || !versions[1].Published.Equal(now.AddDate(0, -7, 0)) {
		t.Errorf("versions[1] = %+v, want deprecated with publish time", versions[1])
	}
	if versions[0].Published != nil {
		t.Error("versions without a publish time should omit it")
	}
	if versions[3].Error != "exit 1" {
		t.Errorf("versions[3].Error = %q, want %q", versions[3].Error, "exit 1")
	}
	if got.Packages[1].Error == "" {
		t.Error("package fetch error should be reported")
	}
}

func TestJSONFormatter_NilResult(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).Format(nil, &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got, want := strings.TrimSpace(buf.String()), `{"dryRun":false,"deprecated":{},"packages":[]}`; got != want {
		t.Errorf("Format() = %s, want %s", got, want)
	}
}

func TestTableFormatter(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	tests := []struct {
		name     string
		dryRun   bool
		contains []string
		excludes []string
	}{
		{
			name:   "wet run",
			dryRun: false,
			contains: []string{
				"Package", "Rules",
				"already deprecated",
				"deprecated",
				"7mo",
				"majorVersions",
				"failed",
				"1 versions deprecated",
				"1 versions failed",
				"1 packages could not be processed",
				"HTTP 500",
			},
			excludes: []string{"3.0.0", "would deprecate"},
		},
		{
			name:     "dry run",
			dryRun:   true,
			contains: []string{"would deprecate", "would be deprecated (dry run)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := &TableFormatter{Now: func() time.Time { return now }}
			if err := f.Format(sampleResult(tt.dryRun), &buf); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("output should not contain %q:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&engine.Result{}, &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got := buf.String(); got != "No packages found.\n" {
		t.Errorf("Format() = %q, want %q", got, "No packages found.\n")
	}
}
