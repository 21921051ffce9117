package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/spiffcs/deprecator/internal/executor"
	"github.com/spiffcs/deprecator/internal/manifest"
	"github.com/spiffcs/deprecator/internal/model"
	"github.com/spiffcs/deprecator/internal/report"
	"github.com/spiffcs/deprecator/internal/rules"
	"github.com/spiffcs/deprecator/internal/selector"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeLocator struct {
	files []manifest.File
	err   error
	calls int
}

func (f *fakeLocator) Locate(context.Context, manifest.Pattern) ([]manifest.File, error) {
	f.calls++
	return f.files, f.err
}

type fakeFetcher struct {
	mu    sync.Mutex
	meta  map[string]*model.ReleaseMetadata
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, name string) (*model.ReleaseMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return f.meta[name], nil
}

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	dirs     map[string]string
	fail     map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, cmd executor.Command, opts executor.RunOptions) (*executor.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd.Args[1])
	if f.dirs == nil {
		f.dirs = map[string]string{}
	}
	f.dirs[cmd.Args[1]] = opts.Dir
	if f.fail[cmd.Args[1]] {
		return &executor.RunResult{ExitCode: 1, Stderr: "npm ERR! code E403"}, nil
	}
	return &executor.RunResult{}, nil
}

func manifests(names ...string) []manifest.File {
	var files []manifest.File
	for i, name := range names {
		path := "package.json"
		if i > 0 {
			path = "packages/" + strings.TrimPrefix(name, "@") + "/package.json"
		}
		files = append(files, manifest.File{Path: path, Content: []byte(`{"name": "` + name + `"}`)})
	}
	return files
}

func deprecatorMeta() *model.ReleaseMetadata {
	return model.NewReleaseMetadata("deprecator", "3.0.1",
		model.VersionEntry{Version: "1.0.0", Time: now.AddDate(0, -30, 0), Deprecated: "This version has been deprecated"},
		model.VersionEntry{Version: "2.0.0", Time: now.AddDate(0, -7, 0)},
		model.VersionEntry{Version: "3.0.0", Time: now.AddDate(0, -2, 0)},
		model.VersionEntry{Version: "3.0.1", Time: now.AddDate(0, -1, 0)},
	)
}

func newEngine(loc manifest.Locator, fetcher Fetcher, runner executor.Runner, opts ...Option) *Engine {
	base := []Option{
		WithLocator(loc),
		WithFetcher(fetcher),
		WithRunner(runner),
		WithSelector(selector.New(rules.DefaultCatalog(), selector.WithClock(func() time.Time { return now }))),
	}
	return New(append(base, opts...)...)
}

func TestDeprecate_NilRules(t *testing.T) {
	loc := &fakeLocator{}
	_, err := newEngine(loc, &fakeFetcher{}, &fakeRunner{}).Deprecate(context.Background(), Config{})

	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("Deprecate() error = %v, want configuration error", err)
	}
	if loc.calls != 0 {
		t.Error("locator should not run for invalid configuration")
	}
}

func TestDeprecate_UnknownRuleBeforeFetch(t *testing.T) {
	loc := &fakeLocator{files: manifests("deprecator")}
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}

	_, err := newEngine(loc, fetcher, &fakeRunner{}).Deprecate(context.Background(), Config{
		Rules: rules.Config{"invalid": ""},
	})

	var unknown *model.UnknownRuleError
	if !errors.As(err, &unknown) || unknown.Rule != "invalid" {
		t.Fatalf("Deprecate() error = %v, want UnknownRuleError for invalid", err)
	}
	if want := "the following rule is not supported by the 'npm' manager - invalid"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if loc.calls != 0 || len(fetcher.calls) != 0 {
		t.Errorf("locator calls = %d, fetches = %d, want none", loc.calls, len(fetcher.calls))
	}
}

func TestDeprecate_AutoDiscover(t *testing.T) {
	loc := &fakeLocator{files: manifests("deprecator")}
	result, err := newEngine(loc, &fakeFetcher{}, &fakeRunner{}).Deprecate(context.Background(), Config{
		Rules:        rules.Config{rules.All: ""},
		AutoDiscover: true,
	})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}
	if !result.Report.Empty() || len(result.Packages) != 0 {
		t.Errorf("Deprecate() = %+v, want empty result", result)
	}
	if loc.calls != 0 {
		t.Error("locator should not run when auto discovering")
	}
}

func TestDeprecate_EmptyRules(t *testing.T) {
	runner := &fakeRunner{}
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}

	result, err := newEngine(&fakeLocator{files: manifests("deprecator")}, fetcher, runner).
		Deprecate(context.Background(), Config{Rules: rules.Config{}})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}
	if diff := cmp.Diff(report.Report{}, result.Report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
	if len(runner.commands) != 0 {
		t.Errorf("runner called %d times, want 0", len(runner.commands))
	}
}

func TestDeprecate_DryRunMatchesWetRun(t *testing.T) {
	cfg := Config{Rules: rules.Config{rules.MajorVersions: "6", rules.PatchVersions: ""}}

	run := func(dryRun bool) (*Result, *fakeRunner) {
		t.Helper()
		runner := &fakeRunner{}
		fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}
		c := cfg
		c.DryRun = dryRun
		result, err := newEngine(&fakeLocator{files: manifests("deprecator")}, fetcher, runner).Deprecate(context.Background(), c)
		if err != nil {
			t.Fatalf("Deprecate(dryRun=%v) error = %v", dryRun, err)
		}
		return result, runner
	}

	dry, dryRunner := run(true)
	wet, wetRunner := run(false)

	want := report.Report{"deprecator": {"2.0.0", "3.0.0"}}
	if diff := cmp.Diff(want, dry.Report); diff != "" {
		t.Errorf("dry run report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(dry.Report, wet.Report); diff != "" {
		t.Errorf("dry and wet reports differ (-dry +wet):\n%s", diff)
	}
	if len(dryRunner.commands) != 0 {
		t.Errorf("dry run invoked runner %d times, want 0", len(dryRunner.commands))
	}
	if diff := cmp.Diff([]string{"deprecator@2.0.0", "deprecator@3.0.0"}, sortedCopy(wetRunner.commands)); diff != "" {
		t.Errorf("wet run commands mismatch (-want +got):\n%s", diff)
	}
	if !dry.DryRun || wet.DryRun {
		t.Errorf("DryRun flags = %v/%v, want true/false", dry.DryRun, wet.DryRun)
	}
}

func TestDeprecate_Outcomes(t *testing.T) {
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}
	result, err := newEngine(&fakeLocator{files: manifests("deprecator")}, fetcher, &fakeRunner{}).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.PatchVersions: ""}, DryRun: true})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}

	type row struct {
		Version   string
		Status    model.OutcomeStatus
		Simulated bool
		Rules     []string
	}
	var got []row
	for _, o := range result.Packages[0].Outcomes {
		got = append(got, row{o.Entry.Version, o.Status, o.Simulated, o.Rules})
	}
	want := []row{
		{"1.0.0", model.StatusSkippedAlreadyDeprecated, false, nil},
		{"2.0.0", model.StatusSkippedNoRuleMatch, false, nil},
		{"3.0.0", model.StatusDeprecated, true, []string{"patchVersions"}},
		{"3.0.1", model.StatusSkippedNoRuleMatch, false, nil},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecate_RegistryFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()},
		errs: map[string]error{"broken": &model.RegistryFetchError{Package: "broken", StatusCode: 500}},
	}
	runner := &fakeRunner{}

	result, err := newEngine(&fakeLocator{files: manifests("deprecator", "broken")}, fetcher, runner).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.All: ""}})

	var fetchErr *model.RegistryFetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != 500 {
		t.Fatalf("Deprecate() error = %v, want RegistryFetchError with status 500", err)
	}
	want := report.Report{"deprecator": {"2.0.0", "3.0.0", "3.0.1"}}
	if diff := cmp.Diff(want, result.Report); diff != "" {
		t.Errorf("sibling package report mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecate_UntypedFetchErrorIsWrapped(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{"deprecator": errors.New("connection reset")}}

	_, err := newEngine(&fakeLocator{files: manifests("deprecator")}, fetcher, &fakeRunner{}).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.All: ""}})
	if !errors.Is(err, model.ErrRegistryFetch) {
		t.Errorf("Deprecate() error = %v, want registry fetch error", err)
	}
}

func TestDeprecate_PartialExecutionFailure(t *testing.T) {
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}
	runner := &fakeRunner{fail: map[string]bool{"deprecator@3.0.0": true}}

	result, err := newEngine(&fakeLocator{files: manifests("deprecator")}, fetcher, runner).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.All: ""}})

	if !errors.Is(err, model.ErrExecution) {
		t.Fatalf("Deprecate() error = %v, want execution error", err)
	}
	if !strings.Contains(err.Error(), "deprecator@3.0.0") {
		t.Errorf("error %q should name deprecator@3.0.0", err.Error())
	}
	want := report.Report{"deprecator": {"2.0.0", "3.0.1"}}
	if diff := cmp.Diff(want, result.Report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecate_SkipsNamelessAndDuplicateManifests(t *testing.T) {
	files := append(manifests("deprecator"),
		manifest.File{Path: "tools/package.json", Content: []byte(`{"private": true}`)},
		manifest.File{Path: "copy/package.json", Content: []byte(`{"name": "deprecator"}`)},
		manifest.File{Path: "bad/package.json", Content: []byte(`{`)},
	)
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}

	result, err := newEngine(&fakeLocator{files: files}, fetcher, &fakeRunner{}).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.PatchVersions: ""}, DryRun: true})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"deprecator"}, fetcher.calls); diff != "" {
		t.Errorf("fetches mismatch (-want +got):\n%s", diff)
	}
	if len(result.Packages) != 1 {
		t.Errorf("got %d package results, want 1", len(result.Packages))
	}
}

func TestDeprecate_LocatorError(t *testing.T) {
	boom := errors.New("permission denied")
	_, err := newEngine(&fakeLocator{err: boom}, &fakeFetcher{}, &fakeRunner{}).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.All: ""}})
	if !errors.Is(err, boom) {
		t.Errorf("Deprecate() error = %v, want locator error", err)
	}
}

func TestDeprecate_MissingLatestIsPerPackage(t *testing.T) {
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{
		"deprecator": deprecatorMeta(),
		"untagged":   model.NewReleaseMetadata("untagged", "", model.VersionEntry{Version: "1.0.0"}),
	}}

	result, err := newEngine(&fakeLocator{files: manifests("deprecator", "untagged")}, fetcher, &fakeRunner{}).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.PatchVersions: ""}, DryRun: true})

	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("Deprecate() error = %v, want configuration error", err)
	}
	if diff := cmp.Diff(report.Report{"deprecator": {"3.0.0"}}, result.Report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecate_Progress(t *testing.T) {
	fetcher := &fakeFetcher{
		meta: map[string]*model.ReleaseMetadata{"a": model.NewReleaseMetadata("a", "1.0.0", model.VersionEntry{Version: "1.0.0"})},
		errs: map[string]error{"b": errors.New("down")},
	}

	var mu sync.Mutex
	last := map[Stage][2]int{}
	progress := func(stage Stage, completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		last[stage] = [2]int{completed, total}
	}

	_, _ = newEngine(&fakeLocator{files: manifests("a", "b")}, fetcher, &fakeRunner{}, WithProgress(progress)).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.All: ""}, Concurrency: 1})

	want := map[Stage][2]int{
		StageLocate:    {1, 1},
		StageFetch:     {2, 2},
		StageSelect:    {2, 2},
		StageDeprecate: {2, 2},
	}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("final progress mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecate_ProgressIsSerialized(t *testing.T) {
	const count = 24
	var names []string
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{}}
	for i := range count {
		name := fmt.Sprintf("pkg-%02d", i)
		names = append(names, name)
		fetcher.meta[name] = model.NewReleaseMetadata(name, "1.0.1",
			model.VersionEntry{Version: "1.0.0"},
			model.VersionEntry{Version: "1.0.1"},
		)
	}

	var inFlight, overlaps int32
	// unguarded on purpose: calls must not overlap
	seen := map[Stage][]int{}
	progress := func(stage Stage, completed, _ int) {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(50 * time.Microsecond)
		seen[stage] = append(seen[stage], completed)
		atomic.AddInt32(&inFlight, -1)
	}

	_, err := newEngine(&fakeLocator{files: manifests(names...)}, fetcher, &fakeRunner{}, WithProgress(progress)).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.PatchVersions: ""}, Concurrency: 8})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}

	if overlaps != 0 {
		t.Errorf("progress callback ran concurrently %d times", overlaps)
	}
	for _, stage := range []Stage{StageFetch, StageSelect, StageDeprecate} {
		counts := seen[stage]
		if !slices.IsSorted(counts) {
			t.Errorf("%s counts = %v, want non-decreasing", stage, counts)
		}
		if len(counts) == 0 || counts[len(counts)-1] != count {
			t.Errorf("%s final count = %v, want %d", stage, counts, count)
		}
	}
}

func TestDeprecate_RunsInManifestDirectory(t *testing.T) {
	root := t.TempDir()
	write := func(rel, name string) {
		t.Helper()
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(`{"name": "`+name+`"}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("package.json", "deprecator")
	write("packages/ui/package.json", "@acme/ui")

	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{
		"deprecator": deprecatorMeta(),
		"@acme/ui":   model.NewReleaseMetadata("@acme/ui", "2.0.1", model.VersionEntry{Version: "2.0.0"}, model.VersionEntry{Version: "2.0.1"}),
	}}
	runner := &fakeRunner{}

	_, err := newEngine(manifest.DiskLocator{Root: root}, fetcher, runner).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.PatchVersions: ""}})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}

	want := map[string]string{
		"deprecator@3.0.0": root,
		"@acme/ui@2.0.0":   filepath.Join(root, "packages", "ui"),
	}
	if diff := cmp.Diff(want, runner.dirs); diff != "" {
		t.Errorf("command directories mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecate_RemoteManifestsRunInCurrentDirectory(t *testing.T) {
	fetcher := &fakeFetcher{meta: map[string]*model.ReleaseMetadata{"deprecator": deprecatorMeta()}}
	runner := &fakeRunner{}

	_, err := newEngine(&fakeLocator{files: manifests("deprecator")}, fetcher, runner).
		Deprecate(context.Background(), Config{Rules: rules.Config{rules.PatchVersions: ""}})
	if err != nil {
		t.Fatalf("Deprecate() error = %v", err)
	}
	if diff := cmp.Diff(map[string]string{"deprecator@3.0.0": ""}, runner.dirs); diff != "" {
		t.Errorf("command directories mismatch (-want +got):\n%s", diff)
	}
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
