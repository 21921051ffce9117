package cmd

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/spiffcs/deprecator/internal/log"
)

// profiler manages CPU, memory, and trace profiling for a run.
type profiler struct {
	cpuPath   string
	memPath   string
	tracePath string

	cpuFile   *os.File
	traceFile *os.File
}

// newProfiler returns a profiler for the paths in opts. Empty paths disable
// the corresponding profile.
func newProfiler(opts *Options) *profiler {
	return &profiler{
		cpuPath:   opts.CPUProfile,
		memPath:   opts.MemProfile,
		tracePath: opts.Trace,
	}
}

// Start begins CPU profiling and execution tracing if configured.
func (p *profiler) Start() error {
	if p.cpuPath != "" {
		f, err := os.Create(p.cpuPath)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		p.cpuFile = f
	}

	if p.tracePath != "" {
		f, err := os.Create(p.tracePath)
		if err != nil {
			p.stopCPU()
			return fmt.Errorf("could not create trace: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			p.stopCPU()
			return fmt.Errorf("could not start trace: %w", err)
		}
		p.traceFile = f
	}

	return nil
}

// Stop ends all profiling and writes the memory profile if configured.
// Failures are logged; profiling never fails a run.
func (p *profiler) Stop() {
	if p.traceFile != nil {
		trace.Stop()
		if err := p.traceFile.Close(); err != nil {
			log.Warn("could not close trace file", "error", err)
		}
		p.traceFile = nil
	}

	p.stopCPU()

	if p.memPath == "" {
		return
	}
	f, err := os.Create(p.memPath)
	if err != nil {
		log.Warn("could not create memory profile", "error", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn("could not close memory profile", "error", err)
		}
	}()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Warn("could not write memory profile", "error", err)
	}
}

func (p *profiler) stopCPU() {
	if p.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	if err := p.cpuFile.Close(); err != nil {
		log.Warn("could not close CPU profile", "error", err)
	}
	p.cpuFile = nil
}
