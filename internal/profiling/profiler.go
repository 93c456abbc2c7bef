// Package profiling wires the root --profile-* flags to runtime/pprof
// and runtime/trace.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// A Session collects the captures started for one command invocation.
// Captures begin with the Capture* methods and all end together in Stop.
type Session struct {
	stops []func() error
}

func NewSession() *Session {
	return &Session{}
}

// CaptureCPU streams a CPU profile to path until Stop.
func (s *Session) CaptureCPU(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cpu profile %s: %w", path, err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	s.stops = append(s.stops, func() error {
		pprof.StopCPUProfile()
		return f.Close()
	})
	return nil
}

// CaptureTrace streams a runtime execution trace to path until Stop.
func (s *Session) CaptureTrace(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file %s: %w", path, err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("start trace: %w", err)
	}
	s.stops = append(s.stops, func() error {
		trace.Stop()
		return f.Close()
	})
	return nil
}

// Stop ends every active capture in reverse start order. Safe to call
// when nothing was started, and safe to call twice.
func (s *Session) Stop() error {
	var errs []error
	for i := len(s.stops) - 1; i >= 0; i-- {
		if err := s.stops[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.stops = nil
	return errors.Join(errs...)
}

// SnapshotHeap writes a point-in-time heap profile to path. The runtime
// is garbage-collected first so the snapshot reflects live objects.
func SnapshotHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
