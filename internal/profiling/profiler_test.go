package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CaptureCPUAndTrace(t *testing.T) {
	dir := t.TempDir()
	cpuPath := filepath.Join(dir, "cpu.prof")
	tracePath := filepath.Join(dir, "trace.out")

	s := NewSession()
	require.NoError(t, s.CaptureCPU(cpuPath))
	require.NoError(t, s.CaptureTrace(tracePath))

	// Burn a little CPU so both captures have samples
	n := 0
	for i := 0; i < 1_000_000; i++ {
		n += i % 7
	}
	_ = n

	require.NoError(t, s.Stop())

	for _, path := range []string{cpuPath, tracePath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), path)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	s := NewSession()
	assert.NoError(t, s.Stop())

	require.NoError(t, s.CaptureCPU(filepath.Join(t.TempDir(), "cpu.prof")))
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestSession_CaptureCPURejectsUnwritablePath(t *testing.T) {
	s := NewSession()
	err := s.CaptureCPU(filepath.Join(t.TempDir(), "missing", "cpu.prof"))
	assert.Error(t, err)
	assert.NoError(t, s.Stop())
}

func TestSnapshotHeap(t *testing.T) {
	keep := make([]byte, 1<<20)
	defer func() { _ = keep }()

	path := filepath.Join(t.TempDir(), "heap.prof")
	require.NoError(t, SnapshotHeap(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
