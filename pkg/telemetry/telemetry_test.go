package telemetry

// Objectives:
// - traces land in per-operation JSONL files with marked steps
// - a detached trace (no initialized subsystem) is safe to finish
// - Close flushes buffered traces

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTraceWriting(t *testing.T) {
	dir := t.TempDir()
	sub, err := New(dir, 4096, 16, 10*time.Millisecond, 1<<20)
	require.NoError(t, err)

	tr := sub.Track("test_op")
	tr.Mark("step_one")
	tr.Mark("step_two")
	tr.Finish()

	// the writer is async; wait for the flush ticker to land the trace
	path := filepath.Join(dir, "test_op.jsonl")
	deadline := time.Now().Add(2 * time.Second)
	var data []byte
	for time.Now().Before(deadline) {
		data, _ = os.ReadFile(path)
		if len(data) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	sub.Close()

	require.NotEmpty(t, data, "trace file should be written")
	var got Trace
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "test_op", got.Name)
	require.GreaterOrEqual(t, len(got.Steps), 2)
	require.Equal(t, "step_one", got.Steps[0].Name)
}

func TestDetachedTraceIsSafe(t *testing.T) {
	require.Nil(t, tel)
	tr := Track("no_subsystem")
	tr.Mark("step")
	tr.Finish() // no-op without a subsystem
}

func TestDoubleCloseIsSafe(t *testing.T) {
	sub, err := New(t.TempDir(), 4096, 16, time.Second, 1<<20)
	require.NoError(t, err)
	sub.Close()
	sub.Close()
}
