package logger

import "testing"

// Counters are process-global, so every assertion works on deltas.
func TestPipelineCounters(t *testing.T) {
	before := SnapshotCounters()

	IncrementFrameRead(100)
	IncrementFrameRead(50)
	IncrementFrameDropped()
	IncrementPublished()

	after := SnapshotCounters()
	if got := after.FramesRead - before.FramesRead; got != 2 {
		t.Errorf("frames read delta = %d, want 2", got)
	}
	if got := after.FrameBytes - before.FrameBytes; got != 150 {
		t.Errorf("frame bytes delta = %d, want 150", got)
	}
	if got := after.FramesDropped - before.FramesDropped; got != 1 {
		t.Errorf("frames dropped delta = %d, want 1", got)
	}
	if got := after.Published - before.Published; got != 1 {
		t.Errorf("published delta = %d, want 1", got)
	}
}

func TestSinkCounters(t *testing.T) {
	before := SnapshotCounters()

	IncrementSinkWrite("test_sink", 256)
	IncrementSinkWrite("test_sink", 256)
	IncrementSinkDrop("test_sink")

	after := SnapshotCounters()
	if got := after.SinkWrites["test_sink"] - before.SinkWrites["test_sink"]; got != 2 {
		t.Errorf("sink writes delta = %d, want 2", got)
	}
	if got := after.SinkBytes["test_sink"] - before.SinkBytes["test_sink"]; got != 512 {
		t.Errorf("sink bytes delta = %d, want 512", got)
	}
	if got := after.SinkDrops["test_sink"] - before.SinkDrops["test_sink"]; got != 1 {
		t.Errorf("sink drops delta = %d, want 1", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	snap := SnapshotCounters()
	snap.SinkWrites["mutated"] = 99

	if _, ok := SnapshotCounters().SinkWrites["mutated"]; ok {
		t.Error("mutating a snapshot must not affect live counters")
	}
}
