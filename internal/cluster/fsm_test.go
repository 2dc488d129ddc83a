package cluster

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hashicorp/raft"
)

func recordData(t *testing.T, summary CycleSummary) []byte {
	t.Helper()

	data, err := EncodeCommand(Command{
		Type: CommandRecordCycle,
		Data: RecordCycleCommand{Summary: summary},
	})
	if err != nil {
		t.Fatalf("failed to encode record command: %v", err)
	}
	return data
}

func TestReaperFSM_Apply_RecordCycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewReaperFSM(logger)

	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		summary     CycleSummary
		wantCycles  uint64
		wantDeleted uint64
		wantBytes   int64
	}{
		{"first cycle", CycleSummary{ID: "c1", Deleted: 4, BytesReclaimed: 400, Finished: finished}, 1, 4, 400},
		{"idle cycle", CycleSummary{ID: "c2", Kept: 6, Finished: finished}, 2, 4, 400},
		{"third cycle", CycleSummary{ID: "c3", Deleted: 1, BytesReclaimed: 50, Finished: finished}, 3, 5, 450},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := fsm.Apply(&raft.Log{Data: recordData(t, tt.summary)}); resp != nil {
				t.Fatalf("Apply() = %v, want nil", resp)
			}
			state := fsm.GetState()

			if state.CyclesRecorded != tt.wantCycles {
				t.Errorf("CyclesRecorded = %d, want %d", state.CyclesRecorded, tt.wantCycles)
			}
			if state.SegmentsDeleted != tt.wantDeleted {
				t.Errorf("SegmentsDeleted = %d, want %d", state.SegmentsDeleted, tt.wantDeleted)
			}
			if state.BytesReclaimed != tt.wantBytes {
				t.Errorf("BytesReclaimed = %d, want %d", state.BytesReclaimed, tt.wantBytes)
			}
			if state.LastCycle.ID != tt.summary.ID {
				t.Errorf("LastCycle.ID = %q, want %q", state.LastCycle.ID, tt.summary.ID)
			}
			if !state.LastCycle.Finished.Equal(finished) {
				t.Errorf("LastCycle.Finished = %v, want %v", state.LastCycle.Finished, finished)
			}
		})
	}
}

func TestReaperFSM_Apply_Reset(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewReaperFSM(logger)

	fsm.Apply(&raft.Log{Data: recordData(t, CycleSummary{ID: "c1", Deleted: 2})})

	data, err := EncodeCommand(Command{Type: CommandReset, Data: ResetCommand{}})
	if err != nil {
		t.Fatalf("failed to encode reset command: %v", err)
	}
	fsm.Apply(&raft.Log{Data: data})

	state := fsm.GetState()
	if state.CyclesRecorded != 0 || state.SegmentsDeleted != 0 || state.LastCycle.ID != "" {
		t.Errorf("state after reset = %+v, want zero value", state)
	}
}

func TestReaperFSM_Apply_Invalid(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewReaperFSM(logger)

	if resp := fsm.Apply(&raft.Log{Data: []byte("not gob")}); resp == nil {
		t.Error("Apply() with garbage should return an error")
	}

	data, err := EncodeCommand(Command{Type: 99, Data: ResetCommand{}})
	if err != nil {
		t.Fatalf("failed to encode command: %v", err)
	}
	if resp := fsm.Apply(&raft.Log{Data: data}); resp == nil {
		t.Error("Apply() with unknown command type should return an error")
	}

	data, err = EncodeCommand(Command{Type: CommandRecordCycle, Data: ResetCommand{}})
	if err != nil {
		t.Fatalf("failed to encode command: %v", err)
	}
	if resp := fsm.Apply(&raft.Log{Data: data}); resp == nil {
		t.Error("Apply() with mismatched payload should return an error")
	}
}

func TestReaperFSM_Snapshot_Restore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewReaperFSM(logger)

	fsm.Apply(&raft.Log{Data: recordData(t, CycleSummary{
		ID:             "c1",
		NodeID:         "node1",
		Dir:            "/tmp/hls",
		Scanned:        10,
		Deleted:        3,
		Kept:           7,
		BytesReclaimed: 3000,
	})})

	snapshot, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	var buf bytes.Buffer
	sink := &mockSnapshotSink{buf: &buf}
	if err := snapshot.Persist(sink); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	fsm2 := NewReaperFSM(logger)
	if err := fsm2.Restore(io.NopCloser(&buf)); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	state := fsm2.GetState()
	if state.CyclesRecorded != 1 {
		t.Errorf("CyclesRecorded = %d, want 1", state.CyclesRecorded)
	}
	if state.SegmentsDeleted != 3 {
		t.Errorf("SegmentsDeleted = %d, want 3", state.SegmentsDeleted)
	}
	if state.LastCycle.NodeID != "node1" || state.LastCycle.Dir != "/tmp/hls" {
		t.Errorf("LastCycle = %+v, want node1 in /tmp/hls", state.LastCycle)
	}
	if state.LastCycle.Kept != 7 {
		t.Errorf("LastCycle.Kept = %d, want 7", state.LastCycle.Kept)
	}
}

func TestReaperFSM_GetState_Concurrent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewReaperFSM(logger)

	data := recordData(t, CycleSummary{ID: "c", Deleted: 1})

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = fsm.GetState()
			}
			done <- true
		}()
	}

	go func() {
		for j := 0; j < 50; j++ {
			fsm.Apply(&raft.Log{Data: data})
		}
		done <- true
	}()

	for i := 0; i < 11; i++ {
		<-done
	}

	state := fsm.GetState()
	if state.CyclesRecorded != 50 {
		t.Errorf("CyclesRecorded = %d, want 50", state.CyclesRecorded)
	}
	if state.SegmentsDeleted != 50 {
		t.Errorf("SegmentsDeleted = %d, want 50", state.SegmentsDeleted)
	}
}

// mockSnapshotSink implements raft.SnapshotSink for testing.
type mockSnapshotSink struct {
	buf *bytes.Buffer
}

func (m *mockSnapshotSink) Write(p []byte) (n int, err error) {
	return m.buf.Write(p)
}

func (m *mockSnapshotSink) Close() error {
	return nil
}

func (m *mockSnapshotSink) ID() string {
	return "mock"
}

func (m *mockSnapshotSink) Cancel() error {
	return nil
}
