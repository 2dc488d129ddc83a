// Package cluster provides Raft-based leader election for reaper replicas
// sharing one segment directory, and replicates cycle summaries between them.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(RecordCycleCommand{})
	gob.Register(ResetCommand{})
}

// CycleSummary is the replicated outcome of one cleanup cycle.
type CycleSummary struct {
	// ID is the cycle identifier.
	ID string
	// NodeID is the node that ran the cycle.
	NodeID string
	// Dir is the directory that was scanned.
	Dir string
	// Finished is when the cycle completed.
	Finished time.Time
	// DryRun reports whether deletions were only logged.
	DryRun bool

	Scanned        int
	Deleted        int
	Kept           int
	Undetermined   int
	DeleteFailures int
	BytesReclaimed int64
}

// ClusterState represents the shared state across all cluster nodes.
type ClusterState struct {
	// LastCycle is the most recently recorded cycle.
	LastCycle CycleSummary
	// CyclesRecorded is the number of cycles recorded since the last reset.
	CyclesRecorded uint64
	// SegmentsDeleted is the running total of deleted segments.
	SegmentsDeleted uint64
	// BytesReclaimed is the running total of reclaimed bytes.
	BytesReclaimed int64
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandRecordCycle records a completed cycle.
	CommandRecordCycle CommandType = 1
	// CommandReset clears the recorded totals.
	CommandReset CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// RecordCycleCommand carries one cycle summary.
type RecordCycleCommand struct {
	Summary CycleSummary
}

// ResetCommand clears the FSM state.
type ResetCommand struct{}

// ReaperFSM implements the raft.FSM interface for replicated cycle summaries.
type ReaperFSM struct {
	mu     sync.RWMutex
	state  ClusterState
	logger *slog.Logger
}

// NewReaperFSM creates a new ReaperFSM.
func NewReaperFSM(logger *slog.Logger) *ReaperFSM {
	return &ReaperFSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM.
func (f *ReaperFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandRecordCycle:
		return f.applyRecordCycle(cmd.Data)
	case CommandReset:
		f.state = ClusterState{}
		f.logger.Info("reset cluster state")
		return nil
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *ReaperFSM) applyRecordCycle(data any) any {
	recCmd, ok := data.(RecordCycleCommand)
	if !ok {
		return fmt.Errorf("invalid record cycle command data")
	}

	s := recCmd.Summary
	f.state.LastCycle = s
	f.state.CyclesRecorded++
	if s.Deleted > 0 {
		f.state.SegmentsDeleted += uint64(s.Deleted)
	}
	f.state.BytesReclaimed += s.BytesReclaimed

	f.logger.Debug("recorded cycle", "cycle", s.ID, "node", s.NodeID, "deleted", s.Deleted)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *ReaperFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &fsmSnapshot{state: f.state}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *ReaperFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state ClusterState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored FSM state from snapshot", "cycles", state.CyclesRecorded)
	return nil
}

// GetState returns a copy of the current FSM state.
func (f *ReaperFSM) GetState() ClusterState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state ClusterState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
