package cluster

import (
	"fmt"
	"net"
	"time"
)

// Default timings for a reaper group. Cycles are seconds apart, so elections
// only need to settle well inside one cleanup interval.
const (
	DefaultHeartbeatTimeout  = 1 * time.Second
	DefaultElectionTimeout   = 1 * time.Second
	DefaultSnapshotInterval  = 120 * time.Second
	DefaultSnapshotThreshold = 8192
	DefaultApplyTimeout      = 5 * time.Second
)

// Config describes one reaper's membership in the group sharing a directory.
type Config struct {
	// RaftID names this reaper in logs and cycle summaries.
	RaftID string
	// BindAddr is where this reaper listens for its peers (host:port). It
	// also identifies the reaper in the peer set.
	BindAddr string
	// Peers lists every reaper of the group, this one included.
	Peers []string

	// HeartbeatTimeout is how long a follower waits for the leader before
	// calling an election, which hands cleanup to another reaper.
	HeartbeatTimeout time.Duration
	// ElectionTimeout bounds one election round.
	ElectionTimeout time.Duration
	// SnapshotInterval is how often the cycle history is compacted.
	SnapshotInterval time.Duration
	// SnapshotThreshold is the number of recorded cycles that forces a
	// compaction.
	SnapshotThreshold uint64
	// ApplyTimeout bounds how long recording a cycle may wait on the log.
	ApplyTimeout time.Duration
}

// Validate checks the membership settings and fills in default timings.
func (c *Config) Validate() error {
	switch {
	case c.RaftID == "":
		return fmt.Errorf("raft-id is required")
	case c.BindAddr == "":
		return fmt.Errorf("raft-bind is required")
	case len(c.Peers) == 0:
		return fmt.Errorf("at least one peer is required")
	}

	if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
		return fmt.Errorf("invalid raft-bind address %q: %w", c.BindAddr, err)
	}
	for i, peer := range c.Peers {
		if _, _, err := net.SplitHostPort(peer); err != nil {
			return fmt.Errorf("invalid peer address %d %q: %w", i, peer, err)
		}
	}

	c.HeartbeatTimeout = orDefault(c.HeartbeatTimeout, DefaultHeartbeatTimeout)
	c.ElectionTimeout = orDefault(c.ElectionTimeout, DefaultElectionTimeout)
	c.SnapshotInterval = orDefault(c.SnapshotInterval, DefaultSnapshotInterval)
	c.ApplyTimeout = orDefault(c.ApplyTimeout, DefaultApplyTimeout)
	if c.SnapshotThreshold == 0 {
		c.SnapshotThreshold = DefaultSnapshotThreshold
	}

	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
