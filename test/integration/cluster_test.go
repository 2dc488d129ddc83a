package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// startCluster launches n reapers that share the harness directory and form
// one raft cluster.
func startCluster(t *testing.T, h *TestHarness, n int) []*Instance {
	t.Helper()

	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("127.0.0.1:%d", findAvailablePort(t))
	}
	peers := strings.Join(addrs, ",")

	nodes := make([]*Instance, n)
	for i := range nodes {
		id := fmt.Sprintf("node%d", i+1)
		nodes[i] = h.StartReaper(id,
			"-raft-id", id,
			"-raft-bind", addrs[i],
			"-raft-peers", peers,
		)
		nodes[i].RaftAddr = addrs[i]
	}
	return nodes
}

func clusterState(stats map[string]any) string {
	c, _ := stats["cluster"].(map[string]any)
	state, _ := c["state"].(string)
	return state
}

func cyclesRecorded(stats map[string]any) float64 {
	c, _ := stats["cluster"].(map[string]any)
	n, _ := c["cycles_recorded"].(float64)
	return n
}

// findLeader waits until exactly one running node is the active leader.
func findLeader(t *testing.T, h *TestHarness, nodes []*Instance, timeout time.Duration) *Instance {
	t.Helper()

	var leader *Instance
	h.WaitForCondition(func() bool {
		leader = nil
		count := 0
		for _, n := range nodes {
			stats := h.Stats(n)
			if stats == nil {
				continue
			}
			if active, _ := stats["active"].(bool); active && clusterState(stats) == "Leader" {
				leader = n
				count++
			}
		}
		return count == 1
	}, timeout, "single active leader")

	return leader
}

// TestClusterSingleActive verifies that only the leader reaps and that its
// cycle summaries reach the followers.
func TestClusterSingleActive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	harness := NewTestHarness(t)
	defer harness.Cleanup()

	nodes := startCluster(t, harness, 3)
	leader := findLeader(t, harness, nodes, 15*time.Second)
	t.Logf("leader is %s", leader.ID)

	for _, n := range nodes {
		if n == leader {
			continue
		}
		stats := harness.Stats(n)
		if active, _ := stats["active"].(bool); active {
			t.Errorf("follower %s must not be active", n.ID)
		}
	}

	harness.WriteSegment("old-1.ts", 2*time.Hour)
	harness.WriteSegment("fresh-1.ts", time.Minute)

	harness.WaitForCondition(func() bool {
		return !harness.Exists("old-1.ts")
	}, 5*time.Second, "expired orphan deleted by leader")

	if !harness.Exists("fresh-1.ts") {
		t.Error("recent orphan must be kept")
	}

	for _, n := range nodes {
		n := n
		harness.WaitForCondition(func() bool {
			return cyclesRecorded(harness.Stats(n)) > 0
		}, 5*time.Second, fmt.Sprintf("cycle summary replicated to %s", n.ID))
	}
}

// TestClusterFailover verifies that a new leader takes over reaping after
// the old one stops.
func TestClusterFailover(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	harness := NewTestHarness(t)
	defer harness.Cleanup()

	nodes := startCluster(t, harness, 3)
	leader := findLeader(t, harness, nodes, 15*time.Second)

	t.Logf("stopping leader %s", leader.ID)
	if err := harness.Stop(leader); err != nil {
		t.Logf("leader exit: %v", err)
	}

	var survivors []*Instance
	for _, n := range nodes {
		if n != leader {
			survivors = append(survivors, n)
		}
	}

	next := findLeader(t, harness, survivors, 20*time.Second)
	t.Logf("new leader is %s", next.ID)

	harness.WriteSegment("after-1.ts", 2*time.Hour)
	harness.WaitForCondition(func() bool {
		return !harness.Exists("after-1.ts")
	}, 5*time.Second, "expired orphan deleted by new leader")

	harness.WaitForCondition(func() bool {
		cycles, _ := harness.Stats(next)["cycles"].(float64)
		return cycles > 0
	}, 5*time.Second, "new leader running cycles")
}
