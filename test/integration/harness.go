// Package integration provides integration testing utilities for tsreaper.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agleyzer/tsreaper/pkg/segment"
)

var (
	buildOnce   sync.Once
	builtBinary string
	buildErr    error
)

// TestHarness runs tsreaper binaries against a segment directory.
type TestHarness struct {
	t         *testing.T
	Dir       string
	binary    string
	instances []*Instance
}

// Instance is one running tsreaper process.
type Instance struct {
	ID       string
	HTTPPort int
	RaftAddr string
	Cmd      *exec.Cmd
	Cancel   context.CancelFunc

	exited  chan struct{}
	exitErr error
}

// Wait blocks until the process exits or timeout elapses.
func (i *Instance) Wait(timeout time.Duration) (bool, error) {
	select {
	case <-i.exited:
		return true, i.exitErr
	case <-time.After(timeout):
		return false, nil
	}
}

// NewTestHarness creates a harness with an empty segment directory. The test
// is skipped when no tsreaper binary can be found or built.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:      t,
		Dir:    t.TempDir(),
		binary: findBinary(t),
	}
}

// StartReaper starts a tsreaper process and waits for its status server.
func (h *TestHarness) StartReaper(id string, extra ...string) *Instance {
	h.t.Helper()

	inst := h.StartReaperNoWait(id, extra...)
	h.waitForServer(fmt.Sprintf("http://127.0.0.1:%d/health", inst.HTTPPort), 10*time.Second)
	h.t.Logf("tsreaper %s started, status on port %d", id, inst.HTTPPort)
	return inst
}

// StartReaperNoWait starts a tsreaper process with HLS_CLEANUP=off, a short
// interval and mtime-based orphan aging. extra is appended to the arguments.
func (h *TestHarness) StartReaperNoWait(id string, extra ...string) *Instance {
	h.t.Helper()

	inst := &Instance{
		ID:       id,
		HTTPPort: findAvailablePort(h.t),
		exited:   make(chan struct{}),
	}

	args := []string{
		"-env-file", "",
		"-dir", h.Dir,
		"-interval", "200ms",
		"-time-source", "mtime",
		"-http-addr", fmt.Sprintf("127.0.0.1:%d", inst.HTTPPort),
		"-log-level", "debug",
	}
	args = append(args, extra...)

	ctx, cancel := context.WithCancel(context.Background())
	inst.Cancel = cancel
	inst.Cmd = exec.CommandContext(ctx, h.binary, args...)
	inst.Cmd.Env = append(os.Environ(), "HLS_CLEANUP=off")
	inst.Cmd.Cancel = func() error { return inst.Cmd.Process.Signal(os.Interrupt) }
	inst.Cmd.WaitDelay = 5 * time.Second

	// Capture output for debugging
	inst.Cmd.Stdout = os.Stdout
	inst.Cmd.Stderr = os.Stderr

	if err := inst.Cmd.Start(); err != nil {
		cancel()
		h.t.Fatalf("failed to start tsreaper: %v", err)
	}
	go func() {
		inst.exitErr = inst.Cmd.Wait()
		close(inst.exited)
	}()

	h.instances = append(h.instances, inst)
	return inst
}

// Stop interrupts an instance and waits for it to exit.
func (h *TestHarness) Stop(inst *Instance) error {
	h.t.Helper()

	inst.Cancel()
	exited, err := inst.Wait(10 * time.Second)
	if !exited {
		return fmt.Errorf("instance %s did not exit", inst.ID)
	}
	return err
}

// Cleanup stops all running instances.
func (h *TestHarness) Cleanup() {
	for _, inst := range h.instances {
		_ = h.Stop(inst)
	}
}

// FetchHealth returns the decoded /health document of an instance.
func (h *TestHarness) FetchHealth(inst *Instance) (map[string]any, error) {
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", inst.HTTPPort))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return health, nil
}

// Stats returns the "stats" object of an instance's /health document.
func (h *TestHarness) Stats(inst *Instance) map[string]any {
	health, err := h.FetchHealth(inst)
	if err != nil {
		return nil
	}
	stats, _ := health["stats"].(map[string]any)
	return stats
}

// WriteSegment creates a segment file whose mtime is age in the past.
func (h *TestHarness) WriteSegment(name string, age time.Duration) {
	h.t.Helper()

	path := filepath.Join(h.Dir, name)
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		h.t.Fatalf("failed to write segment: %v", err)
	}
	ts := time.Now().Add(-age)
	if err := os.Chtimes(path, ts, ts); err != nil {
		h.t.Fatalf("failed to set segment times: %v", err)
	}
}

// Exists reports whether name is present in the segment directory.
func (h *TestHarness) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(h.Dir, name))
	return err == nil
}

// Sequences lists the sequence numbers of streamBase's segments on disk.
func (h *TestHarness) Sequences(streamBase string) []uint64 {
	h.t.Helper()

	entries, err := os.ReadDir(h.Dir)
	if err != nil {
		h.t.Fatalf("failed to list directory: %v", err)
	}

	var out []uint64
	for _, e := range entries {
		seg, err := segment.Parse(e.Name())
		if err != nil || seg.StreamBase != streamBase {
			continue
		}
		out = append(out, seg.Sequence)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for condition: %s", description)
		}
		<-ticker.C
	}
}

// waitForServer waits for a server to become available.
func (h *TestHarness) waitForServer(url string, timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	h.t.Fatalf("server at %s did not become available within %v", url, timeout)
}

// findBinary locates a prebuilt tsreaper binary or builds one once per run.
func findBinary(t *testing.T) string {
	t.Helper()

	if path := os.Getenv("TSREAPER_BIN"); path != "" {
		return path
	}

	candidates := []string{
		"../../tsreaper", // From test/integration
		"./tsreaper",     // From project root
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			t.Logf("Found tsreaper binary at: %s", absPath)
			return absPath
		}
	}

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "tsreaper-bin")
		if err != nil {
			buildErr = err
			return
		}
		out := filepath.Join(dir, "tsreaper")
		cmd := exec.Command("go", "build", "-o", out, "./cmd/tsreaper")
		cmd.Dir = "../.."
		if output, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
			return
		}
		builtBinary = out
	})
	if buildErr != nil {
		t.Skipf("tsreaper binary not available: %v", buildErr)
	}
	return builtBinary
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
