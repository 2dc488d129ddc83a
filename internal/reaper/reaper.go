// Package reaper runs the periodic cleanup cycle over an HLS output directory.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agleyzer/tsreaper/internal/metrics"
	"github.com/agleyzer/tsreaper/internal/retention"
	"github.com/agleyzer/tsreaper/pkg/segment"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultInterval is the time between cycle starts.
	DefaultInterval = 15 * time.Second

	candidatePattern = "*" + segment.Ext
)

// Config holds the runner settings.
type Config struct {
	// Dir is the directory scanned for segments (not recursive)
	Dir string

	// Interval is the time between cycles
	Interval time.Duration

	// Workers bounds the number of segments evaluated concurrently
	Workers int

	// DryRun logs deletions without removing files
	DryRun bool
}

// Gate reports whether cleanup is currently this process's responsibility.
type Gate interface {
	Active() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

// Active calls f.
func (f GateFunc) Active() bool { return f() }

// Remover deletes files.
type Remover interface {
	Remove(path string) error
}

// RemoverFunc adapts a function to Remover.
type RemoverFunc func(path string) error

// Remove calls f.
func (f RemoverFunc) Remove(path string) error { return f(path) }

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records every cycle in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithGate consults g before every cycle.
func WithGate(g Gate) Option {
	return func(r *Runner) { r.gate = g }
}

// WithRemover replaces os.Remove.
func WithRemover(rm Remover) Option {
	return func(r *Runner) { r.remover = rm }
}

// WithReportHook calls fn after every completed cycle.
func WithReportHook(fn func(Report)) Option {
	return func(r *Runner) { r.hooks = append(r.hooks, fn) }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner lists candidate segments once per tick and applies retention verdicts.
type Runner struct {
	config    Config
	evaluator *retention.Evaluator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	gate      Gate
	remover   Remover
	hooks     []func(Report)
	now       func() time.Time

	mu     sync.RWMutex
	last   Report
	cycles uint64
}

// New creates a Runner.
func New(config Config, evaluator *retention.Evaluator, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	r := &Runner{
		config:    config,
		evaluator: evaluator,
		logger:    logger,
		gate:      GateFunc(func() bool { return true }),
		remover:   RemoverFunc(os.Remove),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one cycle immediately and then one per interval until ctx is
// canceled. A cycle that outlasts the interval delays the next one; cycles
// never overlap.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("starting cleanup loop",
		"dir", r.config.Dir,
		"interval", r.config.Interval,
		"orphanAge", r.evaluator.OrphanAge(),
		"workers", r.config.Workers,
		"dryRun", r.config.DryRun,
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping cleanup loop")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.gate.Active() {
		r.logger.Debug("cleanup is not this node's responsibility, skipping cycle")
		if r.metrics != nil {
			r.metrics.CycleSkipped()
		}
		return
	}

	if _, err := r.RunCycle(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("cleanup cycle failed", "error", err)
	}
}

// RunCycle evaluates every segment currently in the directory once. Only a
// failure to list the directory, or cancellation, is returned as an error;
// per-segment failures are logged and counted in the report.
func (r *Runner) RunCycle(ctx context.Context) (Report, error) {
	started := r.now()
	report := newReport(uuid.NewString(), r.config.Dir, started, r.config.DryRun)
	logger := r.logger.With("cycle", report.ID)

	candidates, err := r.candidates()
	if err != nil {
		if r.metrics != nil {
			r.metrics.CycleFailed()
		}
		return report, err
	}
	logger.Debug("listed candidates", "dir", r.config.Dir, "count", len(candidates))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for _, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o := r.process(logger, c)
			mu.Lock()
			report.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = r.now().Sub(started)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	r.record(logger, report)
	return report, nil
}

// LastReport returns the most recent completed cycle and the number of
// cycles completed so far.
func (r *Runner) LastReport() (Report, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.cycles
}

// Stats returns runner statistics for the health endpoint.
func (r *Runner) Stats() map[string]any {
	last, cycles := r.LastReport()

	stats := map[string]any{
		"dir":        r.config.Dir,
		"interval":   r.config.Interval.String(),
		"orphan_age": r.evaluator.OrphanAge().String(),
		"dry_run":    r.config.DryRun,
		"active":     r.gate.Active(),
		"cycles":     cycles,
	}
	if cycles > 0 {
		stats["last_cycle"] = last
	}
	return stats
}

func (r *Runner) record(logger *slog.Logger, report Report) {
	r.mu.Lock()
	r.last = report
	r.cycles++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Cycle(report.totals())
	}

	level := slog.LevelDebug
	if report.noisy() {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, "cycle finished",
		"scanned", report.Scanned,
		"deleted", report.Deleted,
		"wouldDelete", report.WouldDelete,
		"kept", report.Kept,
		"undetermined", report.Undetermined,
		"deleteFailures", report.DeleteFailures,
		"bytesReclaimed", report.BytesReclaimed,
		"duration", report.Duration,
	)

	for _, hook := range r.hooks {
		hook(report)
	}
}

// candidate is a segment file found in the directory.
type candidate struct {
	path string
	size int64
}

// candidates lists regular *.ts files directly inside the directory.
func (r *Runner) candidates() ([]candidate, error) {
	entries, err := os.ReadDir(r.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.config.Dir, err)
	}

	var out []candidate
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(candidatePattern, e.Name()); !ok {
			continue
		}

		c := candidate{path: filepath.Join(r.config.Dir, e.Name())}
		if info, err := e.Info(); err == nil {
			c.size = info.Size()
		}
		out = append(out, c)
	}
	return out, nil
}

// process evaluates one candidate and carries out a delete verdict.
func (r *Runner) process(logger *slog.Logger, c candidate) outcome {
	d := r.evaluator.EvaluatePath(c.path)
	o := outcome{decision: d, size: c.size}

	switch d.Verdict {
	case retention.Keep:
		logger.Debug("keeping segment", append([]any{"decision", d.String()}, windowAttrs(d)...)...)

	case retention.Undetermined:
		logger.Warn("keeping segment, fate undetermined",
			"path", c.path,
			"kind", retention.KindOf(d.Err),
			"error", d.Err,
		)

	case retention.Delete:
		if r.config.DryRun {
			logger.Info("would delete segment", append([]any{"path", c.path, "reason", d.Reason}, windowAttrs(d)...)...)
			return o
		}
		if err := r.remover.Remove(c.path); err != nil {
			o.err = &retention.Error{Kind: retention.KindDelete, Path: c.path, Err: err}
			logger.Error("unable to remove segment", "path", c.path, "reason", d.Reason, "error", err)
			return o
		}
		o.removed = true
		attrs := []any{"path", c.path, "reason", d.Reason}
		if d.Reason == retention.ReasonOrphanExpired {
			attrs = append(attrs, "age", d.Age)
		}
		logger.Info("deleted segment", append(attrs, windowAttrs(d)...)...)
	}

	return o
}

// windowAttrs describes the playlist window behind a playlist-rule verdict.
func windowAttrs(d retention.Decision) []any {
	p := d.Playlist
	if p.Path == "" {
		return nil
	}
	return []any{
		"playlist", p.Path,
		"stream", p.StreamBase,
		"minSequence", d.MinSequence,
		"mediaSequence", p.MediaSequence,
		"windowSize", len(p.Sequences),
		"targetDuration", p.TargetDuration,
	}
}
