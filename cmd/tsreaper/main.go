// The tsreaper command deletes stale HLS transport stream segments from a
// directory written by a live streaming server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agleyzer/tsreaper/internal/cluster"
	"github.com/agleyzer/tsreaper/internal/config"
	"github.com/agleyzer/tsreaper/internal/fstime"
	"github.com/agleyzer/tsreaper/internal/lock"
	"github.com/agleyzer/tsreaper/internal/logging"
	"github.com/agleyzer/tsreaper/internal/metrics"
	"github.com/agleyzer/tsreaper/internal/playlist"
	"github.com/agleyzer/tsreaper/internal/reaper"
	"github.com/agleyzer/tsreaper/internal/retention"
	"github.com/agleyzer/tsreaper/internal/server"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run is the whole command. It returns the process exit code.
func run(ctx context.Context, args []string, lookup config.LookupFunc, stdout, stderr io.Writer) int {
	cfg, err := config.Load("tsreaper", args, lookup, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "tsreaper v%s\n", version)
		return 0
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stdout)

	// A process with nothing to do exits cleanly even when its logging
	// settings are broken.
	if activation := cfg.Activation(); activation != config.ActivationRun {
		if err != nil {
			logger = slog.New(slog.NewTextHandler(stdout, nil))
		}
		if activation == config.ActivationUnset {
			logger.Info("HLS_CLEANUP is not set, exiting")
		} else {
			logger.Info("cleanup is done by nginx process, exiting", "HLS_CLEANUP", cfg.Cleanup)
		}
		return 0
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	logger.Info("tsreaper starting", "version", version)

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("application error", "error", err)
		return 1
	}

	logger.Info("tsreaper stopped")
	return 0
}

// serve wires the reaper and its optional lock, cluster and status server,
// and blocks until ctx is canceled.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.LockFile != "" {
		l, err := lock.AcquirePIDLock(cfg.LockFile)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		defer l.Release()
		logger.Info("acquired instance lock", "path", l.Path())
	}

	source, err := fstime.ParseSource(cfg.TimeSource)
	if err != nil {
		return err
	}

	evaluator := retention.New(playlist.FileLookup{}, fstime.NewClock(source, nil), cfg.OrphanAge)
	m := metrics.New()
	opts := []reaper.Option{reaper.WithMetrics(m)}

	var manager *cluster.Manager
	if cfg.ClusterEnabled() {
		manager, err = cluster.NewManager(cluster.Config{
			RaftID:   cfg.RaftID,
			BindAddr: cfg.RaftBind,
			Peers:    cfg.RaftPeers,
		}, logger.With("component", "cluster"))
		if err != nil {
			return fmt.Errorf("failed to create cluster manager: %w", err)
		}
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cluster: %w", err)
		}
		defer manager.Shutdown()

		opts = append(opts,
			reaper.WithGate(manager),
			reaper.WithReportHook(recordCycle(manager, logger)),
		)
	}

	runner, err := reaper.New(reaper.Config{
		Dir:      cfg.Dir,
		Interval: cfg.Interval,
		Workers:  cfg.Workers,
		DryRun:   cfg.DryRun,
	}, evaluator, logger.With("component", "reaper"), opts...)
	if err != nil {
		return fmt.Errorf("failed to create reaper: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		var srvOpts []server.Option
		if manager != nil {
			srvOpts = append(srvOpts, server.WithCluster(manager))
		}
		srv := server.New(cfg.HTTPAddr, statusProvider(runner, manager), m.Registry(), logger.With("component", "http"), srvOpts...)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	g.Go(func() error {
		runner.Run(gctx)
		return nil
	})

	return g.Wait()
}

// statusProvider merges runner stats with cluster stats when clustered.
func statusProvider(runner *reaper.Runner, manager *cluster.Manager) server.StatusProvider {
	return server.StatusFunc(func() map[string]any {
		stats := runner.Stats()
		if manager != nil {
			stats["cluster"] = manager.Stats()
		}
		return stats
	})
}

// recordCycle replicates each completed cycle while this node leads.
func recordCycle(manager *cluster.Manager, logger *slog.Logger) func(reaper.Report) {
	return func(r reaper.Report) {
		if !manager.IsLeader() {
			return
		}
		if err := manager.RecordCycle(summarize(r, manager.NodeID())); err != nil {
			logger.Warn("failed to replicate cycle summary", "cycle", r.ID, "error", err)
		}
	}
}

func summarize(r reaper.Report, nodeID string) cluster.CycleSummary {
	return cluster.CycleSummary{
		ID:             r.ID,
		NodeID:         nodeID,
		Dir:            r.Dir,
		Finished:       r.Started.Add(r.Duration),
		DryRun:         r.DryRun,
		Scanned:        r.Scanned,
		Deleted:        r.Deleted,
		Kept:           r.Kept,
		Undetermined:   r.Undetermined,
		DeleteFailures: r.DeleteFailures,
		BytesReclaimed: r.BytesReclaimed,
	}
}
