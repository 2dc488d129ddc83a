// Package config loads reaper settings from defaults, an optional YAML file,
// the environment (including a .env file) and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agleyzer/tsreaper/internal/fstime"
	"github.com/agleyzer/tsreaper/internal/logging"
	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvCleanup    = "HLS_CLEANUP"
	EnvDir        = "HLS_DIR"
	EnvInterval   = "HLS_REAPER_INTERVAL"
	EnvOrphanAge  = "HLS_REAPER_ORPHAN_AGE"
	EnvTimeSource = "HLS_REAPER_TIME_SOURCE"
	EnvWorkers    = "HLS_REAPER_WORKERS"
	EnvDryRun     = "HLS_REAPER_DRY_RUN"
	EnvLogLevel   = "HLS_REAPER_LOG_LEVEL"
	EnvLogFormat  = "HLS_REAPER_LOG_FORMAT"
	EnvHTTPAddr   = "HLS_REAPER_HTTP_ADDR"
	EnvLockFile   = "HLS_REAPER_LOCK_FILE"
	EnvRaftID     = "HLS_REAPER_RAFT_ID"
	EnvRaftBind   = "HLS_REAPER_RAFT_BIND"
	EnvRaftPeers  = "HLS_REAPER_RAFT_PEERS"
	EnvConfig     = "HLS_REAPER_CONFIG"
)

// CleanupOff is the only HLS_CLEANUP value that enables the reaper.
const CleanupOff = "off"

const defaultEnvFile = ".env"

// Activation is the outcome of the HLS_CLEANUP contract.
type Activation int

const (
	// ActivationRun means HLS_CLEANUP=off: the streaming server does not
	// clean up, so the reaper must.
	ActivationRun Activation = iota
	// ActivationUnset means HLS_CLEANUP is not set at all.
	ActivationUnset
	// ActivationDelegated means the streaming server cleans up itself.
	ActivationDelegated
)

// Config holds all reaper settings.
type Config struct {
	// Cleanup is the HLS_CLEANUP value; CleanupSet reports whether it was given.
	Cleanup    string
	CleanupSet bool

	Dir        string
	Interval   time.Duration
	OrphanAge  time.Duration
	TimeSource string
	Workers    int
	DryRun     bool

	LogLevel  string
	LogFormat string

	// HTTPAddr enables the status server when non-empty.
	HTTPAddr string

	// LockFile enables the single-instance lock when non-empty.
	LockFile string

	RaftID    string
	RaftBind  string
	RaftPeers []string

	// ShowVersion is set by -version.
	ShowVersion bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Dir:        "/tmp/hls",
		Interval:   15 * time.Second,
		OrphanAge:  30 * time.Minute,
		TimeSource: string(fstime.Atime),
		Workers:    1,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Activation applies the HLS_CLEANUP contract.
func (c Config) Activation() Activation {
	switch {
	case !c.CleanupSet:
		return ActivationUnset
	case c.Cleanup == CleanupOff:
		return ActivationRun
	default:
		return ActivationDelegated
	}
}

// ClusterEnabled reports whether any raft setting was provided.
func (c Config) ClusterEnabled() bool {
	return c.RaftID != "" || c.RaftBind != "" || len(c.RaftPeers) > 0
}

// Validate checks the settings a reaper needs to run.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.OrphanAge <= 0 {
		return fmt.Errorf("orphan-age must be positive, got %s", c.OrphanAge)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := fstime.ParseSource(c.TimeSource); err != nil {
		return fmt.Errorf("invalid time-source: %w", err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q", c.LogFormat)
	}
	if c.ClusterEnabled() && (c.RaftID == "" || c.RaftBind == "") {
		return fmt.Errorf("raft-id and raft-bind are required together")
	}
	return nil
}

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load parses args (without the program name) and resolves the final
// configuration. lookup reads the process environment; values from the .env
// file apply only to variables the process environment leaves unset.
// flag.ErrHelp is returned as-is when -h is given.
func Load(name string, args []string, lookup LookupFunc, output io.Writer) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		configPath  = fs.String("config", "", "YAML config file (env "+EnvConfig+")")
		envFile     = fs.String("env-file", defaultEnvFile, "dotenv file; a missing default file is ignored")
		cleanup     = fs.String("cleanup", "", "activation flag, same as "+EnvCleanup+"; only \"off\" runs the reaper")
		dir         = fs.String("dir", cfg.Dir, "segment directory (env "+EnvDir+")")
		interval    = fs.Duration("interval", cfg.Interval, "time between cleanup cycles")
		orphanAge   = fs.Duration("orphan-age", cfg.OrphanAge, "age after which a segment without a playlist is deleted")
		timeSource  = fs.String("time-source", cfg.TimeSource, "file timestamp for orphan age: atime, mtime, ctime or newest")
		workers     = fs.Int("workers", cfg.Workers, "segments evaluated in parallel")
		dryRun      = fs.Bool("dry-run", false, "log deletions without removing files")
		logLevel    = fs.String("log-level", cfg.LogLevel, "debug, info, warn or error")
		logFormat   = fs.String("log-format", cfg.LogFormat, "text or json")
		httpAddr    = fs.String("http-addr", "", "status server address, e.g. :9100 (empty disables)")
		lockFile    = fs.String("lock-file", "", "PID lock file (empty disables)")
		raftID      = fs.String("raft-id", "", "raft node ID (enables cluster mode)")
		raftBind    = fs.String("raft-bind", "", "raft bind address host:port")
		raftPeers   = fs.String("raft-peers", "", "comma-separated raft peer addresses, including this node")
		showVersion = fs.Bool("version", false, "show version and exit")
	)

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	dotenv, err := readEnvFile(*envFile, set["env-file"])
	if err != nil {
		return Config{}, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	path := *configPath
	if !set["config"] {
		path, _ = env(EnvConfig)
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}

	for flagName := range set {
		switch flagName {
		case "cleanup":
			cfg.Cleanup, cfg.CleanupSet = *cleanup, true
		case "dir":
			cfg.Dir = *dir
		case "interval":
			cfg.Interval = *interval
		case "orphan-age":
			cfg.OrphanAge = *orphanAge
		case "time-source":
			cfg.TimeSource = *timeSource
		case "workers":
			cfg.Workers = *workers
		case "dry-run":
			cfg.DryRun = *dryRun
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "http-addr":
			cfg.HTTPAddr = *httpAddr
		case "lock-file":
			cfg.LockFile = *lockFile
		case "raft-id":
			cfg.RaftID = *raftID
		case "raft-bind":
			cfg.RaftBind = *raftBind
		case "raft-peers":
			cfg.RaftPeers = splitList(*raftPeers)
		}
	}
	cfg.ShowVersion = *showVersion

	return cfg, nil
}

// readEnvFile reads a dotenv file without touching the process environment.
func readEnvFile(path string, explicit bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, nil
}

func (c *Config) applyEnv(env LookupFunc) error {
	if v, ok := env(EnvCleanup); ok {
		c.Cleanup, c.CleanupSet = v, true
	}

	str := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvDir, &c.Dir)
	str(EnvTimeSource, &c.TimeSource)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFormat, &c.LogFormat)
	str(EnvHTTPAddr, &c.HTTPAddr)
	str(EnvLockFile, &c.LockFile)
	str(EnvRaftID, &c.RaftID)
	str(EnvRaftBind, &c.RaftBind)

	if v, ok := env(EnvRaftPeers); ok && v != "" {
		c.RaftPeers = splitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvInterval, &c.Interval},
		{EnvOrphanAge, &c.OrphanAge},
	}
	for _, d := range durations {
		v, ok := env(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}

	if v, ok := env(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Workers = n
	}

	if v, ok := env(EnvDryRun); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDryRun, v, err)
		}
		c.DryRun = b
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
