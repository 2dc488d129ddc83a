package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout. Durations are Go duration strings ("15s").
type fileConfig struct {
	Cleanup    *string `yaml:"cleanup"`
	Dir        string  `yaml:"dir"`
	Interval   string  `yaml:"interval"`
	OrphanAge  string  `yaml:"orphan_age"`
	TimeSource string  `yaml:"time_source"`
	Workers    int     `yaml:"workers"`
	DryRun     *bool   `yaml:"dry_run"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	HTTPAddr string `yaml:"http_addr"`
	LockFile string `yaml:"lock_file"`

	Raft struct {
		ID    string   `yaml:"id"`
		Bind  string   `yaml:"bind"`
		Peers []string `yaml:"peers"`
	} `yaml:"raft"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Cleanup != nil {
		c.Cleanup, c.CleanupSet = *fc.Cleanup, true
	}
	if fc.Dir != "" {
		c.Dir = fc.Dir
	}
	if fc.Interval != "" {
		d, err := time.ParseDuration(fc.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q in %s: %w", fc.Interval, path, err)
		}
		c.Interval = d
	}
	if fc.OrphanAge != "" {
		d, err := time.ParseDuration(fc.OrphanAge)
		if err != nil {
			return fmt.Errorf("invalid orphan_age %q in %s: %w", fc.OrphanAge, path, err)
		}
		c.OrphanAge = d
	}
	if fc.TimeSource != "" {
		c.TimeSource = fc.TimeSource
	}
	if fc.Workers != 0 {
		c.Workers = fc.Workers
	}
	if fc.DryRun != nil {
		c.DryRun = *fc.DryRun
	}
	if fc.Log.Level != "" {
		c.LogLevel = fc.Log.Level
	}
	if fc.Log.Format != "" {
		c.LogFormat = fc.Log.Format
	}
	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	if fc.LockFile != "" {
		c.LockFile = fc.LockFile
	}
	if fc.Raft.ID != "" {
		c.RaftID = fc.Raft.ID
	}
	if fc.Raft.Bind != "" {
		c.RaftBind = fc.Raft.Bind
	}
	if len(fc.Raft.Peers) > 0 {
		c.RaftPeers = fc.Raft.Peers
	}

	return nil
}
