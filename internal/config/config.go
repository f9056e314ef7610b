// ============================================================================
// Falcon-SQL Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Function: YAML-backed process configuration, same section layout the
// teacher's internal/cli.Config used (worker/WAL/snapshot/metrics), renamed
// to the SQL domain and extended with the front end's listen address
// (spec §5.5).
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration for a falcon-sql process.
type Config struct {
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Worker struct {
		WorkerCount int `yaml:"worker_count"`
		QueueSize   int `yaml:"queue_size"`
	} `yaml:"worker"`

	WAL struct {
		Dir             string `yaml:"dir"`
		BufferSize      int    `yaml:"buffer_size"`
		FlushIntervalMs int    `yaml:"flush_interval_ms"`
		SyncOnAppend    bool   `yaml:"sync_on_append"`
	} `yaml:"wal"`

	Snapshot struct {
		Dir             string `yaml:"dir"`
		IntervalSeconds int    `yaml:"interval_seconds"`
		RetentionCount  int    `yaml:"retention_count"`
	} `yaml:"snapshot"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Replication struct {
		Enabled bool     `yaml:"enabled"`
		NodeID  string   `yaml:"node_id"`
		Listen  string   `yaml:"listen"`
		Peers   []string `yaml:"peers"`
	} `yaml:"replication"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":5432"
	}
	if c.Worker.WorkerCount <= 0 {
		c.Worker.WorkerCount = 4
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 256
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "data/falcon.wal"
	}
	if c.WAL.BufferSize <= 0 {
		c.WAL.BufferSize = 100
	}
	if c.WAL.FlushIntervalMs <= 0 {
		c.WAL.FlushIntervalMs = 10
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "data/falcon.snapshot.json"
	}
	if c.Snapshot.IntervalSeconds <= 0 {
		c.Snapshot.IntervalSeconds = 60
	}
	if c.Snapshot.RetentionCount <= 0 {
		c.Snapshot.RetentionCount = 3
	}
	if c.Metrics.Port <= 0 {
		c.Metrics.Port = 9090
	}
}

// WALFlushInterval returns the configured flush interval as a time.Duration.
func (c *Config) WALFlushInterval() time.Duration {
	return time.Duration(c.WAL.FlushIntervalMs) * time.Millisecond
}

// SnapshotInterval returns the configured snapshot interval as a
// time.Duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Snapshot.IntervalSeconds) * time.Second
}
