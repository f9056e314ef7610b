package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "falcon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "worker:\n  worker_count: 8\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Worker.WorkerCount)
	assert.Equal(t, ":5432", cfg.Server.ListenAddr)
	assert.Equal(t, 256, cfg.Worker.QueueSize)
	assert.Equal(t, 60, cfg.Snapshot.IntervalSeconds)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9999"
worker:
  worker_count: 2
  queue_size: 64
wal:
  dir: "/tmp/w.wal"
  buffer_size: 50
  flush_interval_ms: 5
  sync_on_append: true
snapshot:
  dir: "/tmp/s.json"
  interval_seconds: 30
  retention_count: 5
metrics:
  enabled: true
  port: 1234
replication:
  enabled: true
  node_id: "node-1"
  listen: ":7000"
  peers: ["node-2:7000", "node-3:7000"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, 64, cfg.Worker.QueueSize)
	assert.True(t, cfg.WAL.SyncOnAppend)
	assert.Equal(t, 5, cfg.WAL.FlushIntervalMs)
	assert.Equal(t, 5, cfg.Snapshot.RetentionCount)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 1234, cfg.Metrics.Port)
	assert.True(t, cfg.Replication.Enabled)
	assert.Equal(t, []string{"node-2:7000", "node-3:7000"}, cfg.Replication.Peers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
