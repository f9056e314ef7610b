// ============================================================================
// Falcon-SQL Performance Test Suite
// ============================================================================
//
// Package: test/integration
// File: performance_test.go
// Functionality: System-level throughput and crash-recovery timing tests
//
// TestSystemThroughput:
//   submit 500 single-statement batches across many clients and measure
//   statements/second - target: >= 50 statements/s.
//
// TestRecoveryPerformance:
//   submit 500 statements, take a snapshot, stop, then measure how long a
//   fresh Controller takes to recover against the same paths - target:
//   under the 3-second recovery SLA internal/controller logs against.
//
// ============================================================================

package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/ChuLiYu/falcon-sql/internal/controller"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

func TestSystemThroughput(t *testing.T) {
	dir := t.TempDir()
	cfg := controller.Config{
		WorkerCount:      8,
		SnapshotInterval: 30 * time.Second,
		WALPath:          dir + "/wal",
		SnapshotPath:     dir + "/snapshot",
	}

	ctrl, err := controller.New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("failed to start controller: %v", err)
	}
	defer func() {
		close(ctrl.ServerMessages())
		ctrl.Stop()
	}()

	submitAndWait(t, ctrl, 1, "CREATE TABLE t")

	const totalStatements = 500
	start := time.Now()
	for i := 0; i < totalStatements; i++ {
		client := types.ClientID(i%32 + 1)
		msg := submitAndWait(t, ctrl, client, fmt.Sprintf("INSERT INTO t row-%d v=1", i))
		if msg.Err != nil {
			t.Fatalf("statement %d failed: %v", i, msg.Err)
		}
	}
	elapsed := time.Since(start)

	throughput := float64(totalStatements) / elapsed.Seconds()
	t.Logf("=== Throughput ===")
	t.Logf("statements: %d, elapsed: %v, throughput: %.2f stmt/s", totalStatements, elapsed, throughput)

	const expectedThroughput = 50.0
	if throughput < expectedThroughput {
		t.Errorf("throughput %.2f stmt/s below target of %.2f stmt/s", throughput, expectedThroughput)
	}
}

func TestRecoveryPerformance(t *testing.T) {
	dir := t.TempDir()
	cfg := controller.Config{
		WorkerCount:      8,
		SnapshotInterval: 2 * time.Second,
		WALPath:          dir + "/wal",
		SnapshotPath:     dir + "/snapshot",
	}

	ctrl1, err := controller.New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	if err := ctrl1.Start(); err != nil {
		t.Fatalf("failed to start controller: %v", err)
	}

	submitAndWait(t, ctrl1, 1, "CREATE TABLE t")
	for i := 0; i < 500; i++ {
		client := types.ClientID(i%16 + 1)
		submitAndWait(t, ctrl1, client, fmt.Sprintf("INSERT INTO t row-%d v=1", i))
	}

	close(ctrl1.ServerMessages())
	ctrl1.Stop()

	t.Log("simulating crash recovery...")
	start := time.Now()

	ctrl2, err := controller.New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create controller on recovery: %v", err)
	}
	if err := ctrl2.Start(); err != nil {
		t.Fatalf("failed to start controller on recovery: %v", err)
	}
	defer func() {
		close(ctrl2.ServerMessages())
		ctrl2.Stop()
	}()

	recoveryTime := time.Since(start)
	t.Logf("=== Recovery Performance ===")
	t.Logf("recovery time: %v", recoveryTime)

	if recoveryTime > 3*time.Second {
		t.Errorf("recovery time %v exceeds 3s target", recoveryTime)
	}
}
