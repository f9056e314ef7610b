package wal_test

// ============================================================================
// WAL Integration Example
// Demonstrates how internal/sqlengine drives the WAL module.
// ============================================================================

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChuLiYu/falcon-sql/internal/storage/wal"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// Example demonstrates the write-ahead + replay cycle sqlengine.Engine
// performs around every statement and on restart.
func Example() {
	dir, err := os.MkdirTemp("", "wal-example")
	if err != nil {
		fmt.Println("mkdtemp:", err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "falcon.wal")

	w, err := wal.NewWAL(path, false, 1, time.Millisecond)
	if err != nil {
		fmt.Println("new wal:", err)
		return
	}

	// Write-ahead: append before the engine mutates any table.
	if err := w.Append(wal.EventApply, types.ClientID(1), "INSERT INTO t k a=1"); err != nil {
		fmt.Println("append:", err)
		return
	}
	if err := w.Close(); err != nil {
		fmt.Println("close:", err)
		return
	}

	// Restart: replay the WAL to rebuild table state before serving clients.
	w2, err := wal.NewWAL(path, false, 1, time.Millisecond)
	if err != nil {
		fmt.Println("reopen:", err)
		return
	}
	defer w2.Close()

	count := 0
	err = w2.Replay(func(event *wal.Event) error {
		count++
		fmt.Printf("replayed seq=%d type=%s client=%d stmt=%q\n", event.Seq, event.Type, event.ClientID, event.Stmt)
		return nil
	})
	if err != nil {
		fmt.Println("replay:", err)
		return
	}

	// Output:
	// replayed seq=1 type=APPLY client=1 stmt="INSERT INTO t k a=1"
}
