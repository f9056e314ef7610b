package controller

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

type blockingResponder struct {
	mu   sync.Mutex
	done chan types.Message
}

func newBlockingResponder() *blockingResponder {
	return &blockingResponder{done: make(chan types.Message, 1)}
}

func (r *blockingResponder) Respond(m types.Message) {
	r.done <- m
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		WorkerCount:      2,
		SnapshotInterval: time.Hour,
		WALPath:          filepath.Join(dir, "falcon.wal"),
		SnapshotPath:     filepath.Join(dir, "falcon.snapshot.json"),
	}
}

func TestNewControllerFirstBoot(t *testing.T) {
	c, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NotNil(t, c.Engine())
}

func TestControllerExecutesSubmittedStatements(t *testing.T) {
	c, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer func() {
		close(c.serverMsgs)
		c.Stop()
	}()

	responder := newBlockingResponder()
	c.ServerMessages() <- types.ServerMessage{
		ClientID: 1,
		Action:   types.ExecuteAction{Statements: types.Statements{Stmts: []types.Stmt{{Text: "CREATE TABLE t"}}}},
		Responder: responder,
	}

	select {
	case msg := <-responder.done:
		assert.NoError(t, msg.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CREATE TABLE response")
	}

	responder2 := newBlockingResponder()
	c.ServerMessages() <- types.ServerMessage{
		ClientID: 1,
		Action:   types.ExecuteAction{Statements: types.Statements{Stmts: []types.Stmt{{Text: "INSERT INTO t k1 v=1"}}}},
		Responder: responder2,
	}
	select {
	case msg := <-responder2.done:
		assert.NoError(t, msg.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for INSERT response")
	}
}

func TestControllerSnapshotAndRecoveryRoundTrip(t *testing.T) {
	config := testConfig(t)

	c, err := New(config, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	responder := newBlockingResponder()
	c.ServerMessages() <- types.ServerMessage{
		ClientID: 1,
		Action:   types.ExecuteAction{Statements: types.Statements{Stmts: []types.Stmt{{Text: "CREATE TABLE t"}}}},
		Responder: responder,
	}
	<-responder.done

	responder2 := newBlockingResponder()
	c.ServerMessages() <- types.ServerMessage{
		ClientID: 1,
		Action:   types.ExecuteAction{Statements: types.Statements{Stmts: []types.Stmt{{Text: "INSERT INTO t k1 v=1"}}}},
		Responder: responder2,
	}
	<-responder2.done

	require.NoError(t, c.takeSnapshot())
	close(c.serverMsgs)
	c.Stop()

	// Recover from the snapshot + (now-rotated, empty) WAL into a new Controller.
	c2, err := New(config, nil)
	require.NoError(t, err)
	require.NoError(t, c2.Start())
	defer func() {
		close(c2.serverMsgs)
		c2.Stop()
	}()

	responder3 := newBlockingResponder()
	c2.ServerMessages() <- types.ServerMessage{
		ClientID: 2,
		Action:   types.ExecuteAction{Statements: types.Statements{Stmts: []types.Stmt{{Text: "SELECT * FROM t"}}}},
		Responder: responder3,
	}
	select {
	case msg := <-responder3.done:
		require.NoError(t, msg.Err)
		require.Len(t, msg.Rows, 1)
		assert.Equal(t, "1", msg.Rows[0]["v"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SELECT response after recovery")
	}
}

func TestControllerGracefulShutdownDrainsQueues(t *testing.T) {
	c, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	responder := newBlockingResponder()
	c.ServerMessages() <- types.ServerMessage{
		ClientID: 1,
		Action:   types.ExecuteAction{Statements: types.Statements{Stmts: []types.Stmt{{Text: "CREATE TABLE t"}}}},
		Responder: responder,
	}
	<-responder.done

	close(c.serverMsgs)
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after ServerMessages closed")
	}

	_, err = os.Stat(c.config.SnapshotPath)
	assert.NoError(t, err, "final snapshot should have been written")
}
