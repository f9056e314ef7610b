package worker

// ============================================================================
// Worker Pool Test File
// Purpose: Verify concurrent execution, transaction affinity, graceful shutdown
// ============================================================================

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/falcon-sql/internal/sqlengine"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

type fakeResponder struct {
	mu  sync.Mutex
	got []types.Message
}

func (r *fakeResponder) Respond(m types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
}

func (r *fakeResponder) last() types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return types.Message{}
	}
	return r.got[len(r.got)-1]
}

func stmts(txn types.TxnHint, texts ...string) types.Statements {
	s := types.Statements{Txn: txn}
	for _, text := range texts {
		s.Stmts = append(s.Stmts, types.Stmt{Text: text})
	}
	return s
}

// TestNewPool tests creating a Worker Pool.
func TestNewPool(t *testing.T) {
	pool := NewPool(sqlengine.New(nil), 10, nil)
	assert.NotNil(t, pool)
	assert.Equal(t, 0, pool.GetWorkerCount())
	assert.False(t, pool.IsStarted())
}

// TestPoolStart tests starting a Worker Pool.
func TestPoolStart(t *testing.T) {
	pool := NewPool(sqlengine.New(nil), 10, nil)
	require.NoError(t, pool.Start(4))
	assert.Equal(t, 4, pool.GetWorkerCount())
	assert.True(t, pool.IsStarted())

	err := pool.Start(4)
	assert.Error(t, err, "starting twice should fail")
	pool.Stop()
}

// TestSubmitExecutesAgainstEngine verifies a plain (non-transactional) batch
// runs against the shared engine and reports Ready.
func TestSubmitExecutesAgainstEngine(t *testing.T) {
	engine := sqlengine.New(nil)
	pool := NewPool(engine, 10, nil)
	require.NoError(t, pool.Start(2))
	defer pool.Stop()

	updates := make(chan types.UpdateStateMessage, 4)
	responder := &fakeResponder{}

	job := types.Job{
		ClientID:        1,
		Statements:      stmts(types.TxnNone, "CREATE TABLE t"),
		Responder:       responder,
		SchedulerSender: updates,
	}
	require.NoError(t, pool.Submit(job))

	select {
	case msg := <-updates:
		_, ok := msg.(types.ReadyMessage)
		assert.True(t, ok, "expected ReadyMessage, got %T", msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ReadyMessage")
	}
}

// TestSubmitReportsFailure verifies a statement error is delivered to the
// Responder without crashing the worker.
func TestSubmitReportsFailure(t *testing.T) {
	engine := sqlengine.New(nil)
	pool := NewPool(engine, 10, nil)
	require.NoError(t, pool.Start(1))
	defer pool.Stop()

	updates := make(chan types.UpdateStateMessage, 1)
	responder := &fakeResponder{}

	job := types.Job{
		ClientID:        1,
		Statements:      stmts(types.TxnNone, "SELECT * FROM ghost"),
		Responder:       responder,
		SchedulerSender: updates,
	}
	require.NoError(t, pool.Submit(job))

	<-updates
	last := responder.last()
	assert.Error(t, last.Err)
}

// TestTransactionAffinityTakesOverChannel verifies that opening a
// transaction hands the worker a dedicated channel and the same Conn keeps
// applying batches until the transaction ends.
func TestTransactionAffinityTakesOverChannel(t *testing.T) {
	engine := sqlengine.New(nil)
	pool := NewPool(engine, 10, nil)
	require.NoError(t, pool.Start(2))
	defer pool.Stop()

	setup := make(chan types.UpdateStateMessage, 1)
	require.NoError(t, pool.Submit(types.Job{
		ClientID:        1,
		Statements:      stmts(types.TxnNone, "CREATE TABLE t"),
		Responder:       &fakeResponder{},
		SchedulerSender: setup,
	}))
	<-setup

	updates := make(chan types.UpdateStateMessage, 4)
	begin := types.Job{
		ClientID:        1,
		Statements:      stmts(types.TxnBeginHint, "BEGIN", "INSERT INTO t k1 v=1"),
		Responder:       &fakeResponder{},
		SchedulerSender: updates,
	}
	require.NoError(t, pool.Submit(begin))

	var txnCh chan types.Job
	select {
	case msg := <-updates:
		tb, ok := msg.(types.TxnBeginMessage)
		require.True(t, ok, "expected TxnBeginMessage, got %T", msg)
		txnCh = tb.Channel
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TxnBeginMessage")
	}

	midResponder := &fakeResponder{}
	txnCh <- types.Job{
		ClientID:        1,
		Statements:      stmts(types.TxnNone, "INSERT INTO t k2 v=2"),
		Responder:       midResponder,
		SchedulerSender: updates,
	}
	select {
	case msg := <-updates:
		_, ok := msg.(types.ReadyMessage)
		assert.True(t, ok, "mid-transaction batch should report Ready, got %T", msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mid-transaction Ready")
	}

	commitResponder := &fakeResponder{}
	txnCh <- types.Job{
		ClientID:        1,
		Statements:      stmts(types.TxnEndHint, "COMMIT"),
		Responder:       commitResponder,
		SchedulerSender: updates,
	}
	select {
	case msg := <-updates:
		_, ok := msg.(types.TxnEndedMessage)
		assert.True(t, ok, "expected TxnEndedMessage, got %T", msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TxnEndedMessage")
	}
}

// TestPoolStopDrainsInFlightWorkers ensures Stop waits for running Workers.
func TestPoolStopDrainsInFlightWorkers(t *testing.T) {
	engine := sqlengine.New(nil)
	pool := NewPool(engine, 10, nil)
	require.NoError(t, pool.Start(4))

	updates := make(chan types.UpdateStateMessage, 20)
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(types.Job{
			ClientID:        types.ClientID(i),
			Statements:      stmts(types.TxnNone, "CREATE TABLE t"+string(rune('a'+i))),
			Responder:       &fakeResponder{},
			SchedulerSender: updates,
		}))
	}

	pool.Stop()
	assert.True(t, pool.IsStarted())

	err := pool.Submit(types.Job{ClientID: 99, Responder: &fakeResponder{}, SchedulerSender: updates})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

// TestSubmitBeforeStart fails cleanly.
func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool(sqlengine.New(nil), 1, nil)
	err := pool.Submit(types.Job{ClientID: 1, Responder: &fakeResponder{}})
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}
