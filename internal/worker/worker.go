// ============================================================================
// Falcon-SQL Worker - Statement Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Executes one client's Statements batch against the shared
// sqlengine.Engine, and reports the outcome back to the scheduler that
// dispatched it (spec §4.6).
//
// How it works:
//   Each Worker is an independent goroutine running:
//     for job := range taskCh:
//       conn := engine.NewConn()
//       msg, _ := conn.Execute(job.ClientID, job.Statements)
//       job.Responder.Respond(msg)
//       report state back to job.SchedulerSender
//
// Transaction affinity:
//   A batch that opens a transaction (Txn == TxnBeginHint) is not handed
//   back to the shared pool afterwards - this Worker creates a dedicated
//   channel, posts TxnBeginMessage carrying it, and then drains that
//   channel itself until the matching commit/rollback batch arrives,
//   reusing the same Conn so the transaction's shadow buffer survives
//   across calls (§4.6, §9 "cyclic handle"). Every other batch - including
//   statements inside the transaction that neither open nor close it -
//   reports ReadyMessage so the scheduler knows this client may be
//   dispatched to again.
//
// ============================================================================

package worker

import (
	"fmt"
	"time"

	"github.com/ChuLiYu/falcon-sql/internal/metrics"
	"github.com/ChuLiYu/falcon-sql/internal/sqlengine"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// Worker executes Jobs pulled from a shared task channel.
type Worker struct {
	id      int
	taskCh  <-chan types.Job
	engine  *sqlengine.Engine
	metrics *metrics.Collector
}

func newWorker(id int, taskCh <-chan types.Job, engine *sqlengine.Engine, m *metrics.Collector) *Worker {
	return &Worker{id: id, taskCh: taskCh, engine: engine, metrics: m}
}

// Run is the Worker's main loop. It returns when taskCh is closed.
func (w *Worker) Run() {
	for job := range w.taskCh {
		w.handleJob(job)
	}
}

// handleJob executes one batch and, if it opens a transaction, takes over
// that client's subsequent batches until it closes.
func (w *Worker) handleJob(job types.Job) {
	conn := w.engine.NewConn()
	w.execute(conn, job)

	if job.Statements.Txn == types.TxnBeginHint {
		txnCh := make(chan types.Job, 1)
		job.SchedulerSender <- types.TxnBeginMessage{ClientID: job.ClientID, Channel: txnCh}
		w.drainTxn(conn, txnCh)
		return
	}

	job.SchedulerSender <- types.ReadyMessage{ClientID: job.ClientID}
}

// drainTxn keeps executing batches for one client on the same Conn until a
// batch closes the transaction, then hands the client back to the pool.
func (w *Worker) drainTxn(conn *sqlengine.Conn, txnCh chan types.Job) {
	for job := range txnCh {
		w.execute(conn, job)

		if job.Statements.Txn == types.TxnEndHint {
			job.SchedulerSender <- types.TxnEndedMessage{ClientID: job.ClientID}
			return
		}
		job.SchedulerSender <- types.ReadyMessage{ClientID: job.ClientID}
	}
}

// execute runs one batch on conn and delivers the result, recording metrics
// if a collector is configured. A panic inside the engine is recovered and
// reported as a failed statement, rather than killing the Worker goroutine
// and leaving the client's queue stuck with no Ready ever posted for it.
func (w *Worker) execute(conn *sqlengine.Conn, job types.Job) {
	start := time.Now()

	msg, err := func() (msg types.Message, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("worker: recovered panic executing statement", "worker_id", w.id, "client_id", job.ClientID, "panic", r)
				err = fmt.Errorf("worker: panic: %v", r)
				msg = types.Message{ClientID: job.ClientID, Err: err}
			}
		}()
		return conn.Execute(job.ClientID, job.Statements)
	}()

	job.Responder.Respond(msg)

	if w.metrics == nil {
		return
	}
	if err != nil {
		w.metrics.RecordFailed()
		return
	}
	w.metrics.RecordCompleted(time.Since(start).Seconds())
}
