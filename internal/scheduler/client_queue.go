// ============================================================================
// Falcon-SQL Scheduler - Client Queues
// ============================================================================
//
// Package: internal/scheduler
// File: client_queue.go
// Purpose: Per-client FIFO buffering and transaction-affinity state
//
// A ClientQueue is the per-client record the scheduler keeps: an ordered,
// unbounded sequence of Jobs (I1), an optional handle to the worker currently
// holding an open transaction for this client (active_txn, I4), and a flag
// marking the client for close once its queue drains (should_close, I5).
//
// ============================================================================

package scheduler

import "github.com/ChuLiYu/falcon-sql/pkg/types"

// clientQueue is the per-client record described in spec §3.
type clientQueue struct {
	queue []types.Job

	// activeTxn is the bounded channel handed to us by a TxnBegin message.
	// Present iff the client currently has an open transaction.
	activeTxn chan<- types.Job

	// shouldClose is set by a Disconnect message. The queue survives until
	// it drains; see dispatch() step 5.
	shouldClose bool
}

// newClientQueue returns an empty queue. Callers insert the owning client
// into the ready set at the same time they create this record (see
// updateQueues's Execute handler) - a ClientQueue is never created without
// also becoming ready, because no work of its is in flight yet.
func newClientQueue() *clientQueue {
	return &clientQueue{}
}

// push appends a Job to the tail of the queue (FIFO order, I1/P2).
func (q *clientQueue) push(job types.Job) {
	q.queue = append(q.queue, job)
}

// popFront removes and returns the head Job. ok is false if the queue is
// empty.
func (q *clientQueue) popFront() (job types.Job, ok bool) {
	if len(q.queue) == 0 {
		return types.Job{}, false
	}
	job = q.queue[0]
	q.queue = q.queue[1:]
	return job, true
}

// empty reports whether the queue currently holds no buffered Jobs.
func (q *clientQueue) empty() bool {
	return len(q.queue) == 0
}
