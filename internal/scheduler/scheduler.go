// ============================================================================
// Falcon-SQL Scheduler - Event Loop
// ============================================================================
//
// Package: internal/scheduler
// File: scheduler.go
// Purpose: The per-client fair scheduler fronting the worker pool
//
// This is the hard part of the repository (spec §1): it buffers incoming
// SQL work per client, guarantees strictly sequential execution per client,
// routes transaction-affinity work to the worker holding that transaction,
// and otherwise fans out to the shared worker pool while letting distinct
// clients make progress concurrently.
//
// Two concurrency domains meet here and nowhere else: this event loop is a
// single goroutine, cooperative, lock-free over its own state; the worker
// pool it feeds is a set of parallel goroutines. The two are bridged only by
// channels - see design note in §9 of the spec this implements.
//
// ============================================================================

// Package scheduler implements the per-client fair scheduler described in
// the project specification: it multiplexes server requests and worker
// state updates onto a single cooperative event loop and dispatches at most
// one Job per eligible client per pass.
package scheduler

import (
	"log/slog"

	"github.com/ChuLiYu/falcon-sql/internal/metrics"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

var log = slog.Default()

// Scheduler owns all per-client queue and bookkeeping state. It must be
// constructed with New and driven with Start; there is no other valid way
// to use it once Start has returned (the Scheduler is consumed).
type Scheduler struct {
	poolSender chan<- types.Job
	serverMsgs <-chan types.ServerMessage

	updateSender   chan types.UpdateStateMessage
	updateReceiver chan types.UpdateStateMessage

	queues map[types.ClientID]*clientQueue
	ready  clientSet
	hasWork clientSet

	shouldExit bool

	metrics *metrics.Collector
}

// New returns a Scheduler that dispatches Jobs onto poolSender and consumes
// ServerMessages from serverMsgs. It owns an internally created update-state
// channel; every Job it dispatches embeds a clone of the sending half so
// workers can post state updates back without any other handle to the
// scheduler (spec §9, "cyclic handle"). m may be nil, in which case no
// metrics are recorded.
func New(poolSender chan<- types.Job, serverMsgs <-chan types.ServerMessage, m *metrics.Collector) *Scheduler {
	updateCh := make(chan types.UpdateStateMessage)
	return &Scheduler{
		poolSender:     poolSender,
		serverMsgs:     serverMsgs,
		updateSender:   updateCh,
		updateReceiver: updateCh,
		queues:         make(map[types.ClientID]*clientQueue),
		ready:          newClientSet(),
		hasWork:        newClientSet(),
		metrics:        m,
	}
}

// Start consumes the Scheduler and runs the event loop until both inbound
// sources are drained and all queues are quiescent (§4.3). It blocks the
// calling goroutine; callers typically run it in its own goroutine.
func (s *Scheduler) Start() {
	log.Info("scheduler starting")
	for {
		if s.shouldExit {
			// The server-message channel is closed; only state updates can
			// still arrive. Block on that alone so we don't spin.
			msg, ok := <-s.updateReceiver
			if !ok {
				// Unreachable per spec §7: the scheduler holds the sender
				// for its entire lifetime. Treat as loop exit rather than
				// panicking so Start always returns cleanly under test.
				log.Error("update-state channel closed unexpectedly")
				return
			}
			s.updateQueueStatus(msg)
		} else {
			select {
			case msg, ok := <-s.updateReceiver:
				if !ok {
					log.Error("update-state channel closed unexpectedly")
					return
				}
				s.updateQueueStatus(msg)
			case msg, ok := <-s.serverMsgs:
				if !ok {
					s.shouldExit = true
				} else {
					s.updateQueues(msg)
				}
			}
		}

		s.dispatch()

		if s.terminated() {
			log.Info("scheduler terminating: quiescent")
			return
		}
	}
}

// terminated implements the termination predicate of §4.3. A client with an
// open transaction is inserted into ready so the next dispatch pass can
// route its next Job into the transaction channel (see updateQueueStatus's
// TxnBegin case) - but that leaves it indistinguishable from a client with
// no in-flight work by ready/hasWork alone, so quiescence additionally
// requires no client still hold an open transaction; otherwise Start could
// return while a worker is still draining that client's txnCh.
func (s *Scheduler) terminated() bool {
	return s.shouldExit && s.hasWork.len() == 0 && s.ready.len() == len(s.queues) && s.openTransactions() == 0
}

// updateQueueStatus applies one UpdateStateMessage from a worker (§4.5).
func (s *Scheduler) updateQueueStatus(msg types.UpdateStateMessage) {
	switch m := msg.(type) {
	case types.ReadyMessage:
		s.ready.add(m.ClientID)

	case types.TxnBeginMessage:
		q, ok := s.queues[m.ClientID]
		if !ok {
			// Tolerated race: client disconnected and was reaped before
			// this TxnBegin arrived.
			return
		}
		if q.activeTxn != nil {
			// Contract violation per §7: active_txn must not already be set.
			log.Error("contract violation: active_txn already set", "client_id", m.ClientID)
			return
		}
		q.activeTxn = m.Channel
		// The job that opened this transaction has finished executing, so
		// this client is eligible for dispatch again - the very next
		// dispatch pass routes its next queued Job into this channel
		// instead of the pool (§4.4 step 3). When the client has a queued
		// Job, that same pass removes it from ready again; with an empty
		// queue it stays in ready with active_txn set until its next Job
		// is dispatched (terminated() accounts for this case).
		s.ready.add(m.ClientID)

	case types.TxnEndedMessage:
		q, ok := s.queues[m.ClientID]
		if !ok {
			return
		}
		q.activeTxn = nil
		s.ready.add(m.ClientID)
	}
}

// updateQueues applies one ServerMessage (§4.5).
func (s *Scheduler) updateQueues(msg types.ServerMessage) {
	switch action := msg.Action.(type) {
	case types.DisconnectAction:
		if q, ok := s.queues[msg.ClientID]; ok {
			q.shouldClose = true
		}
		if s.metrics != nil {
			s.metrics.RecordDisconnect()
		}

	case types.ExecuteAction:
		q, ok := s.queues[msg.ClientID]
		if !ok {
			q = newClientQueue()
			s.queues[msg.ClientID] = q
			s.ready.add(msg.ClientID)
		}
		job := types.Job{
			ClientID:        msg.ClientID,
			Statements:      action.Statements,
			Responder:       msg.Responder,
			SchedulerSender: s.updateSender,
		}
		q.push(job)
		s.hasWork.add(msg.ClientID)
		if s.metrics != nil {
			s.metrics.RecordSubmit()
		}
	}
}

// dispatch runs one sweep over ready ∩ hasWork, sending at most one Job per
// eligible client (§4.4). Preconditions: invariants I1-I5 hold on entry.
func (s *Scheduler) dispatch() {
	for clientID := range s.ready {
		if !s.hasWork.has(clientID) {
			continue
		}

		q, ok := s.queues[clientID]
		if !ok || q.empty() {
			// Bookkeeping drifted from reality; repair and skip (step 1).
			s.hasWork.remove(clientID)
			continue
		}

		job, ok := q.popFront()
		if !ok {
			s.hasWork.remove(clientID)
			continue
		}

		// Step 2: about to have in-flight work.
		s.ready.remove(clientID)

		s.dispatchOne(clientID, q, job)

		// Step 5: retire bookkeeping/queue if drained.
		if q.empty() {
			s.hasWork.remove(clientID)
			if q.shouldClose {
				delete(s.queues, clientID)
			}
		}
	}

	if s.metrics != nil {
		s.metrics.UpdateSchedulerStats(s.queueDepth(), s.openTransactions())
	}
}

// queueDepth sums buffered Jobs across every client queue, for the
// sql_queue_depth gauge.
func (s *Scheduler) queueDepth() int {
	depth := 0
	for _, q := range s.queues {
		depth += len(q.queue)
	}
	return depth
}

// openTransactions counts clients currently holding an open transaction
// channel, for the sql_open_transactions gauge.
func (s *Scheduler) openTransactions() int {
	open := 0
	for _, q := range s.queues {
		if q.activeTxn != nil {
			open++
		}
	}
	return open
}

// dispatchOne delivers a single popped Job to its transaction channel (if
// any) or to the shared pool, per steps 3-4 of §4.4.
func (s *Scheduler) dispatchOne(clientID types.ClientID, q *clientQueue, job types.Job) {
	if s.metrics != nil {
		s.metrics.RecordDispatch()
	}

	if q.activeTxn != nil {
		if s.sendToTxn(q.activeTxn, job) {
			return
		}
		// Channel closed: the worker dropped its receiver on transaction
		// close without us having observed a TxnEnded yet (§4.4 step 3).
		// Clear active_txn and fall through to the pool send below.
		log.Debug("transaction channel closed, falling back to pool", "client_id", clientID)
		q.activeTxn = nil
	}

	// The pool channel is buffered with a fixed capacity (the pool's queue
	// size), so when every slot is taken this send blocks the event loop
	// until a worker takes a Job - that is the backpressure this port
	// applies. A send to a channel that has been closed panics in Go -
	// which is exactly the fatal behavior §7 calls for when the pool has
	// crashed.
	s.poolSender <- job
}

// sendToTxn attempts a non-blocking send to a client's transaction channel.
// It returns false if the channel is closed (the transaction-owning worker
// is gone) - a send to a closed channel panics in Go, which this recovers
// from to implement the "detect lazily on next attempted send" contract in
// §6. A full channel is a contract violation per §7 (capacity is guaranteed
// >= 1 and the scheduler never has more than one outstanding send between
// TxnBegin and Ready/TxnEnded); rather than crash the whole scheduler over
// it, it is logged and treated the same as closed so one misbehaving worker
// cannot take down every other client's scheduling.
func (s *Scheduler) sendToTxn(ch chan<- types.Job, job types.Job) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case ch <- job:
		return true
	default:
		log.Error("transaction channel full: contract violation, falling back to pool")
		return false
	}
}
