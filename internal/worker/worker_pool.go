// ============================================================================
// Falcon-SQL Worker Pool - Concurrent Statement Executor
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Owns the fixed-size goroutine pool the scheduler dispatches
// Jobs onto (spec §5).
//
// Design Pattern:
//   A fixed number of Worker goroutines share one task channel. The
//   scheduler is the only writer on that channel (it holds the send half
//   returned by Tasks()); there is no separate result channel - a Job's
//   result is delivered straight to its own Responder, and scheduler
//   bookkeeping is updated straight over SchedulerSender, both embedded in
//   the Job itself.
//
// Lifecycle:
//   1. NewPool()   - create the Pool and its task channel
//   2. Start(n)    - start n Worker goroutines
//   3. Tasks()     - hand the send half to the scheduler under construction
//   4. Stop()      - close the task channel, wait for all Workers to drain
//
// ============================================================================

package worker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ChuLiYu/falcon-sql/internal/metrics"
	"github.com/ChuLiYu/falcon-sql/internal/sqlengine"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

var log = slog.Default()

var (
	// ErrPoolClosed indicates the Pool is closed and cannot accept new tasks.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted indicates Start has not been called yet.
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool owns a set of Worker goroutines, all reading from one task channel.
type Pool struct {
	workers []*Worker
	taskCh  chan types.Job
	stopCh  chan struct{}
	wg      sync.WaitGroup

	engine  *sqlengine.Engine
	metrics *metrics.Collector

	started bool
	stopped bool
	mu      sync.Mutex
}

// NewPool creates a Pool that executes against engine. bufferSize sizes the
// task channel; metrics may be nil.
func NewPool(engine *sqlengine.Engine, bufferSize int, m *metrics.Collector) *Pool {
	return &Pool{
		workers: make([]*Worker, 0),
		taskCh:  make(chan types.Job, bufferSize),
		stopCh:  make(chan struct{}),
		engine:  engine,
		metrics: m,
	}
}

// Tasks returns the send half of the task channel, for the scheduler to
// dispatch Jobs onto directly (scheduler.New's poolSender argument).
func (p *Pool) Tasks() chan<- types.Job {
	return p.taskCh
}

// Start launches workerCount Worker goroutines.
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p.taskCh, p.engine, p.metrics)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}

	p.started = true
	return nil
}

// Submit submits a Job directly, bypassing the scheduler. Exposed mainly
// for tests; production code dispatches through the channel from Tasks().
func (p *Pool) Submit(job types.Job) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	taskCh := p.taskCh
	stopCh := p.stopCh
	p.mu.Unlock()

	select {
	case taskCh <- job:
		return nil
	case <-stopCh:
		return ErrPoolClosed
	}
}

// Stop closes the task channel and waits for every Worker to finish the
// Jobs still buffered in it and return. Callers must guarantee no more sends onto
// Tasks() happen after calling Stop (i.e. the scheduler feeding it has
// already returned from Start).
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	close(p.taskCh)
	p.wg.Wait()
}

// GetWorkerCount returns the number of started Workers.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start has been called.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
