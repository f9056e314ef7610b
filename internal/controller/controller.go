// ============================================================================
// Falcon-SQL Controller - System Core Coordinator
// ============================================================================
//
// Package: internal/controller
// File: controller.go
// Function: Wires the engine, WAL, snapshot manager, scheduler and worker
// pool into one supervised process, and owns crash recovery and graceful
// shutdown (spec §5, §8).
//
// Startup recovery flow:
//   1. loadSnapshot() - restore the engine's committed tables from the last
//      snapshot (or start empty on first boot).
//   2. replayWAL()    - replay every entry in the current WAL file (the WAL
//      is rotated right after each snapshot, so it holds what was recorded
//      since), rebuilding in-flight transaction buffers the same way the
//      live engine would have (§5.3, §8).
//   3. Start the worker pool and the scheduler's event loop.
//
// Steady state:
//   A single background goroutine ticks a periodic snapshot: it asks the
//   engine for its committed tables tagged with the WAL's current sequence
//   number, writes them atomically, then rotates the WAL so the next
//   recovery only has to replay what has happened since.
//
// Shutdown order (mirrors the scheduler/pool contract in spec §7):
//   1. Stop accepting new front-end connections (caller's responsibility).
//   2. Let the scheduler drain: its Start() returns once the front end has
//      closed serverMsgs and every queue is quiescent.
//   3. Stop the worker pool - no Jobs remain in flight once the scheduler
//      has returned, so this completes immediately.
//   4. Take one final snapshot and close the WAL.
//
// ============================================================================

package controller

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/falcon-sql/internal/metrics"
	"github.com/ChuLiYu/falcon-sql/internal/replication"
	"github.com/ChuLiYu/falcon-sql/internal/scheduler"
	"github.com/ChuLiYu/falcon-sql/internal/snapshot"
	"github.com/ChuLiYu/falcon-sql/internal/sqlengine"
	"github.com/ChuLiYu/falcon-sql/internal/storage/wal"
	"github.com/ChuLiYu/falcon-sql/internal/worker"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

var log = slog.Default()

// recoverySLA is the target recovery time that recover logs against;
// exceeding it is only ever logged, never fatal.
const recoverySLA = 3 * time.Second

// Config configures a Controller.
type Config struct {
	WorkerCount      int
	SnapshotInterval time.Duration
	WALPath          string
	SnapshotPath     string
	WALBufferSize    int
	WALFlushInterval time.Duration
	PoolQueueSize    int
}

func (c *Config) setDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
	if c.WALBufferSize <= 0 {
		c.WALBufferSize = 100
	}
	if c.WALFlushInterval <= 0 {
		c.WALFlushInterval = 10 * time.Millisecond
	}
	if c.PoolQueueSize <= 0 {
		c.PoolQueueSize = 256
	}
}

// Controller owns the engine, WAL, snapshot manager, worker pool and
// scheduler for one falcon-sql process.
type Controller struct {
	mu sync.Mutex

	engine   *sqlengine.Engine
	wal      *wal.WAL
	snapshot *snapshot.Manager
	pool     *worker.Pool
	sched    *scheduler.Scheduler
	metrics  *metrics.Collector

	repl        *replication.Raft
	replApplyCh <-chan replication.ApplyMsg

	config     Config
	serverMsgs chan types.ServerMessage

	stopCh    chan struct{}
	loopWg    sync.WaitGroup
	stopped   bool
	startTime time.Time
}

// New creates a Controller and runs crash recovery, but does not yet start
// the scheduler or worker pool - call Start for that.
func New(config Config, m *metrics.Collector) (*Controller, error) {
	config.setDefaults()

	w, err := wal.NewWAL(config.WALPath, false, config.WALBufferSize, config.WALFlushInterval)
	if err != nil {
		return nil, fmt.Errorf("controller: open wal: %w", err)
	}

	engine := sqlengine.New(w)

	c := &Controller{
		engine:     engine,
		wal:        w,
		snapshot:   snapshot.NewManager(config.SnapshotPath),
		pool:       worker.NewPool(engine, config.PoolQueueSize, m),
		metrics:    m,
		config:     config,
		serverMsgs: make(chan types.ServerMessage, config.PoolQueueSize),
		stopCh:     make(chan struct{}),
	}

	if err := c.recover(); err != nil {
		return nil, fmt.Errorf("controller: recovery: %w", err)
	}

	return c, nil
}

// Engine returns the shared engine, for the front end to attach to.
func (c *Controller) Engine() *sqlengine.Engine { return c.engine }

// ServerMessages returns the channel the front end feeds ServerMessages
// into for the scheduler to consume.
func (c *Controller) ServerMessages() chan<- types.ServerMessage { return c.serverMsgs }

// AttachReplication wires rf as this Controller's replicated log: every
// event this node's own WAL commits is proposed to rf (a no-op whenever
// this node isn't currently the Raft leader - Propose itself checks that),
// and every entry rf commits off applyCh is applied to this node's engine
// through a dedicated per-client Conn, the same replay mechanism recover
// uses for one node's own WAL (§5.4). Must be called before Start.
func (c *Controller) AttachReplication(rf *replication.Raft, applyCh <-chan replication.ApplyMsg) {
	c.repl = rf
	c.replApplyCh = applyCh
	c.wal.SetOnCommit(c.proposeEvent)
}

// proposeEvent encodes one committed WAL event as an ApplyPayload and
// proposes it to the replicated log. Only the current leader's proposal
// actually gets appended to the log (Propose reports isLeader=false and
// does nothing otherwise), so this is safe to call unconditionally from
// every node's WAL, leader or follower.
func (c *Controller) proposeEvent(event wal.Event) {
	hint := types.TxnNone
	switch event.Type {
	case wal.EventTxnBegin:
		hint = types.TxnBeginHint
	case wal.EventTxnCommit, wal.EventTxnRollback:
		hint = types.TxnEndHint
	}

	cmd, err := replication.NewApplyCommand(event.ClientID, event.Stmt, hint)
	if err != nil {
		log.Error("replication: encode apply command", "error", err)
		return
	}
	c.repl.Propose(cmd)
}

// applyReplicatedLoop drains replApplyCh for as long as the Controller is
// running, applying each committed entry only while this node is not the
// leader at the moment the entry arrives - a leader's own proposals were
// already executed locally (that execution is what produced the WAL event
// being proposed), so re-applying them here would double-apply the
// statement. The check is on current leadership, not on who proposed the
// entry: an entry that arrives while this node leads is skipped either way.
func (c *Controller) applyReplicatedLoop() {
	conns := make(map[types.ClientID]*sqlengine.Conn)
	connFor := func(clientID types.ClientID) *sqlengine.Conn {
		conn, ok := conns[clientID]
		if !ok {
			conn = c.engine.NewConn()
			conns[clientID] = conn
		}
		return conn
	}

	for {
		select {
		case <-c.stopCh:
			return
		case msg, ok := <-c.replApplyCh:
			if !ok {
				return
			}
			if c.repl.IsLeader() {
				continue
			}
			c.applyReplicatedEntry(connFor, msg)
		}
	}
}

// applyReplicatedEntry decodes and applies one committed log entry.
func (c *Controller) applyReplicatedEntry(connFor func(types.ClientID) *sqlengine.Conn, msg replication.ApplyMsg) {
	cmd, err := replication.DecodeCommand(msg.Command)
	if err != nil {
		log.Error("replication: decode command", "error", err)
		return
	}
	if cmd.Type != replication.CmdApply {
		return
	}
	payload, err := replication.DecodeApplyPayload(cmd)
	if err != nil {
		log.Error("replication: decode apply payload", "error", err)
		return
	}

	conn := connFor(payload.ClientID)
	stmts := types.Statements{Stmts: []types.Stmt{{Text: payload.Stmt}}, Txn: payload.Txn}
	if _, err := conn.Execute(payload.ClientID, stmts); err != nil {
		log.Error("replication: apply committed entry failed", "client_id", payload.ClientID, "error", err)
	}
}

// recover restores committed state from the last snapshot, then replays
// whatever the WAL recorded since.
func (c *Controller) recover() error {
	start := time.Now()

	if err := c.loadSnapshot(); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := c.replayWAL(); err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.SetRecoveryTime(elapsed.Seconds())
	}
	if elapsed > recoverySLA {
		log.Warn("recovery exceeded SLA", "elapsed", elapsed, "sla", recoverySLA)
	} else {
		log.Info("recovery complete", "elapsed", elapsed)
	}
	return nil
}

func (c *Controller) loadSnapshot() error {
	data, err := c.snapshot.Load()
	if err != nil {
		return err
	}
	c.engine.Restore(data)
	return nil
}

// replayWAL re-applies every WAL entry through a per-client Conn, the same
// way the live engine would have: statements logged between a TxnBegin and
// its matching TxnCommit are buffered and only merged on commit, so a
// crash mid-transaction reproduces as if the transaction had never
// happened (§8).
func (c *Controller) replayWAL() error {
	conns := make(map[types.ClientID]*sqlengine.Conn)
	connFor := func(clientID types.ClientID) *sqlengine.Conn {
		conn, ok := conns[clientID]
		if !ok {
			conn = c.engine.NewConn()
			conns[clientID] = conn
		}
		return conn
	}

	return c.wal.Replay(func(event *wal.Event) error {
		conn := connFor(event.ClientID)

		var hint types.TxnHint
		switch event.Type {
		case wal.EventTxnBegin:
			hint = types.TxnBeginHint
		case wal.EventTxnCommit, wal.EventTxnRollback:
			hint = types.TxnEndHint
		default:
			hint = types.TxnNone
		}

		stmts := types.Statements{Stmts: []types.Stmt{{Text: event.Stmt}}, Txn: hint}
		_, err := conn.Execute(event.ClientID, stmts)
		return err
	})
}

// Start launches the worker pool and the scheduler's event loop. The
// scheduler runs in its own goroutine and consumes ServerMessages until
// the front end closes that channel.
func (c *Controller) Start() error {
	c.startTime = time.Now()

	if err := c.pool.Start(c.config.WorkerCount); err != nil {
		return fmt.Errorf("controller: start pool: %w", err)
	}

	c.sched = scheduler.New(c.pool.Tasks(), c.serverMsgs, c.metrics)

	c.loopWg.Add(2)
	go func() {
		defer c.loopWg.Done()
		c.sched.Start()
	}()
	go func() {
		defer c.loopWg.Done()
		c.snapshotLoop()
	}()

	if c.repl != nil {
		c.loopWg.Add(1)
		go func() {
			defer c.loopWg.Done()
			c.applyReplicatedLoop()
		}()
	}

	return nil
}

// snapshotLoop periodically persists the engine's committed tables and
// rotates the WAL, so the next recovery only replays recent history.
func (c *Controller) snapshotLoop() {
	ticker := time.NewTicker(c.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.takeSnapshot(); err != nil {
				log.Error("snapshot failed", "error", err)
			}
		}
	}
}

func (c *Controller) takeSnapshot() error {
	data := c.engine.Snapshot(c.wal.GetLastSeq())
	if err := c.snapshot.WriteWithBackup(data, 3); err != nil {
		return err
	}
	return c.wal.Rotate()
}

// Stop drains the scheduler, stops the worker pool, takes one final
// snapshot and closes the WAL. The caller must have already closed the
// front end's ServerMessages channel so the scheduler's Start() can return;
// until then Stop blocks.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCh)
	c.loopWg.Wait()
	c.pool.Stop()

	if err := c.takeSnapshot(); err != nil {
		log.Error("final snapshot failed", "error", err)
	}
	if err := c.wal.Close(); err != nil {
		log.Error("wal close failed", "error", err)
	}
}

// Uptime returns how long the Controller has been running.
func (c *Controller) Uptime() time.Duration {
	return time.Since(c.startTime)
}
