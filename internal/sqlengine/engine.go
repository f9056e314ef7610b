// ============================================================================
// Falcon-SQL Storage Engine
// ============================================================================
//
// Package: internal/sqlengine
// Purpose: The in-memory storage engine a Worker executes Jobs against -
// the "worker's actual DB execution" the scheduler treats as an external
// collaborator (spec §1).
//
// A table is a map of row-key to row (itself a flat string/string map - no
// schema, no types, no SQL semantics: that is an explicit non-goal of this
// server). Every connection gets its own transaction buffer; statements run
// outside a transaction apply directly, statements run inside one apply only
// on commit (rollback discards the buffer).
//
// ============================================================================

// Package sqlengine implements a minimal in-memory key/value table engine.
package sqlengine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ChuLiYu/falcon-sql/internal/snapshot"
	"github.com/ChuLiYu/falcon-sql/internal/storage/wal"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// ErrNoSuchTable is returned when a statement references an unknown table.
var ErrNoSuchTable = errors.New("sqlengine: no such table")

// ErrTableExists is returned by CREATE TABLE on a name already in use.
var ErrTableExists = errors.New("sqlengine: table already exists")

// Table is a single named collection of rows, keyed by an opaque row key.
type Table map[string]map[string]string

// Engine is the shared, mutex-guarded table store. One Engine instance is
// shared by every worker in the pool; workers serialize their access to a
// given client's transaction themselves (only one Job per client is ever in
// flight per the scheduler's invariants), but distinct clients' tables are
// accessed concurrently, hence the lock here.
type Engine struct {
	mu     sync.Mutex
	tables map[string]Table
	wal    *wal.WAL
}

// New returns an empty Engine. If w is non-nil, every applied statement is
// appended to it before being applied (write-ahead, matching the ordering
// the teacher's Controller used for job events).
func New(w *wal.WAL) *Engine {
	return &Engine{
		tables: make(map[string]Table),
		wal:    w,
	}
}

// Executor is the interface a Worker drives to run one client's Statements.
// Exported so test doubles can substitute a fake engine without dragging in
// the WAL.
type Executor interface {
	Execute(clientID types.ClientID, stmts types.Statements) (types.Message, error)
}

// Conn is a per-client handle to the Engine, holding that client's open
// transaction buffer (if any). Workers create one Conn per client and reuse
// it across that client's Jobs so buffered writes survive between calls.
type Conn struct {
	engine  *Engine
	txn     map[string]Table // nil when no transaction is open
}

// NewConn returns a connection bound to engine.
func (e *Engine) NewConn() *Conn {
	return &Conn{engine: e}
}

// Execute applies one statement batch for clientID, returning the rows of
// the last SELECT-like statement (if any). Transaction-opening batches
// begin buffering writes locally; transaction-closing batches commit (or
// discard, on ROLLBACK) the buffer against the shared table map.
func (c *Conn) Execute(clientID types.ClientID, stmts types.Statements) (types.Message, error) {
	if stmts.Txn == types.TxnBeginHint {
		c.txn = make(map[string]Table)
	}

	rollback := stmts.Txn == types.TxnEndHint && isRollback(stmts)

	if rollback {
		// The transaction is being discarded, not replayed statement by
		// statement - still log the boundary itself so replay knows to
		// drop the buffered writes that preceded it.
		if c.engine.wal != nil {
			if err := c.engine.wal.Append(wal.EventTxnRollback, clientID, lastStmtText(stmts)); err != nil {
				c.txn = nil
				return types.Message{ClientID: clientID, Err: err}, err
			}
		}
		c.txn = nil
		return types.Message{ClientID: clientID}, nil
	}

	var rows []map[string]string
	for i, stmt := range stmts.Stmts {
		eventType := wal.EventApply
		switch {
		case stmts.Txn == types.TxnBeginHint && i == 0:
			eventType = wal.EventTxnBegin
		case stmts.Txn == types.TxnEndHint && i == len(stmts.Stmts)-1:
			eventType = wal.EventTxnCommit
		}

		r, err := c.applyOne(clientID, stmt.Text, eventType)
		if err != nil {
			if stmts.Txn == types.TxnEndHint {
				c.txn = nil
			}
			return types.Message{ClientID: clientID, Err: err}, err
		}
		if r != nil {
			rows = r
		}
	}

	if stmts.Txn == types.TxnEndHint {
		c.engine.commit(c.txn)
		c.txn = nil
	}

	return types.Message{ClientID: clientID, Rows: rows}, nil
}

func lastStmtText(stmts types.Statements) string {
	if len(stmts.Stmts) == 0 {
		return ""
	}
	return stmts.Stmts[len(stmts.Stmts)-1].Text
}

// commit merges a transaction's shadow tables into the engine's committed
// state. Called with the transaction fully applied and no statement error.
func (e *Engine) commit(txn map[string]Table) {
	if len(txn) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, table := range txn {
		e.tables[name] = table
	}
}

// Snapshot captures the engine's committed tables (not any in-flight
// transaction buffers) for persistence by internal/snapshot.
func (e *Engine) Snapshot(lastSeq uint64) snapshot.Data {
	e.mu.Lock()
	defer e.mu.Unlock()

	tables := make(map[string]snapshot.TableData, len(e.tables))
	for name, table := range e.tables {
		rows := make(snapshot.TableData, len(table))
		for key, row := range table {
			cols := make(map[string]string, len(row))
			for col, val := range row {
				cols[col] = val
			}
			rows[key] = cols
		}
		tables[name] = rows
	}
	return snapshot.Data{Tables: tables, SchemaVer: 1, LastSeq: lastSeq}
}

// Restore replaces the engine's committed tables with the contents of data.
// Called once at startup, before replaying any WAL entries recorded after
// data.LastSeq.
func (e *Engine) Restore(data snapshot.Data) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tables := make(map[string]Table, len(data.Tables))
	for name, rows := range data.Tables {
		table := make(Table, len(rows))
		for key, cols := range rows {
			row := make(map[string]string, len(cols))
			for col, val := range cols {
				row[col] = val
			}
			table[key] = row
		}
		tables[name] = table
	}
	e.tables = tables
}

func isRollback(stmts types.Statements) bool {
	for _, s := range stmts.Stmts {
		if strings.EqualFold(firstWord(s.Text), "ROLLBACK") {
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// applyOne dispatches a single statement to the engine, writing through the
// WAL first if one is configured (write-ahead discipline, §5.3 of
// SPEC_FULL.md). eventType tags the WAL record so replay can reconstruct
// transaction boundaries: EventTxnBegin/EventTxnCommit mark the first/last
// statement of a transaction-opening/closing batch, EventApply everything
// else.
func (c *Conn) applyOne(clientID types.ClientID, stmt string, eventType wal.EventType) ([]map[string]string, error) {
	if c.engine.wal != nil {
		if err := c.engine.wal.Append(eventType, clientID, stmt); err != nil {
			return nil, fmt.Errorf("sqlengine: wal append: %w", err)
		}
	}

	target := c.engine.tables
	if c.txn != nil {
		target = c.txn
	}
	return dispatchStatement(c.engine, target, stmt)
}
