// ============================================================================
// Falcon-SQL Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Domain models shared by the scheduler, the worker pool and the
// front end. Kept as a single leaf package, imported everywhere else, the
// same way the teacher repo centralizes its domain model in pkg/types.
//
// ============================================================================

// Package types defines the core domain models for the falcon-sql server.
package types

import "fmt"

// ClientID is an opaque identifier for a connected client, unique for the
// lifetime of that client's connection to this server.
type ClientID uint64

// Statements is a parsed (but not semantically analyzed) batch of SQL text
// submitted together by a client. No SQL semantics are implied beyond
// transaction-boundary detection - that is a non-goal of this server.
type Statements struct {
	Raw   string  // original text, verbatim
	Stmts []Stmt  // individual statements, split on ';'
	Txn   TxnHint // transaction effect this batch has, if any
}

// Stmt is one statement within a batch.
type Stmt struct {
	Text string
}

// TxnHint classifies the transaction effect of a statement batch as
// detected by internal/statements.Parse.
type TxnHint int

const (
	// TxnNone means the batch neither opens nor closes a transaction.
	TxnNone TxnHint = iota
	// TxnBeginHint means the batch's first statement opens a transaction.
	TxnBeginHint
	// TxnEndHint means the batch's first statement commits or rolls back
	// the client's open transaction.
	TxnEndHint
)

func (h TxnHint) String() string {
	switch h {
	case TxnBeginHint:
		return "begin"
	case TxnEndHint:
		return "end"
	default:
		return "none"
	}
}

// Message is a result delivered to a client in response to one Job.
type Message struct {
	ClientID ClientID
	Rows     []map[string]string // textual rows, engine is untyped key/value
	Err      error
}

// Responder is the handle the scheduler carries with each Job and the
// worker invokes to deliver a result. The scheduler itself never reads
// responses - only the worker and the front end that created the
// Responder do.
type Responder interface {
	Respond(Message)
}

// Job is one scheduled unit of work: one client's statement batch, plus the
// handles needed to deliver a result and to report state back to the
// scheduler. A Job is created when the front end submits Execute and is
// consumed exactly once by a worker.
type Job struct {
	ClientID   ClientID
	Statements Statements
	Responder  Responder

	// SchedulerSender is a clone of the scheduler's update-state sender,
	// embedded in every dispatched Job so the worker executing it can post
	// state updates back without holding any other reference to the
	// scheduler. See spec.md's "cyclic handle" design note (§9).
	SchedulerSender chan<- UpdateStateMessage
}

// Action is the payload of a ServerMessage.
type Action interface {
	isAction()
}

// ExecuteAction enqueues a Job for the given client.
type ExecuteAction struct {
	Statements Statements
}

func (ExecuteAction) isAction() {}

// DisconnectAction marks a client for close after its queue drains.
type DisconnectAction struct{}

func (DisconnectAction) isAction() {}

// ServerMessage is produced by the front end and consumed by the
// scheduler's event loop.
type ServerMessage struct {
	ClientID  ClientID
	Action    Action
	Responder Responder
}

func (m ServerMessage) String() string {
	kind := "Execute"
	if _, ok := m.Action.(DisconnectAction); ok {
		kind = "Disconnect"
	}
	return fmt.Sprintf("ServerMessage{client=%d action=%s}", m.ClientID, kind)
}

// UpdateStateMessage is produced by workers and consumed by the scheduler's
// event loop to update its ready/has-work bookkeeping.
type UpdateStateMessage interface {
	isUpdateStateMessage()
}

// ReadyMessage signals that client ClientID has no in-flight job and is
// eligible for dispatch again.
type ReadyMessage struct {
	ClientID ClientID
}

func (ReadyMessage) isUpdateStateMessage() {}

// TxnBeginMessage signals that a job opened a transaction for ClientID;
// subsequent jobs for that client must be routed to Channel instead of the
// shared worker pool.
type TxnBeginMessage struct {
	ClientID ClientID
	Channel  chan<- Job
}

func (TxnBeginMessage) isUpdateStateMessage() {}

// TxnEndedMessage signals that the open transaction for ClientID has
// completed (committed or rolled back).
type TxnEndedMessage struct {
	ClientID ClientID
}

func (TxnEndedMessage) isUpdateStateMessage() {}
