package wal

import "github.com/ChuLiYu/falcon-sql/pkg/types"

// ============================================================================
// WAL Type Definitions
// Responsibility: Define core data structures for WAL
// ============================================================================

// EventType defines WAL event types.
type EventType string

const (
	EventApply        EventType = "APPLY"         // a statement was applied to a table
	EventTxnBegin      EventType = "TXN_BEGIN"     // client opened a transaction
	EventTxnCommit     EventType = "TXN_COMMIT"    // client committed a transaction
	EventTxnRollback   EventType = "TXN_ROLLBACK"  // client rolled back a transaction
)

// Event represents a WAL event record.
type Event struct {
	Seq       uint64         `json:"seq"`       // Event sequence number (monotonically increasing)
	Type      EventType      `json:"type"`      // Event type
	ClientID  types.ClientID `json:"client_id"` // client the statement belongs to
	Stmt      string         `json:"stmt"`       // statement text that was applied
	Timestamp int64          `json:"timestamp"` // Unix millisecond timestamp
	Checksum  uint32         `json:"checksum"`  // CRC32 checksum
}

// EventHandler is a by-value function type for processing WAL events.
// Replay does not take this type: its handler is func(*Event) error.
type EventHandler func(event Event) error
