// ============================================================================
// Falcon-SQL Replication - Command Envelope
// ============================================================================
//
// Package: internal/replication
// File: commands.go
// Function: The payloads a Raft leader proposes through Propose() and every
// replica applies off applyCh (spec §8 "replicated log").
//
// Falcon-SQL has no distributed job queue to replicate - what crosses the
// log is the same unit the WAL already records: one client's statement,
// tagged with the transaction boundary it does or doesn't cross. A replica
// applying a committed entry runs it through the same sqlengine.Conn state
// machine the primary used, so replicated state matches recovered state.
//
// ============================================================================

package replication

import (
	"encoding/json"
	"fmt"

	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// CommandType identifies the shape of RaftCommand.Payload.
type CommandType string

const (
	// CmdApply replicates one statement, tagged with the transaction
	// boundary it crosses (if any).
	CmdApply CommandType = "APPLY"
)

// RaftCommand is the envelope stored in each LogEntry.Command.
type RaftCommand struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ApplyPayload carries one statement for replication, mirroring the event
// wal.WAL.Append records locally on the leader.
type ApplyPayload struct {
	ClientID types.ClientID `json:"client_id"`
	Stmt     string         `json:"stmt"`
	Txn      types.TxnHint  `json:"txn"`
}

// NewApplyCommand encodes an ApplyPayload as a RaftCommand ready for
// Raft.Propose.
func NewApplyCommand(clientID types.ClientID, stmt string, txn types.TxnHint) ([]byte, error) {
	payload, err := json.Marshal(ApplyPayload{ClientID: clientID, Stmt: stmt, Txn: txn})
	if err != nil {
		return nil, fmt.Errorf("replication: marshal apply payload: %w", err)
	}
	cmd := RaftCommand{Type: CmdApply, Payload: payload}
	encoded, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("replication: marshal command: %w", err)
	}
	return encoded, nil
}

// DecodeCommand parses a log entry's raw command bytes back into its
// envelope. Callers switch on Type and unmarshal Payload into the matching
// payload struct.
func DecodeCommand(raw []byte) (RaftCommand, error) {
	var cmd RaftCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return RaftCommand{}, fmt.Errorf("replication: unmarshal command: %w", err)
	}
	return cmd, nil
}

// DecodeApplyPayload unmarshals cmd.Payload as an ApplyPayload. Callers
// should only call this after checking cmd.Type == CmdApply.
func DecodeApplyPayload(cmd RaftCommand) (ApplyPayload, error) {
	var payload ApplyPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return ApplyPayload{}, fmt.Errorf("replication: unmarshal apply payload: %w", err)
	}
	return payload, nil
}
