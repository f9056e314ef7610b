// ============================================================================
// Falcon-SQL Statement Parser
// ============================================================================
//
// Package: internal/statements
// Purpose: Split a raw statement batch into individual statements and
// classify its transaction effect.
//
// No SQL semantics are implemented here beyond recognizing BEGIN/COMMIT/
// ROLLBACK as the leading keyword of a batch - that boundary is all the
// scheduler needs to decide transaction-affinity routing (§4.6). Everything
// else about a statement's meaning is opaque text handed to the worker's
// executor.
//
// ============================================================================

// Package statements splits and classifies client-submitted SQL batches.
package statements

import (
	"strings"

	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// Parse splits raw on ';', trims whitespace from each piece, and classifies
// the batch's transaction effect from the first non-empty statement's
// leading keyword.
func Parse(raw string) (types.Statements, error) {
	parts := strings.Split(raw, ";")
	stmts := make([]types.Stmt, 0, len(parts))
	for _, p := range parts {
		text := strings.TrimSpace(p)
		if text == "" {
			continue
		}
		stmts = append(stmts, types.Stmt{Text: text})
	}

	hint := types.TxnNone
	if len(stmts) > 0 {
		hint = classify(stmts[0].Text)
	}

	return types.Statements{
		Raw:   raw,
		Stmts: stmts,
		Txn:   hint,
	}, nil
}

// classify returns the transaction hint for a single statement based on its
// leading keyword, case-insensitively.
func classify(stmt string) types.TxnHint {
	word := leadingWord(stmt)
	switch strings.ToUpper(word) {
	case "BEGIN", "START":
		return types.TxnBeginHint
	case "COMMIT", "ROLLBACK", "END":
		return types.TxnEndHint
	default:
		return types.TxnNone
	}
}

func leadingWord(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
