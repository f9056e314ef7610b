package sqlengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

func exec(t *testing.T, conn *Conn, clientID types.ClientID, raw string, hint types.TxnHint) types.Message {
	t.Helper()
	stmts := types.Statements{Raw: raw, Txn: hint}
	for _, part := range splitSemicolons(raw) {
		stmts.Stmts = append(stmts.Stmts, types.Stmt{Text: part})
	}
	msg, err := conn.Execute(clientID, stmts)
	require.NoError(t, err)
	return msg
}

func splitSemicolons(raw string) []string {
	var out []string
	cur := ""
	for _, r := range raw {
		if r == ';' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func TestCreateInsertSelect(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()

	exec(t, conn, 1, "CREATE TABLE accounts", types.TxnNone)
	exec(t, conn, 1, "INSERT INTO accounts k1 name=alice", types.TxnNone)

	msg := exec(t, conn, 1, "SELECT * FROM accounts", types.TxnNone)
	require.Len(t, msg.Rows, 1)
	assert.Equal(t, "alice", msg.Rows[0]["name"])
}

func TestDuplicateTableRejected(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()

	exec(t, conn, 1, "CREATE TABLE t", types.TxnNone)
	stmts := types.Statements{Stmts: []types.Stmt{{Text: "CREATE TABLE t"}}}
	_, err := conn.Execute(1, stmts)
	assert.ErrorIs(t, err, ErrTableExists)
}

func TestSelectUnknownTable(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()

	stmts := types.Statements{Stmts: []types.Stmt{{Text: "SELECT * FROM ghost"}}}
	_, err := conn.Execute(1, stmts)
	assert.ErrorIs(t, err, ErrNoSuchTable)
}

func TestTransactionCommitIsVisibleAfterEnd(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()
	exec(t, conn, 1, "CREATE TABLE t", types.TxnNone)

	begin := types.Statements{Stmts: []types.Stmt{{Text: "BEGIN"}, {Text: "INSERT INTO t k1 v=1"}}, Txn: types.TxnBeginHint}
	_, err := conn.Execute(1, begin)
	require.NoError(t, err)

	// Another connection must not see the uncommitted write.
	other := e.NewConn()
	msg := exec(t, other, 2, "SELECT * FROM t", types.TxnNone)
	assert.Empty(t, msg.Rows)

	commit := types.Statements{Stmts: []types.Stmt{{Text: "COMMIT"}}, Txn: types.TxnEndHint}
	_, err = conn.Execute(1, commit)
	require.NoError(t, err)

	msg = exec(t, other, 2, "SELECT * FROM t", types.TxnNone)
	require.Len(t, msg.Rows, 1)
}

func TestTransactionRollbackDiscardsBuffer(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()
	exec(t, conn, 1, "CREATE TABLE t", types.TxnNone)

	begin := types.Statements{Stmts: []types.Stmt{{Text: "BEGIN"}, {Text: "INSERT INTO t k1 v=1"}}, Txn: types.TxnBeginHint}
	_, err := conn.Execute(1, begin)
	require.NoError(t, err)

	rollback := types.Statements{Stmts: []types.Stmt{{Text: "ROLLBACK"}}, Txn: types.TxnEndHint}
	_, err = conn.Execute(1, rollback)
	require.NoError(t, err)

	msg := exec(t, conn, 1, "SELECT * FROM t", types.TxnNone)
	assert.Empty(t, msg.Rows)
}

func TestDeleteRow(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()
	exec(t, conn, 1, "CREATE TABLE t", types.TxnNone)
	exec(t, conn, 1, "INSERT INTO t k1 v=1", types.TxnNone)
	exec(t, conn, 1, "DELETE FROM t k1", types.TxnNone)

	msg := exec(t, conn, 1, "SELECT * FROM t", types.TxnNone)
	assert.Empty(t, msg.Rows)
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := New(nil)
	conn := e.NewConn()
	exec(t, conn, 1, "CREATE TABLE t", types.TxnNone)
	exec(t, conn, 1, "INSERT INTO t k1 v=1", types.TxnNone)

	data := e.Snapshot(42)
	require.Contains(t, data.Tables, "t")
	assert.EqualValues(t, 42, data.LastSeq)

	restored := New(nil)
	restored.Restore(data)
	rconn := restored.NewConn()
	msg := exec(t, rconn, 1, "SELECT * FROM t", types.TxnNone)
	require.Len(t, msg.Rows, 1)
	assert.Equal(t, "1", msg.Rows[0]["v"])
}
