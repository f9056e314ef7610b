package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

// dialFrame is a minimal test client speaking the same framed protocol.
type dialFrame struct {
	conn net.Conn
}

func dial(t *testing.T, addr string) *dialFrame {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	return &dialFrame{conn: conn}
}

func (d *dialFrame) send(t *testing.T, stmt string) {
	t.Helper()
	require.NoError(t, writeJSONFrame(d.conn, requestFrame{Stmt: stmt}))
}

func (d *dialFrame) recv(t *testing.T) responseFrame {
	t.Helper()
	var resp responseFrame
	d.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, readJSONFrame(d.conn, &resp))
	return resp
}

func TestServeAcceptsAndFramesRequest(t *testing.T) {
	serverMsgs := make(chan types.ServerMessage, 4)
	s, err := New("127.0.0.1:0", serverMsgs)
	require.NoError(t, err)
	go s.Serve()
	defer s.Close()

	client := dial(t, s.Addr())
	defer client.conn.Close()

	client.send(t, "CREATE TABLE t")

	select {
	case msg := <-serverMsgs:
		action, ok := msg.Action.(types.ExecuteAction)
		require.True(t, ok)
		require.Len(t, action.Statements.Stmts, 1)
		require.Equal(t, "CREATE TABLE t", action.Statements.Stmts[0].Text)
		msg.Responder.Respond(types.Message{ClientID: msg.ClientID})
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServerMessage")
	}

	resp := client.recv(t)
	require.Empty(t, resp.Error)
}

func TestServerSynthesizesDisconnectOnClose(t *testing.T) {
	serverMsgs := make(chan types.ServerMessage, 4)
	s, err := New("127.0.0.1:0", serverMsgs)
	require.NoError(t, err)
	go s.Serve()
	defer s.Close()

	client := dial(t, s.Addr())
	client.send(t, "CREATE TABLE t")

	msg := <-serverMsgs
	msg.Responder.Respond(types.Message{ClientID: msg.ClientID})
	client.recv(t)

	client.conn.Close()

	select {
	case disc := <-serverMsgs:
		_, ok := disc.Action.(types.DisconnectAction)
		require.True(t, ok)
		require.Equal(t, msg.ClientID, disc.ClientID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for DisconnectAction")
	}
}

func TestEmptyBatchIsScheduled(t *testing.T) {
	// An empty statement still parses fine (zero Stmts), so it reaches
	// serverMsgs as an ExecuteAction with no statements and its response
	// is written back to the client.
	serverMsgs := make(chan types.ServerMessage, 4)
	s, err := New("127.0.0.1:0", serverMsgs)
	require.NoError(t, err)
	go s.Serve()
	defer s.Close()

	client := dial(t, s.Addr())
	defer client.conn.Close()

	client.send(t, "")
	msg := <-serverMsgs
	action := msg.Action.(types.ExecuteAction)
	require.Empty(t, action.Statements.Stmts)
	msg.Responder.Respond(types.Message{ClientID: msg.ClientID})
	client.recv(t)
}
