// ============================================================================
// Falcon-SQL Front End - TCP Wire Server
// ============================================================================
//
// Package: internal/server
// File: server.go
// Function: Accepts client TCP connections, turns length-prefixed JSON
// frames into types.ServerMessage and feeds them to the controller's
// scheduler, and delivers each Job's result back down the same connection
// (spec §5.1, §6).
//
// A SQL client connection is session-shaped, unlike the teacher's
// unary-per-call job submission RPC: one goroutine per connection reads
// frames in a loop and assigns the connection a ClientID on accept, reusing
// the teacher's connection-registry (NewServer/registry map) lifecycle
// pattern but keeping the connection open across many statement batches
// instead of one call per job.
//
// Wire format: each frame is a 4-byte big-endian length prefix followed by
// that many bytes of JSON. A client sends a requestFrame and reads exactly
// one responseFrame per request; the server reads until EOF/error, which
// synthesizes a DisconnectAction for that client.
//
// ============================================================================

package server

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/falcon-sql/internal/statements"
	"github.com/ChuLiYu/falcon-sql/pkg/types"
)

var log = slog.Default()

const maxFrameSize = 16 << 20 // 16 MiB, guards against a bad length prefix

// requestFrame is what a client sends: raw SQL text for one batch.
type requestFrame struct {
	Stmt string `json:"stmt"`
}

// responseFrame is what the server sends back for one batch.
type responseFrame struct {
	Rows  []map[string]string `json:"rows,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Server accepts client connections and feeds their statement batches into
// a scheduler via serverMsgs.
type Server struct {
	listener   net.Listener
	serverMsgs chan<- types.ServerMessage

	nextClientID atomic.Uint64

	mu    sync.Mutex
	conns map[types.ClientID]net.Conn
}

// New binds addr and returns a Server that will push ServerMessages onto
// serverMsgs once Serve is called.
func New(addr string, serverMsgs chan<- types.ServerMessage) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return &Server{
		listener:   ln,
		serverMsgs: serverMsgs,
		conns:      make(map[types.ClientID]net.Conn),
	}, nil
}

// Addr returns the address the Server is bound to.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until the listener is closed, spawning one
// goroutine per connection. It returns nil on a clean Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		clientID := types.ClientID(s.nextClientID.Add(1))
		s.register(clientID, conn)
		go s.handleConn(clientID, conn)
	}
}

// Close stops accepting new connections and closes every registered one,
// synthesizing no Disconnect messages itself - each handleConn goroutine
// does that on its own read error.
func (s *Server) Close() error {
	err := s.listener.Close()

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return err
}

func (s *Server) register(id types.ClientID, conn net.Conn) {
	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()
}

func (s *Server) unregister(id types.ClientID) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// connResponder delivers one client's Messages back over its TCP connection,
// serializing writes since a transaction batch may be answered from a
// different worker goroutine than the one before it.
type connResponder struct {
	mu   sync.Mutex
	conn net.Conn
}

// Respond implements types.Responder.
func (r *connResponder) Respond(msg types.Message) {
	resp := responseFrame{Rows: msg.Rows}
	if msg.Err != nil {
		resp.Error = msg.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeJSONFrame(r.conn, resp); err != nil {
		log.Warn("server: failed writing response", "client_id", msg.ClientID, "error", err)
	}
}

func (s *Server) handleConn(clientID types.ClientID, conn net.Conn) {
	defer func() {
		conn.Close()
		s.unregister(clientID)
		s.serverMsgs <- types.ServerMessage{ClientID: clientID, Action: types.DisconnectAction{}}
	}()

	responder := &connResponder{conn: conn}
	log.Info("server: client connected", "client_id", clientID, "remote", conn.RemoteAddr())

	for {
		var req requestFrame
		if err := readJSONFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("server: read error, disconnecting client", "client_id", clientID, "error", err)
			}
			return
		}

		stmts, err := statements.Parse(req.Stmt)
		if err != nil {
			responder.Respond(types.Message{ClientID: clientID, Err: err})
			continue
		}

		s.serverMsgs <- types.ServerMessage{
			ClientID:  clientID,
			Action:    types.ExecuteAction{Statements: stmts},
			Responder: responder,
		}
	}
}

// writeJSONFrame JSON-encodes v and writes it length-prefixed to w.
func writeJSONFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: marshal frame: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readJSONFrame reads one length-prefixed JSON frame from r into v.
func readJSONFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return fmt.Errorf("server: frame too large: %d bytes", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}
