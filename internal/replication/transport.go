// ============================================================================
// Falcon-SQL Replication - Wire Transport
// ============================================================================
//
// Package: internal/replication
// File: transport.go
// Function: Implements the Transport interface raft.go depends on over a
// plain net+encoding/gob framed connection, rather than gRPC - Falcon-SQL
// has no protobuf service definitions in its dependency pack, so RPCs are
// a single gob-encoded rpcRequest/rpcReply pair per call, length-prefixed
// on the wire.
//
// One persistent net.Conn per peer is cached and reused across calls, the
// same dial-cache shape the teacher's gRPC transport used; a failed write
// or read drops the cached connection so the next call redials.
//
// ============================================================================

package replication

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// rpcKind distinguishes the two RPCs multiplexed over one connection type.
type rpcKind uint8

const (
	rpcRequestVote rpcKind = iota
	rpcAppendEntries
)

// rpcRequest is the single envelope gob-encoded for every outbound call.
type rpcRequest struct {
	Kind     rpcKind
	VoteArgs RequestVoteArgs
	AEArgs   AppendEntriesArgs
}

// rpcReply is the single envelope gob-decoded for every response.
type rpcReply struct {
	VoteReply RequestVoteReply
	AEReply   AppendEntriesReply
}

const rpcTimeout = 200 * time.Millisecond

// TCPTransport implements Transport over persistent, cached TCP connections.
type TCPTransport struct {
	mu    sync.Mutex
	conns map[string]net.Conn
}

// NewTCPTransport creates a TCPTransport with an empty connection cache.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{conns: make(map[string]net.Conn)}
}

func (t *TCPTransport) getConn(peer string) (net.Conn, error) {
	t.mu.Lock()
	if conn, ok := t.conns[peer]; ok {
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()

	conn, err := net.DialTimeout("tcp", peer, rpcTimeout)
	if err != nil {
		return nil, fmt.Errorf("replication: dial peer %s: %w", peer, err)
	}

	t.mu.Lock()
	t.conns[peer] = conn
	t.mu.Unlock()
	return conn, nil
}

func (t *TCPTransport) drop(peer string, conn net.Conn) {
	t.mu.Lock()
	if cur, ok := t.conns[peer]; ok && cur == conn {
		delete(t.conns, peer)
	}
	t.mu.Unlock()
	conn.Close()
}

// call sends req to peer and decodes the reply, length-prefixing both the
// gob-encoded request and reply so a stream reader knows where one frame
// ends and the next begins.
func (t *TCPTransport) call(peer string, req rpcRequest) (rpcReply, error) {
	conn, err := t.getConn(peer)
	if err != nil {
		return rpcReply{}, err
	}

	conn.SetDeadline(time.Now().Add(rpcTimeout))

	if err := writeFrame(conn, req); err != nil {
		t.drop(peer, conn)
		return rpcReply{}, fmt.Errorf("replication: send rpc to %s: %w", peer, err)
	}

	var reply rpcReply
	if err := readFrame(conn, &reply); err != nil {
		t.drop(peer, conn)
		return rpcReply{}, fmt.Errorf("replication: read rpc reply from %s: %w", peer, err)
	}

	return reply, nil
}

// SendRequestVote sends a RequestVote RPC to a peer.
func (t *TCPTransport) SendRequestVote(peer string, args *RequestVoteArgs) (*RequestVoteReply, error) {
	reply, err := t.call(peer, rpcRequest{Kind: rpcRequestVote, VoteArgs: *args})
	if err != nil {
		return nil, err
	}
	return &reply.VoteReply, nil
}

// SendAppendEntries sends an AppendEntries RPC to a peer.
func (t *TCPTransport) SendAppendEntries(peer string, args *AppendEntriesArgs) (*AppendEntriesReply, error) {
	reply, err := t.call(peer, rpcRequest{Kind: rpcAppendEntries, AEArgs: *args})
	if err != nil {
		return nil, err
	}
	return &reply.AEReply, nil
}

// Server listens for RPC connections from peers and dispatches them against
// a local *Raft. It is the receiving half of TCPTransport.
type Server struct {
	rf       *Raft
	listener net.Listener
}

// NewServer binds addr and returns a Server ready to Serve RPCs against rf.
func NewServer(addr string, rf *Raft) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("replication: listen %s: %w", addr, err)
	}
	return &Server{rf: rf, listener: ln}, nil
}

// Addr returns the address the Server is bound to.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		var req rpcRequest
		if err := readFrame(conn, &req); err != nil {
			return
		}

		var reply rpcReply
		switch req.Kind {
		case rpcRequestVote:
			s.rf.RequestVote(&req.VoteArgs, &reply.VoteReply)
		case rpcAppendEntries:
			s.rf.AppendEntries(&req.AEArgs, &reply.AEReply)
		default:
			return
		}

		conn.SetDeadline(time.Now().Add(rpcTimeout))
		if err := writeFrame(conn, reply); err != nil {
			return
		}
	}
}

// writeFrame gob-encodes v and writes it length-prefixed to w.
func writeFrame(w net.Conn, v interface{}) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(v); err != nil {
		return fmt.Errorf("replication: gob encode: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(body.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// readFrame reads one length-prefixed gob frame from r into v.
func readFrame(r net.Conn, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}

	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}
