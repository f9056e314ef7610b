// ============================================================================
// Falcon-SQL Remote Client
// ============================================================================
//
// Package: internal/config
// File: remote_client.go
// Function: The client half of a pure-Remote Builder runtime - dials a
// primary's TCP front end and speaks the same length-prefixed JSON framing
// internal/server implements, forwarding statements and returning their
// response with no local engine involved at all.
//
// ============================================================================

package config

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// remoteRequestFrame mirrors internal/server's requestFrame.
type remoteRequestFrame struct {
	Stmt string `json:"stmt"`
}

// RemoteResult mirrors internal/server's responseFrame.
type RemoteResult struct {
	Rows  []map[string]string `json:"rows,omitempty"`
	Error string              `json:"error,omitempty"`
}

const remoteDialTimeout = 5 * time.Second

// RemoteClient is a long-lived connection to a primary's TCP front end.
type RemoteClient struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewRemoteClient returns a client that will lazily dial addr on first use.
func NewRemoteClient(addr string) *RemoteClient {
	return &RemoteClient{addr: addr}
}

// Exec forwards stmt to the primary and returns its response.
func (c *RemoteClient) Exec(stmt string) (RemoteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := net.DialTimeout("tcp", c.addr, remoteDialTimeout)
		if err != nil {
			return RemoteResult{}, fmt.Errorf("config: dial primary %s: %w", c.addr, err)
		}
		c.conn = conn
	}

	if err := writeJSONFrame(c.conn, remoteRequestFrame{Stmt: stmt}); err != nil {
		c.conn.Close()
		c.conn = nil
		return RemoteResult{}, fmt.Errorf("config: send statement to %s: %w", c.addr, err)
	}

	var result RemoteResult
	if err := readJSONFrame(c.conn, &result); err != nil {
		c.conn.Close()
		c.conn = nil
		return RemoteResult{}, fmt.Errorf("config: read response from %s: %w", c.addr, err)
	}

	return result, nil
}

// Close closes the underlying connection, if any.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func writeJSONFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readJSONFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
