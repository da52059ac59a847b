// Package unixtransport implements boundary.Transport over a Unix domain
// socket, the local-only wire the kernel listens on by default.
package unixtransport

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"

	"evkernel/internal/boundary"
	"evkernel/internal/kernelerr"
	"evkernel/internal/logging"
)

// Transport listens on a Unix domain socket and serves one connection at a
// time, decoding consecutive unframed JSON objects directly off the wire.
type Transport struct {
	path     string
	logger   logging.Logger
	listener *net.UnixListener

	mu   sync.Mutex
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
}

// New binds a Unix domain socket at path, removing any stale socket file
// left behind by a previous run.
func New(path string, logger logging.Logger) (*Transport, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CategoryIO, kernelerr.CodeIOFailed, "resolve socket path", err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CategoryIO, kernelerr.CodeIOFailed, "listen on socket", err)
	}

	return &Transport{path: path, logger: logging.OrNop(logger), listener: listener}, nil
}

// Receive blocks until the next JSON message arrives, accepting a new
// connection first if none is currently open. ctx is not consulted: a
// Receive blocked in Accept or in a read returns only when a message
// arrives, the connection fails, or the transport is closed.
func (t *Transport) Receive(ctx context.Context) (boundary.Message, error) {
	if err := t.ensureConn(); err != nil {
		return boundary.Message{}, err
	}

	var msg boundary.Message
	if err := t.dec.Decode(&msg); err != nil {
		t.closeConn()
		return boundary.Message{}, kernelerr.Wrap(kernelerr.CategoryIPC, kernelerr.CodeIPCDecodeFailed, "decode message", err)
	}
	return msg, nil
}

// Send writes msg as a JSON object to the current connection.
func (t *Transport) Send(ctx context.Context, msg boundary.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enc == nil {
		return kernelerr.New(kernelerr.CategoryIPC, kernelerr.CodeIPCWriteFailed, "no connected peer")
	}
	if err := t.enc.Encode(msg); err != nil {
		return kernelerr.Wrap(kernelerr.CategoryIPC, kernelerr.CodeIPCWriteFailed, "encode message", err)
	}
	return nil
}

// Close shuts down the listener and any open connection.
func (t *Transport) Close() error {
	t.closeConn()
	if err := t.listener.Close(); err != nil {
		return kernelerr.Wrap(kernelerr.CategoryIO, kernelerr.CodeIOFailed, "close listener", err)
	}
	_ = os.Remove(t.path)
	return nil
}

func (t *Transport) ensureConn() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}

	conn, err := t.listener.Accept()
	if err != nil {
		return kernelerr.Wrap(kernelerr.CategoryIO, kernelerr.CodeIOFailed, "accept connection", err)
	}
	t.conn = conn
	t.dec = json.NewDecoder(conn)
	t.enc = json.NewEncoder(conn)
	t.logger.Info("boundary: accepted connection on %s", t.path)
	return nil
}

func (t *Transport) closeConn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
		t.dec = nil
		t.enc = nil
	}
}
