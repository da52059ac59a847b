// Package wstransport implements boundary.Transport over a loopback-only
// WebSocket connection, offered as an alternative to the Unix domain socket
// transport for hosts whose shell prefers an HTTP-upgraded link.
package wstransport

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"evkernel/internal/boundary"
	"evkernel/internal/kernelerr"
	"evkernel/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		return host == "" || host == "127.0.0.1" || host == "localhost"
	},
}

// Transport serves a single WebSocket connection on a loopback HTTP server,
// accepted at /ws.
type Transport struct {
	addr   string
	logger logging.Logger
	server *http.Server

	connMu sync.Mutex
	conn   *websocket.Conn
	ready  chan struct{}
}

// New starts an HTTP server bound to addr (e.g. "127.0.0.1:9090") exposing a
// single /ws upgrade route and a /healthz probe.
func New(addr string, logger logging.Logger) (*Transport, error) {
	t := &Transport{addr: addr, logger: logging.OrNop(logger), ready: make(chan struct{})}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://127.0.0.1", "http://localhost"},
		AllowMethods: []string{"GET"},
	}))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/ws", t.handleUpgrade)

	t.server = &http.Server{Addr: addr, Handler: router}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.CategoryIO, kernelerr.CodeIOFailed, "listen for websocket transport", err)
	}

	go func() {
		_ = t.server.Serve(ln)
	}()

	return t, nil
}

func (t *Transport) handleUpgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn = conn
	select {
	case <-t.ready:
	default:
		close(t.ready)
	}
	t.connMu.Unlock()

	t.logger.Info("boundary: websocket peer connected on %s", t.addr)
}

// Receive blocks until the next JSON message arrives over the active
// connection, waiting for a peer to connect if none has yet. A read failure
// drops the current connection and leaves Receive waiting for the next
// peer to upgrade, rather than wedging the transport against a dead conn.
func (t *Transport) Receive(ctx context.Context) (boundary.Message, error) {
	for {
		t.connMu.Lock()
		conn, ready := t.conn, t.ready
		t.connMu.Unlock()

		if conn == nil {
			select {
			case <-ready:
				continue
			case <-ctx.Done():
				return boundary.Message{}, ctx.Err()
			}
		}

		var msg boundary.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.clearConn(conn)
			return boundary.Message{}, kernelerr.Wrap(kernelerr.CategoryIPC, kernelerr.CodeIPCDecodeFailed, "decode message", err)
		}
		return msg, nil
	}
}

// clearConn drops conn as the active connection, but only if no newer
// connection has already replaced it, and arms a fresh ready channel for
// the next peer to close on upgrade.
func (t *Transport) clearConn(conn *websocket.Conn) {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == conn {
		_ = conn.Close()
		t.conn = nil
		t.ready = make(chan struct{})
	}
}

// Send writes msg as a JSON text frame to the active connection.
func (t *Transport) Send(ctx context.Context, msg boundary.Message) error {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return kernelerr.New(kernelerr.CategoryIPC, kernelerr.CodeIPCWriteFailed, "no connected peer")
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.clearConn(conn)
		return kernelerr.Wrap(kernelerr.CategoryIPC, kernelerr.CodeIPCWriteFailed, "encode message", err)
	}
	return nil
}

// Close shuts down the HTTP server and any open connection.
func (t *Transport) Close() error {
	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.connMu.Unlock()
	return t.server.Close()
}
