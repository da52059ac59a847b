package unixtransport

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evkernel/internal/boundary"
)

func TestReceiveDecodesNextJSONObjectFromPeer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.sock")
	transport, err := New(path, nil)
	require.NoError(t, err)
	defer transport.Close()

	recv := make(chan boundary.Message, 1)
	recvErr := make(chan error, 1)
	go func() {
		msg, err := transport.Receive(context.Background())
		recvErr <- err
		recv <- msg
	}()

	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(boundary.Message{
		Type: "ping", Data: map[string]string{"n": "1"},
	}))

	select {
	case err := <-recvErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Receive")
	}
	msg := <-recv
	require.Equal(t, "ping", msg.Type)
	require.Equal(t, "1", msg.Data["n"])
}

func TestSendWritesJSONObjectToPeer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.sock")
	transport, err := New(path, nil)
	require.NoError(t, err)
	defer transport.Close()

	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// Send lazily accepts the queued connection the same way Receive does,
	// so issue one Receive first from a throwaway goroutine to drive Accept.
	received := make(chan struct{})
	go func() {
		_, _ = transport.Receive(context.Background())
		close(received)
	}()

	require.NoError(t, json.NewEncoder(conn).Encode(boundary.Message{Type: "probe"}))
	<-received

	require.NoError(t, transport.Send(context.Background(), boundary.Message{Type: "pong"}))

	var got boundary.Message
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, json.NewDecoder(conn).Decode(&got))
	require.Equal(t, "pong", got.Type)
}

func TestReceiveAcceptsNextConnectionAfterPeerDisconnects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.sock")
	transport, err := New(path, nil)
	require.NoError(t, err)
	defer transport.Close()

	first, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)

	require.NoError(t, json.NewEncoder(first).Encode(boundary.Message{Type: "ping"}))
	msg, err := transport.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ping", msg.Type)

	first.Close()

	recvErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := transport.Receive(ctx)
		recvErr <- err
	}()
	select {
	case err := <-recvErr:
		require.Error(t, err, "expected Receive to surface the dropped connection")
	case <-time.After(time.Second):
		t.Fatal("Receive did not observe the dropped connection in time")
	}

	second, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, json.NewEncoder(second).Encode(boundary.Message{Type: "ping-again"}))
	msg2, err := transport.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ping-again", msg2.Type)
}

func TestSendWithoutPeerReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.sock")
	transport, err := New(path, nil)
	require.NoError(t, err)
	defer transport.Close()

	require.Error(t, transport.Send(context.Background(), boundary.Message{Type: "pong"}))
}
