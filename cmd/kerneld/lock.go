package main

import (
	"fmt"
	"os"
	"syscall"

	"evkernel/internal/boundary"
	"evkernel/internal/boundary/unixtransport"
	"evkernel/internal/boundary/wstransport"
	"evkernel/internal/config"
	"evkernel/internal/logging"
)

// acquireInstanceLock takes an exclusive advisory lock on a ".lock" file
// next to socketPath, refusing to start a second kerneld against the same
// socket.
func acquireInstanceLock(socketPath string) (*os.File, error) {
	lockPath := socketPath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	return f, nil
}

// releaseInstanceLock releases the advisory lock and closes the file. Nil
// safe so defer can call it unconditionally.
func releaseInstanceLock(f *os.File) {
	if f == nil {
		return
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}

// newTransport builds the boundary transport selected by kernel.transport
// (default "unix"), binding the websocket transport to ipc.pipe_name when
// "websocket" is selected rather than the Unix-socket-shaped --socket flag.
func newTransport(cfg *config.Config, socketPath string, logger logging.Logger) (boundary.Transport, error) {
	if cfg.Section("kernel").GetString("transport") == "websocket" {
		return wstransport.New(cfg.Section("ipc").GetString("pipe_name"), logger)
	}
	return unixtransport.New(socketPath, logger)
}

func transportKind(cfg *config.Config) string {
	if cfg.Section("kernel").GetString("transport") == "websocket" {
		return "websocket"
	}
	return "unix"
}

func transportAddr(cfg *config.Config, socketPath string) string {
	if cfg.Section("kernel").GetString("transport") == "websocket" {
		return cfg.Section("ipc").GetString("pipe_name")
	}
	return socketPath
}
