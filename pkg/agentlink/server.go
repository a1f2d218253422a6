// Package agentlink serves the per-session agent Unix stream socket:
// accept loop, peer-credential resolution, and framed read/write per
// pkg/agentproto. The low-level socket mechanics mirror the accept loop
// in api/pkg/drm/manager.go; what differs is the protocol riding on top.
package agentlink

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Conn is one accepted agent connection together with the peer's
// credentials resolved at accept time (spec.md §6: "Peer process
// credentials are queried on accept to resolve the session id").
type Conn struct {
	net.Conn
	PeerPID int32
	PeerUID uint32
	PeerGID uint32
}

// Server listens on a Unix stream socket at SocketPath (created with mode
// 0666 per spec.md §6) and hands each accepted connection, with its peer
// credentials already resolved, to Handler.
type Server struct {
	SocketPath string
	Handler    func(*Conn)
	log        *slog.Logger

	ln net.Listener
}

// NewServer returns a Server that will listen on socketPath once Run is
// called.
func NewServer(socketPath string, handler func(*Conn), log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{SocketPath: socketPath, Handler: handler, log: log}
}

// Run creates the socket and accepts connections until ctx-driven Close is
// called or Accept fails permanently. It blocks the calling goroutine;
// callers typically run it in its own supervised goroutine.
func (s *Server) Run() error {
	if dir := filepath.Dir(s.SocketPath); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("agentlink: mkdir %s: %w", dir, err)
		}
	}
	os.Remove(s.SocketPath)

	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("agentlink: listen %s: %w", s.SocketPath, err)
	}
	if err := os.Chmod(s.SocketPath, 0666); err != nil {
		s.log.Warn("chmod agent socket failed", "path", s.SocketPath, "err", err)
	}
	s.ln = ln

	s.log.Info("agent socket listening", "path", s.SocketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ln == nil {
				return nil // Close already called
			}
			return fmt.Errorf("agentlink: accept: %w", err)
		}

		ac, err := resolvePeer(conn)
		if err != nil {
			s.log.Warn("peer credential lookup failed; closing connection", "err", err)
			conn.Close()
			continue
		}
		go s.Handler(ac)
	}
}

// Close stops accepting new connections and unlinks the socket file.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	ln := s.ln
	s.ln = nil
	err := ln.Close()
	os.Remove(s.SocketPath)
	return err
}

func resolvePeer(conn net.Conn) (*Conn, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("agentlink: connection is not a Unix socket")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("agentlink: syscall conn: %w", err)
	}

	var ucred *unix.Ucred
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		ucred, ctrlErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("agentlink: control: %w", err)
	}
	if ctrlErr != nil {
		return nil, fmt.Errorf("agentlink: getsockopt SO_PEERCRED: %w", ctrlErr)
	}

	return &Conn{
		Conn:    conn,
		PeerPID: ucred.Pid,
		PeerUID: ucred.Uid,
		PeerGID: ucred.Gid,
	}, nil
}
