//go:build unix

package handoff

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/runtimepath"
)

// Server is the host side of a single-shot handoff.
type Server struct {
	mu         sync.Mutex
	name       string
	socketPath string
	lockPath   string
	lock       *flock.Flock
	listener   *net.UnixListener
	spent      bool
	closed     bool
}

// NewServer returns an unregistered server.
func NewServer() *Server {
	return &Server{}
}

// CreateServer registers the rendezvous socket and returns its service name.
// Only one registration per process can exist at a time; a second one fails
// with ErrAlreadyRegistered.
func (s *Server) CreateServer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return "", ErrAlreadyRegistered
	}

	name := runtimepath.ServiceName(os.Getpid())
	lockPath, err := runtimepath.LockPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve lock path: %w", err)
	}
	socketPath, err := runtimepath.SocketPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve socket path: %w", err)
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("acquire registration lock: %w", err)
	}
	if !ok {
		return "", ErrAlreadyRegistered
	}

	// Holding the lock means any socket file left behind is stale.
	os.Remove(socketPath)

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		lock.Unlock()
		return "", fmt.Errorf("failed to create rendezvous socket: %w", err)
	}
	ln.SetUnlinkOnClose(false)

	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		os.Remove(socketPath)
		lock.Unlock()
		return "", fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.name = name
	s.socketPath = socketPath
	s.lockPath = lockPath
	s.lock = lock
	s.listener = ln
	s.spent = false
	s.closed = false

	logging.Logger().Debug("handoff server registered", "service", name, "socket", socketPath)
	return name, nil
}

// Name returns the registered service name, or "".
func (s *Server) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SendPort blocks until a renderer connects, reads its single request and
// replies with grant and a duplicate of f's descriptor. It serves exactly one
// request; later calls return ErrSpent. DestroyServer unblocks a pending call
// with ErrClosed.
func (s *Server) SendPort(f *os.File, grant Grant) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.listener == nil {
		s.mu.Unlock()
		return ErrNotRegistered
	}
	if s.spent {
		s.mu.Unlock()
		return ErrSpent
	}
	s.spent = true
	ln := s.listener
	s.mu.Unlock()

	conn, err := ln.AcceptUnix()
	if err != nil {
		if s.isClosed() || errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("accept handoff connection: %w", err)
	}
	defer conn.Close()

	req := make([]byte, requestSize)
	if _, err := io.ReadFull(conn, req); err != nil {
		return fmt.Errorf("read handoff request: %w", err)
	}
	pid, err := decodeRequest(req)
	if err != nil {
		return err
	}

	oob := unix.UnixRights(int(f.Fd()))
	n, oobn, err := conn.WriteMsgUnix(encodeGrant(grant), oob, nil)
	if err != nil {
		return fmt.Errorf("send surface descriptor: %w", err)
	}
	if n != grantSize || oobn != len(oob) {
		return fmt.Errorf("send surface descriptor: short write (%d/%d, %d/%d)", n, grantSize, oobn, len(oob))
	}

	logging.Logger().Info("surface handed off", "service", s.Name(), "surface_id", grant.ID, "client_pid", pid)
	return nil
}

// DestroyServer tears the registration down. It is safe to call repeatedly
// and from another goroutine than SendPort.
func (s *Server) DestroyServer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil && s.lock == nil {
		s.closed = true
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
		os.Remove(s.socketPath)
		s.listener = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			logging.Logger().Warn("failed to release handoff lock", "path", s.lockPath, "error", err)
		}
		os.Remove(s.lockPath)
		s.lock = nil
	}
	logging.Logger().Debug("handoff server destroyed", "service", s.name)
	s.name = ""
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
