//go:build unix

package process

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func newSocketChannel() (*channel, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	hostFile := os.NewFile(uintptr(fds[0]), "framelink-host")
	childFile := os.NewFile(uintptr(fds[1]), "framelink-renderer")

	conn, err := net.FileConn(hostFile)
	hostFile.Close()
	if err != nil {
		childFile.Close()
		return nil, fmt.Errorf("wrap host socket: %w", err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		childFile.Close()
		return nil, fmt.Errorf("socketpair produced %T", conn)
	}

	return &channel{
		hostWriter: halfCloser{uc},
		hostReader: uc,
		childEnds:  []*os.File{childFile},
		extra:      []*os.File{childFile},
	}, nil
}

// halfCloser makes Close on the write side a shutdown(SHUT_WR), so the
// renderer sees end of input while the host can still read.
type halfCloser struct {
	*net.UnixConn
}

func (h halfCloser) Close() error {
	return h.UnixConn.CloseWrite()
}

func alive(p *os.Process) bool {
	return p.Signal(syscall.Signal(0)) == nil
}
