//go:build unix

package handoff

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/framelink/internal/runtimepath"
)

// Receive connects to the host's rendezvous service, sends the single
// request and returns the granted descriptor. The caller owns the file.
func Receive(ctx context.Context, service string) (*os.File, Grant, error) {
	socketPath, err := runtimepath.SocketPath(service)
	if err != nil {
		return nil, Grant{}, fmt.Errorf("resolve socket path: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, Grant{}, fmt.Errorf("failed to connect to %s: %w", service, err)
	}
	defer conn.Close()

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, Grant{}, fmt.Errorf("unexpected connection type %T", conn)
	}
	if deadline, ok := ctx.Deadline(); ok {
		uc.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { uc.Close() })
	defer stop()

	if _, err := uc.Write(encodeRequest(os.Getpid())); err != nil {
		return nil, Grant{}, fmt.Errorf("send handoff request: %w", err)
	}

	buf := make([]byte, grantSize)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := uc.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, Grant{}, fmt.Errorf("read handoff reply: %w", err)
	}

	fds, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, Grant{}, err
	}
	grant, err := decodeGrant(buf[:n])
	if err != nil {
		closeAll(fds)
		return nil, Grant{}, err
	}
	closeAll(fds[1:])
	return os.NewFile(uintptr(fds[0]), fmt.Sprintf("surface-%d", grant.ID)), grant, nil
}

func parseRights(oob []byte) ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		got, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	if len(fds) == 0 {
		return nil, ErrNoRights
	}
	return fds, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
