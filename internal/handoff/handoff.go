// Package handoff transfers a surface's access right to a renderer through a
// private rendezvous socket instead of a globally visible name.
//
// The host registers a socket named after its pid, passes the name to the
// renderer on the command line, and answers exactly one request with a
// duplicate of the surface descriptor carried as SCM_RIGHTS ancillary data.
// The host keeps its own descriptor and remains responsible for releasing
// the surface.
package handoff

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrAlreadyRegistered means another registration holds this process's
	// service name. Callers fall back to the global surface id path.
	ErrAlreadyRegistered = errors.New("handoff: service already registered in this process")
	ErrNotRegistered     = errors.New("handoff: server not registered")
	ErrSpent             = errors.New("handoff: port already sent")
	ErrClosed            = errors.New("handoff: server closed")
	ErrBadMessage        = errors.New("handoff: malformed message")
	ErrNoRights          = errors.New("handoff: reply carried no descriptor")
	ErrUnsupported       = errors.New("handoff: not supported on this platform")
)

const (
	requestSize = 10
	grantSize   = 16
)

var (
	requestMagic = [6]byte{'F', 'L', 'R', 'E', 'Q', '1'}
	grantMagic   = [4]byte{'F', 'L', 'G', 'R'}
)

// Grant describes the surface whose descriptor accompanies a reply.
type Grant struct {
	ID     uint32
	Width  uint32
	Height uint32
}

func encodeRequest(pid int) []byte {
	b := make([]byte, requestSize)
	copy(b, requestMagic[:])
	binary.LittleEndian.PutUint32(b[6:], uint32(pid))
	return b
}

func decodeRequest(b []byte) (pid int, err error) {
	if len(b) != requestSize || string(b[:6]) != string(requestMagic[:]) {
		return 0, ErrBadMessage
	}
	return int(binary.LittleEndian.Uint32(b[6:])), nil
}

func encodeGrant(g Grant) []byte {
	b := make([]byte, grantSize)
	copy(b, grantMagic[:])
	binary.LittleEndian.PutUint32(b[4:], g.ID)
	binary.LittleEndian.PutUint32(b[8:], g.Width)
	binary.LittleEndian.PutUint32(b[12:], g.Height)
	return b
}

func decodeGrant(b []byte) (Grant, error) {
	if len(b) < grantSize || string(b[:4]) != string(grantMagic[:]) {
		return Grant{}, ErrBadMessage
	}
	return Grant{
		ID:     binary.LittleEndian.Uint32(b[4:]),
		Width:  binary.LittleEndian.Uint32(b[8:]),
		Height: binary.LittleEndian.Uint32(b[12:]),
	}, nil
}
