package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// LengthSize is the size of the generic payload length prefix.
	LengthSize = 4
	// MaxPayloadSize is the hard ceiling for a generic payload.
	MaxPayloadSize = 1 << 20
)

// ErrPayloadTooLarge is returned when a declared payload length exceeds the ceiling.
var ErrPayloadTooLarge = errors.New("protocol: generic payload too large")

// EncodeGeneric returns the complete wire form of a generic event: the frame,
// the 4-byte little-endian length and the serialized tree.
func EncodeGeneric(e Event, t *Tree) ([]byte, error) {
	body, err := t.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}
	e.Type = TypeGeneric
	buf := make([]byte, EventSize+LengthSize+len(body))
	e.MarshalTo(buf)
	binary.LittleEndian.PutUint32(buf[EventSize:], uint32(len(body)))
	copy(buf[EventSize+LengthSize:], body)
	return buf, nil
}

// Message is one decoded unit read from a channel. Tree is nil for plain
// input frames and for generic frames that declared an empty payload.
type Message struct {
	Event Event
	Tree  *Tree
}

// Reader decodes messages from a byte stream.
type Reader struct {
	r       io.Reader
	max     uint32
	hdr     [EventSize]byte
	lenBuf  [LengthSize]byte
	payload []byte
}

// NewReader returns a Reader enforcing maxPayload. Values of zero or above
// MaxPayloadSize are clamped to MaxPayloadSize.
func NewReader(r io.Reader, maxPayload int) *Reader {
	if maxPayload <= 0 || maxPayload > MaxPayloadSize {
		maxPayload = MaxPayloadSize
	}
	return &Reader{r: r, max: uint32(maxPayload)}
}

// Next reads exactly one frame and, for generic frames, its payload. Any
// short read, oversized length or undecodable payload is returned as an
// error; the caller is expected to stop reading.
func (r *Reader) Next() (Message, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		return Message{}, err
	}
	ev, err := UnmarshalEvent(r.hdr[:])
	if err != nil {
		return Message{}, err
	}
	if ev.Type != TypeGeneric {
		return Message{Event: ev}, nil
	}

	if _, err := io.ReadFull(r.r, r.lenBuf[:]); err != nil {
		return Message{}, err
	}
	size := binary.LittleEndian.Uint32(r.lenBuf[:])
	if size == 0 {
		return Message{Event: ev}, nil
	}
	if size > r.max {
		return Message{}, fmt.Errorf("%w: declared %d, limit %d", ErrPayloadTooLarge, size, r.max)
	}

	if cap(r.payload) < int(size) {
		r.payload = make([]byte, size)
	}
	buf := r.payload[:size]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Message{}, err
	}
	tree, err := UnmarshalTree(buf)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: ev, Tree: tree}, nil
}
