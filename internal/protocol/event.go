package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EventSize is the size of every event frame on the wire.
const EventSize = 16

// EventType identifies what an event frame carries.
type EventType uint8

const (
	TypeMouse   EventType = 1
	TypeKey     EventType = 2
	TypeFocus   EventType = 3
	TypeResize  EventType = 4
	TypeGeneric EventType = 5
	// TypeSurface announces a surface id on the global lookup path.
	TypeSurface EventType = 6
	// TypeFrame is sent by the renderer after a frame landed in a surface.
	TypeFrame EventType = 7
)

// Action qualifies mouse and key events.
type Action uint8

const (
	ActionNone    Action = 0
	ActionMove    Action = 1
	ActionPress   Action = 2
	ActionRelease Action = 3
	ActionScroll  Action = 4
)

// Modifier bits.
const (
	ModShift uint8 = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// ErrShortFrame is returned when fewer than EventSize bytes are decoded.
var ErrShortFrame = errors.New("protocol: short event frame")

// Event is the fixed 16-byte frame exchanged between host and renderer.
//
//	0      1        2        3           4   6   8       10      12          16
//	| type | action | button | modifiers | x | y | data1 | data2 | timestamp |
//
// For TypeResize, TypeSurface and TypeFrame the timestamp field carries a
// surface id instead of milliseconds.
type Event struct {
	Type      EventType
	Action    Action
	Button    uint8
	Modifiers uint8
	X         int16
	Y         int16
	Data1     int16
	Data2     int16
	Timestamp uint32
}

// CarriesSurfaceID reports whether the timestamp field holds a surface id.
func (e Event) CarriesSurfaceID() bool {
	switch e.Type {
	case TypeResize, TypeSurface, TypeFrame:
		return true
	}
	return false
}

// SurfaceID returns the surface id carried by resize, surface and frame events.
func (e Event) SurfaceID() uint32 {
	if !e.CarriesSurfaceID() {
		return 0
	}
	return e.Timestamp
}

// MarshalTo writes the frame into b, which must hold at least EventSize bytes.
func (e Event) MarshalTo(b []byte) {
	_ = b[EventSize-1]
	b[0] = byte(e.Type)
	b[1] = byte(e.Action)
	b[2] = e.Button
	b[3] = e.Modifiers
	binary.LittleEndian.PutUint16(b[4:], uint16(e.X))
	binary.LittleEndian.PutUint16(b[6:], uint16(e.Y))
	binary.LittleEndian.PutUint16(b[8:], uint16(e.Data1))
	binary.LittleEndian.PutUint16(b[10:], uint16(e.Data2))
	binary.LittleEndian.PutUint32(b[12:], e.Timestamp)
}

// Marshal returns the 16-byte wire form of the frame.
func (e Event) Marshal() []byte {
	b := make([]byte, EventSize)
	e.MarshalTo(b)
	return b
}

// UnmarshalEvent decodes a frame. It never interprets a partial frame.
func UnmarshalEvent(b []byte) (Event, error) {
	if len(b) < EventSize {
		return Event{}, fmt.Errorf("%w: got %d bytes", ErrShortFrame, len(b))
	}
	return Event{
		Type:      EventType(b[0]),
		Action:    Action(b[1]),
		Button:    b[2],
		Modifiers: b[3],
		X:         int16(binary.LittleEndian.Uint16(b[4:])),
		Y:         int16(binary.LittleEndian.Uint16(b[6:])),
		Data1:     int16(binary.LittleEndian.Uint16(b[8:])),
		Data2:     int16(binary.LittleEndian.Uint16(b[10:])),
		Timestamp: binary.LittleEndian.Uint32(b[12:]),
	}, nil
}

func (t EventType) String() string {
	switch t {
	case TypeMouse:
		return "mouse"
	case TypeKey:
		return "key"
	case TypeFocus:
		return "focus"
	case TypeResize:
		return "resize"
	case TypeGeneric:
		return "generic"
	case TypeSurface:
		return "surface"
	case TypeFrame:
		return "frame"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}
