package protocol

import "math"

// ScrollScale is the fixed-point factor applied to scroll deltas.
const ScrollScale = 10000

// MouseMove builds a pointer motion event.
func MouseMove(x, y int, modifiers uint8) Event {
	return Event{
		Type:      TypeMouse,
		Action:    ActionMove,
		Modifiers: modifiers,
		X:         clamp16(x),
		Y:         clamp16(y),
	}
}

// MouseButton builds a press or release event for button.
func MouseButton(x, y int, button uint8, pressed bool, modifiers uint8) Event {
	action := ActionRelease
	if pressed {
		action = ActionPress
	}
	return Event{
		Type:      TypeMouse,
		Action:    action,
		Button:    button,
		Modifiers: modifiers,
		X:         clamp16(x),
		Y:         clamp16(y),
	}
}

// MouseScroll builds a scroll event; deltas travel as fixed point in data1/data2.
func MouseScroll(x, y int, deltaX, deltaY float64, modifiers uint8) Event {
	return Event{
		Type:      TypeMouse,
		Action:    ActionScroll,
		Modifiers: modifiers,
		X:         clamp16(x),
		Y:         clamp16(y),
		Data1:     clamp16(int(math.Round(deltaX * ScrollScale))),
		Data2:     clamp16(int(math.Round(deltaY * ScrollScale))),
	}
}

// ScrollDelta decodes the fixed-point scroll deltas of a scroll event.
func (e Event) ScrollDelta() (dx, dy float64) {
	return float64(e.Data1) / ScrollScale, float64(e.Data2) / ScrollScale
}

// Key builds a key event. The codepoint is split low/high across data1/data2.
func Key(keyCode int, codepoint rune, pressed bool, modifiers uint8) Event {
	action := ActionRelease
	if pressed {
		action = ActionPress
	}
	cp := uint32(codepoint)
	return Event{
		Type:      TypeKey,
		Action:    action,
		Modifiers: modifiers,
		X:         clamp16(keyCode),
		Data1:     int16(uint16(cp & 0xFFFF)),
		Data2:     int16(uint16(cp >> 16)),
	}
}

// Codepoint reassembles the codepoint of a key event.
func (e Event) Codepoint() rune {
	return rune(uint32(uint16(e.Data1)) | uint32(uint16(e.Data2))<<16)
}

// Focus builds a focus change event.
func Focus(focused bool) Event {
	e := Event{Type: TypeFocus}
	if focused {
		e.Data1 = 1
	}
	return e
}

// Resize builds a resize event. The timestamp field carries the id of the
// surface the renderer must switch to.
func Resize(width, height int, scale float64, surfaceID uint32) Event {
	return Event{
		Type:      TypeResize,
		X:         clamp16(width),
		Y:         clamp16(height),
		Data1:     clamp16(int(math.Round(scale * 100))),
		Timestamp: surfaceID,
	}
}

// Scale decodes the display scale of a resize event.
func (e Event) Scale() float64 {
	return float64(e.Data1) / 100
}

// SurfaceRef announces a surface id to a renderer that looks surfaces up globally.
func SurfaceRef(surfaceID uint32) Event {
	return Event{Type: TypeSurface, Timestamp: surfaceID}
}

// FrameReady tells the host that a frame was rendered into surfaceID.
func FrameReady(surfaceID uint32) Event {
	return Event{Type: TypeFrame, Timestamp: surfaceID}
}

func clamp16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
