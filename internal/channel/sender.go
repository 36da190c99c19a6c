// Package channel carries protocol messages over the host↔renderer link.
package channel

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/1broseidon/framelink/internal/protocol"
)

// ErrNotConnected is returned by a Sender without a writer.
var ErrNotConnected = errors.New("channel: not connected")

// Sender writes messages to the channel. It is safe for concurrent use;
// every message goes out in a single Write under one lock so frames from
// different callers never interleave.
type Sender struct {
	mu    sync.Mutex
	w     io.Writer
	start time.Time
	frame [protocol.EventSize]byte
}

// NewSender returns a sender writing to w. Timestamps count milliseconds
// from this call.
func NewSender(w io.Writer) *Sender {
	return &Sender{w: w, start: time.Now()}
}

func (s *Sender) stamp(e protocol.Event) protocol.Event {
	if !e.CarriesSurfaceID() {
		e.Timestamp = uint32(time.Since(s.start).Milliseconds())
	}
	return e
}

// SendInput writes one fixed frame. Frames that carry a surface id keep
// their timestamp field untouched.
func (s *Sender) SendInput(e protocol.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrNotConnected
	}
	s.stamp(e).MarshalTo(s.frame[:])
	if _, err := s.w.Write(s.frame[:]); err != nil {
		return fmt.Errorf("send %s: %w", e.Type, err)
	}
	return nil
}

// SendSurfaceRef announces a surface id on the global lookup path.
func (s *Sender) SendSurfaceRef(id uint32) error {
	return s.SendInput(protocol.SurfaceRef(id))
}

// SendResize tells the renderer to switch to surface id at the new size.
func (s *Sender) SendResize(width, height int, scale float64, id uint32) error {
	return s.SendInput(protocol.Resize(width, height, scale, id))
}

// SendFrame reports that a frame landed in surface id.
func (s *Sender) SendFrame(id uint32) error {
	return s.SendInput(protocol.FrameReady(id))
}

// SendEvent writes a generic frame followed by its length-prefixed tree.
func (s *Sender) SendEvent(t *protocol.Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrNotConnected
	}
	msg, err := protocol.EncodeGeneric(s.stamp(protocol.Event{Type: protocol.TypeGeneric}), t)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(msg); err != nil {
		return fmt.Errorf("send generic %q: %w", t.Type, err)
	}
	return nil
}
