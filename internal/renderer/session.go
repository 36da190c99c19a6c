package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/1broseidon/framelink/internal/channel"
	"github.com/1broseidon/framelink/internal/handoff"
	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/surface"
)

// ErrClosed is returned by Frame after the session ended.
var ErrClosed = errors.New("renderer: session closed")

// Handlers receive host messages on the session's read goroutine. Surface
// switches requested by resize and surface frames are applied before
// OnInput sees them.
type Handlers struct {
	OnInput  func(protocol.Event)
	OnTree   func(*protocol.Tree)
	OnClosed func(error)
}

// Session is a connected renderer.
type Session struct {
	args    Args
	hostPID int
	sender  *channel.Sender
	recv    *channel.Receiver
	conn    io.Closer
	h       Handlers

	// drawMu is held while a frame is drawn; surfaces are only unmapped
	// under it.
	drawMu  sync.Mutex
	current *surface.Surface
	closed  bool
}

// Options overrides where a session finds its channel and host. Zero
// values mean stdin/stdout (or the fd from Args) and the parent process.
type Options struct {
	In      io.Reader
	Out     io.Writer
	HostPID int
}

// Connect acquires the surface named by args and starts reading the host
// channel. The rendezvous wait is bounded by ctx.
func Connect(ctx context.Context, args *Args, h Handlers, opts Options) (*Session, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	s := &Session{args: *args, hostPID: opts.HostPID, h: h}
	if s.hostPID == 0 {
		s.hostPID = os.Getppid()
	}

	in, out := opts.In, opts.Out
	switch {
	case in != nil && out != nil:
	case args.ChannelFD >= 0:
		f := os.NewFile(uintptr(args.ChannelFD), "framelink-channel")
		if f == nil {
			return nil, fmt.Errorf("renderer: invalid channel descriptor %d", args.ChannelFD)
		}
		in, out = f, f
		s.conn = f
	default:
		in, out = os.Stdin, os.Stdout
	}

	surf, err := s.acquire(ctx)
	if err != nil {
		if s.conn != nil {
			s.conn.Close()
		}
		return nil, err
	}
	s.current = surf

	s.sender = channel.NewSender(out)
	s.recv = channel.NewReceiver(channel.Handlers{
		OnInput:  s.handleInput,
		OnTree:   func(_ protocol.Event, t *protocol.Tree) { s.emitTree(t) },
		OnClosed: s.handleClosed,
	}, 0)
	if err := s.recv.Start(in); err != nil {
		surf.Release()
		return nil, err
	}

	logging.Logger().Info("renderer session connected",
		"surface_id", surf.ID(),
		"width", surf.Width(),
		"height", surf.Height(),
		"rendezvous", args.Service != "",
	)
	return s, nil
}

func (s *Session) acquire(ctx context.Context) (*surface.Surface, error) {
	if s.args.Service == "" {
		surf, err := surface.Lookup(s.hostPID, s.args.SurfaceID)
		if err != nil {
			return nil, fmt.Errorf("look up surface %d: %w", s.args.SurfaceID, err)
		}
		return surf, nil
	}

	f, grant, err := handoff.Receive(ctx, s.args.Service)
	if err != nil {
		return nil, fmt.Errorf("receive surface from %s: %w", s.args.Service, err)
	}
	surf, err := surface.Attach(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if surf.ID() != grant.ID {
		surf.Release()
		return nil, fmt.Errorf("%w: granted %d, mapped %d", surface.ErrIDMismatch, grant.ID, surf.ID())
	}
	return surf, nil
}

func (s *Session) handleInput(e protocol.Event) {
	switch e.Type {
	case protocol.TypeResize, protocol.TypeSurface:
		if id := e.SurfaceID(); id != 0 {
			if err := s.switchSurface(id); err != nil {
				logging.Logger().Warn("surface switch failed", "surface_id", id, "error", err)
			}
		}
	}
	if s.h.OnInput != nil {
		s.h.OnInput(e)
	}
}

func (s *Session) switchSurface(id uint32) error {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.current != nil && s.current.ID() == id {
		return nil
	}
	next, err := surface.Lookup(s.hostPID, id)
	if err != nil {
		return err
	}
	old := s.current
	s.current = next
	if old != nil {
		old.Release()
	}
	logging.Logger().Debug("renderer switched surface", "surface_id", id, "width", next.Width(), "height", next.Height())
	return nil
}

func (s *Session) emitTree(t *protocol.Tree) {
	if s.h.OnTree != nil {
		s.h.OnTree(t)
	}
}

func (s *Session) handleClosed(err error) {
	if s.h.OnClosed != nil {
		s.h.OnClosed(err)
	}
}

// Surface returns the surface frames currently go to. Use Frame to draw.
func (s *Session) Surface() *surface.Surface {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	return s.current
}

// Scale returns the display scale the host launched with.
func (s *Session) Scale() float64 { return s.args.Scale }

// Frame calls draw with the current surface and, when it succeeds, tells
// the host a frame landed in it. The surface is not switched while draw runs.
func (s *Session) Frame(draw func(*surface.Surface) error) error {
	s.drawMu.Lock()
	if s.closed || s.current == nil {
		s.drawMu.Unlock()
		return ErrClosed
	}
	cur := s.current
	err := draw(cur)
	s.drawMu.Unlock()
	if err != nil {
		return err
	}
	return s.sender.SendFrame(cur.ID())
}

// SendEvent sends a generic event to the host.
func (s *Session) SendEvent(t *protocol.Tree) error {
	return s.sender.SendEvent(t)
}

// Done is closed when the host channel ended.
func (s *Session) Done() <-chan struct{} {
	return s.recv.Done()
}

// Close stops reading and unmaps the surface. The host keeps ownership of
// the surface itself.
func (s *Session) Close() error {
	s.recv.Stop()

	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.current != nil {
		err = s.current.Release()
		s.current = nil
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return err
}
