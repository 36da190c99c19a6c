// Package view presents shared surfaces inside a host window.
package view

import (
	"errors"
	"sync"

	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/surface"
)

var (
	ErrUnsupported = errors.New("view: no native view on this platform")
	ErrDetached    = errors.New("view: not attached")
)

// Rect is a region in the parent's coordinates, in logical pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// View displays the renderer's surface. Present is called when the
// renderer reports a frame for a surface id; it reports whether the view
// switched from the current to the pending surface, which is the moment the
// previous surface may be released.
type View interface {
	Attach(parent uintptr) error
	Detach()
	SetBounds(Rect)
	SetBackingScale(float64)
	SetSurface(*surface.Surface)
	SetPendingSurface(*surface.Surface)
	Present(id uint32) (switched bool)
	Close() error
}

// InputSource is implemented by views that capture pointer and keyboard
// input for the renderer.
type InputSource interface {
	OnInput(func(protocol.Event))
}

// presenter tracks the current and pending surfaces for a view. drawMu is
// held while pixels are read, and by every call that swaps surfaces, so a
// surface dropped from the view is never being read once the call returns.
// Lock order is drawMu, then mu.
type presenter struct {
	drawMu sync.Mutex

	mu        sync.Mutex
	current   *surface.Surface
	pending   *surface.Surface
	presented uint32
	frames    int
}

// SetSurface replaces the current surface and drops the pending one. It
// waits for an in-flight draw to finish.
func (p *presenter) SetSurface(s *surface.Surface) {
	p.drawMu.Lock()
	defer p.drawMu.Unlock()
	p.mu.Lock()
	p.current = s
	p.pending = nil
	p.mu.Unlock()
}

func (p *presenter) SetPendingSurface(s *surface.Surface) {
	p.drawMu.Lock()
	defer p.drawMu.Unlock()
	p.mu.Lock()
	p.pending = s
	p.mu.Unlock()
}

// presentWith switches to the surface for id and, unless id is stale,
// calls draw with it while holding drawMu.
func (p *presenter) presentWith(id uint32, draw func(*surface.Surface)) (switched bool) {
	p.drawMu.Lock()
	defer p.drawMu.Unlock()

	p.mu.Lock()
	if p.pending != nil && p.pending.ID() == id {
		p.current = p.pending
		p.pending = nil
		switched = true
	}
	s := p.current
	if s == nil || s.ID() != id || s.Released() {
		p.mu.Unlock()
		return switched
	}
	p.presented = id
	p.frames++
	p.mu.Unlock()

	if draw != nil {
		draw(s)
	}
	return switched
}

// redrawWith calls draw with the current surface, if any, while holding
// drawMu.
func (p *presenter) redrawWith(draw func(*surface.Surface)) {
	p.drawMu.Lock()
	defer p.drawMu.Unlock()

	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil || s.Released() {
		return
	}
	draw(s)
}

// PresentedID returns the id of the last surface shown.
func (p *presenter) PresentedID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented
}

// Frames returns how many frames were presented.
func (p *presenter) Frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

func (p *presenter) reset() {
	p.drawMu.Lock()
	defer p.drawMu.Unlock()
	p.mu.Lock()
	p.current = nil
	p.pending = nil
	p.mu.Unlock()
}
