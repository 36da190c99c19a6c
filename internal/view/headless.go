package view

import (
	"sync"

	"github.com/1broseidon/framelink/internal/surface"
)

// Headless is a View without a window. It keeps the presentation state and
// can snapshot the presented pixels.
type Headless struct {
	presenter

	mu       sync.Mutex
	parent   uintptr
	attached bool
	bounds   Rect
	scale    float64
	closed   bool
}

var _ View = (*Headless)(nil)

func NewHeadless() *Headless {
	return &Headless{scale: 1}
}

func (h *Headless) Attach(parent uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parent = parent
	h.attached = true
	return nil
}

func (h *Headless) Detach() {
	h.mu.Lock()
	h.attached = false
	h.mu.Unlock()
}

func (h *Headless) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}

func (h *Headless) SetBounds(r Rect) {
	h.mu.Lock()
	h.bounds = r
	h.mu.Unlock()
}

func (h *Headless) Bounds() Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bounds
}

func (h *Headless) SetBackingScale(scale float64) {
	h.mu.Lock()
	h.scale = scale
	h.mu.Unlock()
}

func (h *Headless) Present(id uint32) bool {
	return h.presentWith(id, nil)
}

// Snapshot copies the pixels of the current surface.
func (h *Headless) Snapshot() (width, height int, pix []byte) {
	h.redrawWith(func(s *surface.Surface) {
		src := s.Pixels()
		if src == nil {
			return
		}
		pix = make([]byte, len(src))
		copy(pix, src)
		width, height = s.Width(), s.Height()
	})
	return width, height, pix
}

func (h *Headless) Close() error {
	h.mu.Lock()
	h.closed = true
	h.attached = false
	h.mu.Unlock()
	h.reset()
	return nil
}
