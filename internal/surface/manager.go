package surface

import (
	"errors"
	"fmt"
	"sync"

	"github.com/1broseidon/framelink/internal/logging"
)

// Manager owns the surface currently shown and the surfaces it replaced.
//
// Surfaces cannot be resized in place, so Resize allocates a new surface and
// parks the old one in the previous slot. Previous surfaces are released
// only by ConfirmPresented, once the display path reports that a frame of the
// current surface is on screen.
type Manager struct {
	mu       sync.Mutex
	alloc    Allocator
	current  *Surface
	previous []*Surface
}

// NewManager returns a manager allocating through alloc, or through the
// platform allocator when alloc is nil.
func NewManager(alloc Allocator) *Manager {
	if alloc == nil {
		alloc = NewAllocator()
	}
	return &Manager{alloc: alloc}
}

// Create allocates the first surface at pixel dimensions.
func (m *Manager) Create(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return ErrAlreadyExists
	}
	s, err := m.alloc.Allocate(width, height)
	if err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	m.current = s
	logging.Logger().Debug("surface created", "id", s.ID(), "width", width, "height", height)
	return nil
}

// Resize allocates a replacement surface and returns its id, or 0 when
// allocation failed (the current surface is then left untouched). The
// replaced surface stays alive until ConfirmPresented.
func (m *Manager) Resize(width, height int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.alloc.Allocate(width, height)
	if err != nil {
		logging.Logger().Warn("surface resize failed", "width", width, "height", height, "error", err)
		return 0
	}
	if m.current != nil {
		m.previous = append(m.previous, m.current)
	}
	m.current = s
	logging.Logger().Debug("surface resized", "id", s.ID(), "width", width, "height", height, "pending_release", len(m.previous))
	return s.ID()
}

// ConfirmPresented releases the previous surfaces once the display path has
// shown surface id. Confirmations for any other id are ignored. It returns
// the number of surfaces released.
func (m *Manager) ConfirmPresented(id uint32) int {
	m.mu.Lock()
	if m.current == nil || m.current.ID() != id || len(m.previous) == 0 {
		m.mu.Unlock()
		return 0
	}
	stale := m.previous
	m.previous = nil
	m.mu.Unlock()

	for _, s := range stale {
		if err := s.Release(); err != nil {
			logging.Logger().Warn("surface release failed", "id", s.ID(), "error", err)
		}
	}
	return len(stale)
}

// Current returns the current surface, or nil.
func (m *Manager) Current() *Surface {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ID returns the current surface id, or 0 when there is none.
func (m *Manager) ID() uint32 {
	if s := m.Current(); s != nil {
		return s.ID()
	}
	return 0
}

// NativeHandle returns the current surface's descriptor, or 0.
func (m *Manager) NativeHandle() uintptr {
	if s := m.Current(); s != nil {
		return s.NativeHandle()
	}
	return 0
}

// Pending returns how many replaced surfaces await confirmation.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.previous)
}

// Release frees every surface the manager holds. Safe to call repeatedly.
func (m *Manager) Release() error {
	m.mu.Lock()
	all := m.previous
	if m.current != nil {
		all = append(all, m.current)
	}
	m.current = nil
	m.previous = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		errs = append(errs, s.Release())
	}
	return errors.Join(errs...)
}
