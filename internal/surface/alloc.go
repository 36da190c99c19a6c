package surface

import "os"

// Allocator creates shared surfaces. Each platform provides its own
// implementation; NewAllocator returns the one selected at build time.
type Allocator interface {
	Allocate(width, height int) (*Surface, error)
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func(width, height int) (*Surface, error)

// Allocate calls f.
func (f AllocatorFunc) Allocate(width, height int) (*Surface, error) { return f(width, height) }

// NewAllocator returns the platform allocator.
func NewAllocator() Allocator {
	return newPlatformAllocator()
}

// Lookup attaches to a surface published by hostPID under id. This is the
// global-name path used when no rendezvous handoff is available.
func Lookup(hostPID int, id uint32) (*Surface, error) {
	return lookup(hostPID, id)
}

// Attach maps a surface from a descriptor received out of band. Attach
// takes ownership of f.
func Attach(f *os.File) (*Surface, error) {
	return attach(f, "")
}
