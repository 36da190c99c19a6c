//go:build !unix

package surface

import "os"

type unsupportedAllocator struct{}

func newPlatformAllocator() Allocator { return unsupportedAllocator{} }

func (unsupportedAllocator) Allocate(int, int) (*Surface, error) { return nil, ErrUnsupported }

func lookup(int, uint32) (*Surface, error) { return nil, ErrUnsupported }

func attach(f *os.File, _ string) (*Surface, error) {
	f.Close()
	return nil, ErrUnsupported
}
