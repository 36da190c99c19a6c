//go:build unix

package surface

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/1broseidon/framelink/internal/runtimepath"
)

type shmAllocator struct{}

var _ Allocator = shmAllocator{}

func newPlatformAllocator() Allocator { return shmAllocator{} }

// Allocate creates a memory file named after the host pid and surface id,
// sizes it and maps it shared. The name stays visible until Release so a
// renderer can find the surface by id alone.
func (shmAllocator) Allocate(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	id := allocateID()
	path, err := runtimepath.SurfacePath(os.Getpid(), id)
	if err != nil {
		return nil, fmt.Errorf("resolve surface path: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create surface file: %w", err)
	}

	stride, total := mappingSize(width, height)
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size surface file: %w", err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("map surface: %w", err)
	}

	info := Info{ID: id, Width: width, Height: height, Stride: stride}
	writeHeader(mem, info)

	return &Surface{
		info:  info,
		path:  path,
		file:  f,
		mem:   mem,
		owner: true,
		unmap: unix.Munmap,
	}, nil
}

func lookup(hostPID int, id uint32) (*Surface, error) {
	path, err := runtimepath.SurfacePath(hostPID, id)
	if err != nil {
		return nil, fmt.Errorf("resolve surface path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open surface %d: %w", id, err)
	}
	s, err := attach(f, path)
	if err != nil {
		return nil, err
	}
	if s.ID() != id {
		s.Release()
		return nil, fmt.Errorf("%w: want %d, file has %d", ErrIDMismatch, id, s.ID())
	}
	return s, nil
}

func attach(f *os.File, path string) (*Surface, error) {
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat surface: %w", err)
	}
	size := int(st.Size())
	if size < HeaderSize {
		f.Close()
		return nil, ErrBadHeader
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map surface: %w", err)
	}

	info, err := readHeader(mem)
	if err == nil && HeaderSize+info.Stride*info.Height > size {
		err = fmt.Errorf("%w: file shorter than geometry", ErrBadHeader)
	}
	if err != nil {
		unix.Munmap(mem)
		f.Close()
		return nil, err
	}

	return &Surface{
		info:  info,
		path:  path,
		file:  f,
		mem:   mem,
		unmap: unix.Munmap,
	}, nil
}
