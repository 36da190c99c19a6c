package surface

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

const (
	// BytesPerPixel is fixed: every surface is BGRA, 8 bits per channel.
	BytesPerPixel = 4
	// HeaderSize is the metadata block preceding the pixels in a surface file.
	HeaderSize = 64

	formatBGRA = 1
)

var headerMagic = [8]byte{'F', 'L', 'S', 'U', 'R', 'F', '0', '1'}

var (
	ErrInvalidSize   = errors.New("surface: width and height must be positive")
	ErrUnsupported   = errors.New("surface: shared surfaces are not supported on this platform")
	ErrBadHeader     = errors.New("surface: not a framelink surface")
	ErrIDMismatch    = errors.New("surface: id does not match")
	ErrReleased      = errors.New("surface: already released")
	ErrAlreadyExists = errors.New("surface: a current surface already exists")
)

// nextID hands out surface ids. Ids are process-wide, start at 1 and are
// never reused while the process lives.
var nextID atomic.Uint32

func allocateID() uint32 {
	for {
		id := nextID.Add(1)
		if id != 0 {
			return id
		}
	}
}

// Info describes a surface independently of its mapping.
type Info struct {
	ID     uint32
	Width  int
	Height int
	Stride int
}

// Surface is a shared BGRA pixel buffer backed by a memory file. The
// creating process owns it and unlinks the file on Release; processes that
// attach to it only drop their own mapping.
type Surface struct {
	info  Info
	path  string
	file  *os.File
	mem   []byte
	owner bool
	unmap func([]byte) error

	releaseOnce sync.Once
	released    atomic.Bool
	releaseErr  error
}

// ID returns the surface's numeric identifier.
func (s *Surface) ID() uint32 { return s.info.ID }

// Width returns the width in pixels.
func (s *Surface) Width() int { return s.info.Width }

// Height returns the height in pixels.
func (s *Surface) Height() int { return s.info.Height }

// Stride returns the number of bytes per row.
func (s *Surface) Stride() int { return s.info.Stride }

// Info returns the surface metadata.
func (s *Surface) Info() Info { return s.info }

// Path returns the globally visible file name, empty for attached surfaces
// that were received as a bare descriptor.
func (s *Surface) Path() string { return s.path }

// Owned reports whether this process created the surface.
func (s *Surface) Owned() bool { return s.owner }

// File returns the backing file. It is the access right handed to renderers.
func (s *Surface) File() *os.File { return s.file }

// NativeHandle returns the backing file descriptor.
func (s *Surface) NativeHandle() uintptr {
	if s.file == nil {
		return 0
	}
	return s.file.Fd()
}

// Pixels returns the mapped pixel bytes (Stride*Height). The slice is
// invalid after Release.
func (s *Surface) Pixels() []byte {
	if s.released.Load() {
		return nil
	}
	return s.mem[HeaderSize:]
}

// Released reports whether Release has run.
func (s *Surface) Released() bool { return s.released.Load() }

// Release unmaps the surface and, for the owner, removes the global name.
// Repeated calls return the first result.
func (s *Surface) Release() error {
	s.releaseOnce.Do(func() {
		s.released.Store(true)
		var errs []error
		if s.mem != nil && s.unmap != nil {
			errs = append(errs, s.unmap(s.mem))
			s.mem = nil
		}
		if s.file != nil {
			errs = append(errs, s.file.Close())
		}
		if s.owner && s.path != "" {
			if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

func (s *Surface) String() string {
	return fmt.Sprintf("surface#%d(%dx%d)", s.info.ID, s.info.Width, s.info.Height)
}

func mappingSize(width, height int) (stride, total int) {
	stride = width * BytesPerPixel
	return stride, HeaderSize + stride*height
}

func writeHeader(mem []byte, info Info) {
	copy(mem[0:8], headerMagic[:])
	binary.LittleEndian.PutUint32(mem[8:], info.ID)
	binary.LittleEndian.PutUint32(mem[12:], uint32(info.Width))
	binary.LittleEndian.PutUint32(mem[16:], uint32(info.Height))
	binary.LittleEndian.PutUint32(mem[20:], uint32(info.Stride))
	binary.LittleEndian.PutUint32(mem[24:], formatBGRA)
}

func readHeader(b []byte) (Info, error) {
	if len(b) < HeaderSize || string(b[0:8]) != string(headerMagic[:]) {
		return Info{}, ErrBadHeader
	}
	if binary.LittleEndian.Uint32(b[24:]) != formatBGRA {
		return Info{}, fmt.Errorf("%w: unknown pixel format", ErrBadHeader)
	}
	info := Info{
		ID:     binary.LittleEndian.Uint32(b[8:]),
		Width:  int(binary.LittleEndian.Uint32(b[12:])),
		Height: int(binary.LittleEndian.Uint32(b[16:])),
		Stride: int(binary.LittleEndian.Uint32(b[20:])),
	}
	if info.Width <= 0 || info.Height <= 0 || info.Stride < info.Width*BytesPerPixel {
		return Info{}, fmt.Errorf("%w: bad geometry", ErrBadHeader)
	}
	return info, nil
}
