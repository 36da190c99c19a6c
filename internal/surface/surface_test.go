//go:build unix

package surface

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempSurfaceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FRAMELINK_SURFACE_DIR", dir)
	return dir
}

func TestAllocateMapsBGRABuffer(t *testing.T) {
	useTempSurfaceDir(t)

	s, err := NewAllocator().Allocate(16, 8)
	require.NoError(t, err)
	t.Cleanup(func() { s.Release() })

	assert.NotZero(t, s.ID())
	assert.Equal(t, 16*BytesPerPixel, s.Stride())
	assert.Len(t, s.Pixels(), 16*BytesPerPixel*8)
	assert.True(t, s.Owned())
	assert.FileExists(t, s.Path())
}

func TestAllocateRejectsInvalidSize(t *testing.T) {
	useTempSurfaceDir(t)

	for _, dims := range [][2]int{{0, 10}, {10, 0}, {-1, 5}} {
		_, err := NewAllocator().Allocate(dims[0], dims[1])
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
}

func TestLookupSharesPixels(t *testing.T) {
	useTempSurfaceDir(t)

	host, err := NewAllocator().Allocate(4, 4)
	require.NoError(t, err)
	t.Cleanup(func() { host.Release() })

	child, err := Lookup(os.Getpid(), host.ID())
	require.NoError(t, err)
	defer child.Release()

	assert.False(t, child.Owned())
	assert.Equal(t, host.Info(), child.Info())

	child.Pixels()[0] = 0xAB
	assert.Equal(t, byte(0xAB), host.Pixels()[0])

	require.NoError(t, child.Release())
	assert.FileExists(t, host.Path(), "releasing an attached surface must not unlink")
}

func TestLookupUnknownID(t *testing.T) {
	useTempSurfaceDir(t)

	_, err := Lookup(os.Getpid(), 999999)
	assert.Error(t, err)
}

func TestAttachFromDescriptor(t *testing.T) {
	useTempSurfaceDir(t)

	host, err := NewAllocator().Allocate(2, 3)
	require.NoError(t, err)
	t.Cleanup(func() { host.Release() })

	f, err := os.OpenFile(host.Path(), os.O_RDWR, 0)
	require.NoError(t, err)

	s, err := Attach(f)
	require.NoError(t, err)
	defer s.Release()
	assert.Equal(t, host.ID(), s.ID())
	assert.Equal(t, 3, s.Height())
}

func TestAttachRejectsForeignFile(t *testing.T) {
	dir := useTempSurfaceDir(t)
	path := dir + "/junk"
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0600))

	f, err := os.Open(path)
	require.NoError(t, err)
	_, err = Attach(f)
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestReleaseIsIdempotentAndUnlinks(t *testing.T) {
	useTempSurfaceDir(t)

	s, err := NewAllocator().Allocate(2, 2)
	require.NoError(t, err)
	path := s.Path()

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.True(t, s.Released())
	assert.Nil(t, s.Pixels())
	assert.NoFileExists(t, path)
}

func TestManagerResizeKeepsPreviousUntilConfirmed(t *testing.T) {
	useTempSurfaceDir(t)

	m := NewManager(nil)
	t.Cleanup(func() { m.Release() })

	require.NoError(t, m.Create(100, 50))
	first := m.Current()
	firstID := m.ID()
	require.NotZero(t, firstID)
	assert.NotZero(t, m.NativeHandle())

	secondID := m.Resize(200, 100)
	require.NotZero(t, secondID)
	assert.NotEqual(t, firstID, secondID)
	assert.Equal(t, secondID, m.ID())
	assert.False(t, first.Released(), "old surface must stay alive until confirmation")
	assert.Equal(t, 1, m.Pending())

	assert.Zero(t, m.ConfirmPresented(firstID), "confirming a stale id releases nothing")
	assert.False(t, first.Released())

	assert.Equal(t, 1, m.ConfirmPresented(secondID))
	assert.True(t, first.Released())
	assert.Zero(t, m.Pending())
}

func TestManagerRepeatedResizeBeforeConfirmation(t *testing.T) {
	useTempSurfaceDir(t)

	m := NewManager(nil)
	t.Cleanup(func() { m.Release() })
	require.NoError(t, m.Create(10, 10))

	a := m.Current()
	m.Resize(20, 20)
	b := m.Current()
	id := m.Resize(30, 30)

	assert.False(t, a.Released())
	assert.False(t, b.Released())
	assert.Equal(t, 2, m.ConfirmPresented(id))
	assert.True(t, a.Released())
	assert.True(t, b.Released())
}

func TestManagerResizeFailureKeepsCurrent(t *testing.T) {
	useTempSurfaceDir(t)

	calls := 0
	platform := NewAllocator()
	m := NewManager(AllocatorFunc(func(w, h int) (*Surface, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("out of memory")
		}
		return platform.Allocate(w, h)
	}))
	t.Cleanup(func() { m.Release() })

	require.NoError(t, m.Create(10, 10))
	id := m.ID()
	assert.Zero(t, m.Resize(20, 20))
	assert.Equal(t, id, m.ID())
	assert.Zero(t, m.Pending())
}

func TestManagerCreateTwiceFails(t *testing.T) {
	useTempSurfaceDir(t)

	m := NewManager(nil)
	t.Cleanup(func() { m.Release() })
	require.NoError(t, m.Create(10, 10))
	assert.ErrorIs(t, m.Create(10, 10), ErrAlreadyExists)
}

func TestManagerReleaseTwice(t *testing.T) {
	useTempSurfaceDir(t)

	m := NewManager(nil)
	require.NoError(t, m.Create(10, 10))
	m.Resize(12, 12)
	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
	assert.Zero(t, m.ID())
	assert.Zero(t, m.NativeHandle())
}

func TestIDsAreNeverReused(t *testing.T) {
	useTempSurfaceDir(t)

	seen := map[uint32]bool{}
	for i := 0; i < 20; i++ {
		s, err := NewAllocator().Allocate(1, 1)
		require.NoError(t, err)
		require.False(t, seen[s.ID()])
		seen[s.ID()] = true
		require.NoError(t, s.Release())
	}
}
