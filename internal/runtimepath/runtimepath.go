package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir returns the runtime directory used for rendezvous sockets and surface
// files. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/framelink-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/framelink-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// ServiceName returns the rendezvous service name for a host process.
func ServiceName(pid int) string {
	return fmt.Sprintf("framelink.%d", pid)
}

// SocketPath returns the rendezvous socket path for a service name.
func SocketPath(service string) (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, service+".sock"), nil
}

// LockPath returns the registration lock path for a service name.
func LockPath(service string) (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, service+".lock"), nil
}

// SurfaceDir returns where shared surface files live. /dev/shm is preferred
// because it is guaranteed to be memory backed; the runtime dir is used when
// it is missing or not writable.
func SurfaceDir() (string, error) {
	if dir := os.Getenv("FRAMELINK_SURFACE_DIR"); dir != "" {
		return dir, nil
	}
	const shm = "/dev/shm"
	if info, err := os.Stat(shm); err == nil && info.IsDir() && writable(shm) {
		return shm, nil
	}
	return Dir()
}

// SurfacePath returns the globally visible file name of a surface owned by
// hostPID.
func SurfacePath(hostPID int, id uint32) (string, error) {
	dir, err := SurfaceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("framelink-%d-%d.surface", hostPID, id)), nil
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".framelink-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
