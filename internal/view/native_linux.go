//go:build linux

package view

// Native returns the platform view: an X11 window.
func Native(title string) (View, error) {
	return NewX11(title)
}
