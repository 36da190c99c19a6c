//go:build !linux

package view

func Native(string) (View, error) {
	return nil, ErrUnsupported
}
