//go:build !unix

package process

import "os"

func newSocketChannel() (*channel, error) {
	return nil, ErrUnsupportedChannel
}

// alive has no signal-0 probe here; the wait goroutine's Done is the only
// source of truth.
func alive(p *os.Process) bool {
	return p != nil
}
