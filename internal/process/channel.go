package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// channel holds both ends of the host↔renderer link until the child has
// been started and its ends can be closed in the host.
type channel struct {
	hostWriter io.WriteCloser
	hostReader io.ReadCloser
	childEnds  []*os.File

	stdin  *os.File
	stdout *os.File
	extra  []*os.File
}

func newChannel(mode ChannelMode) (*channel, error) {
	switch mode {
	case ChannelPipes:
		return newPipeChannel()
	case ChannelSocket:
		return newSocketChannel()
	default:
		return nil, fmt.Errorf("process: unknown channel mode %d", mode)
	}
}

func newPipeChannel() (*channel, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create input pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	return &channel{
		hostWriter: inW,
		hostReader: outR,
		childEnds:  []*os.File{inR, outW},
		stdin:      inR,
		stdout:     outW,
	}, nil
}

// attach wires the child ends into cmd. Everything else the host holds is
// close-on-exec, so these are the only descriptors the renderer inherits
// besides stderr.
func (c *channel) attach(cmd *exec.Cmd) {
	if c.stdin != nil {
		cmd.Stdin = c.stdin
	}
	if c.stdout != nil {
		cmd.Stdout = c.stdout
	} else {
		// Stray prints from the renderer must not interleave with the host's
		// own stdout.
		cmd.Stdout = cmd.Stderr
	}
	cmd.ExtraFiles = c.extra
}

func (c *channel) closeChildEnds() {
	for _, f := range c.childEnds {
		f.Close()
	}
	c.childEnds = nil
}

func (c *channel) closeAll() {
	c.closeChildEnds()
	if c.hostWriter != nil {
		c.hostWriter.Close()
	}
	if c.hostReader != nil {
		c.hostReader.Close()
	}
}
