// Package renderer is the renderer-side counterpart of provider: it parses
// the launch arguments, acquires the shared surface and speaks the channel
// protocol back to the host.
package renderer

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// ErrNoSurface means neither --surface-id nor --surface-service was given.
var ErrNoSurface = errors.New("renderer: no surface reference in arguments")

// Args are the arguments a host passes to its renderer.
type Args struct {
	SurfaceID uint32
	Service   string
	Scale     float64
	// ChannelFD is the inherited socket descriptor, or -1 for stdin/stdout.
	ChannelFD int
}

// AddFlags registers the launch flags on fs and returns the destination.
func AddFlags(fs *pflag.FlagSet) *Args {
	a := &Args{}
	fs.Uint32Var(&a.SurfaceID, "surface-id", 0, "global id of the shared surface")
	fs.StringVar(&a.Service, "surface-service", "", "rendezvous service that hands out the surface")
	fs.Float64Var(&a.Scale, "scale", 1, "display scale factor")
	fs.IntVar(&a.ChannelFD, "channel-fd", -1, "inherited socket descriptor for the host channel")
	return a
}

// Validate checks that the arguments name a surface.
func (a *Args) Validate() error {
	if a.SurfaceID == 0 && a.Service == "" {
		return ErrNoSurface
	}
	if a.Scale <= 0 {
		return fmt.Errorf("renderer: invalid scale %v", a.Scale)
	}
	return nil
}

// ParseArgs parses the launch flags out of args, ignoring flags it does not
// know so renderers can add their own.
func ParseArgs(args []string) (*Args, error) {
	fs := pflag.NewFlagSet("renderer", pflag.ContinueOnError)
	fs.ParseErrorsAllowlist.UnknownFlags = true
	fs.SetOutput(discard{})
	a := AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
