package provider

import (
	"io"
	"log/slog"

	"github.com/1broseidon/framelink/internal/config"
	"github.com/1broseidon/framelink/internal/dispatch"
	"github.com/1broseidon/framelink/internal/surface"
	"github.com/1broseidon/framelink/internal/view"
)

// Option configures a Provider.
type Option func(*Provider)

// WithConfig sets launch and shutdown settings. The config is copied.
func WithConfig(cfg *config.Config) Option {
	return func(p *Provider) {
		if cfg != nil {
			c := *cfg
			p.cfg = &c
		}
	}
}

// WithMainLoop delivers callbacks on loop instead of a private goroutine.
func WithMainLoop(loop dispatch.MainLoop) Option {
	return func(p *Provider) { p.loop = loop }
}

// WithView presents frames in v.
func WithView(v view.View) Option {
	return func(p *Provider) { p.view = v }
}

// WithAllocator allocates surfaces through a instead of the platform allocator.
func WithAllocator(a surface.Allocator) Option {
	return func(p *Provider) { p.alloc = a }
}

// WithLogger logs provider lifecycle to l.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// WithStderr receives the renderer's stderr.
func WithStderr(w io.Writer) Option {
	return func(p *Provider) { p.stderr = w }
}

// WithRendererArgs appends arguments to every launch.
func WithRendererArgs(args ...string) Option {
	return func(p *Provider) { p.extraArgs = append([]string(nil), args...) }
}

// WithEnv sets the renderer environment. Nil inherits the host's.
func WithEnv(env []string) Option {
	return func(p *Provider) { p.env = env }
}
