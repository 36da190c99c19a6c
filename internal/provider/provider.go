// Package provider composes surfaces, the renderer process, the handoff and
// the event channel into the operations a host window uses.
package provider

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/1broseidon/framelink/internal/channel"
	"github.com/1broseidon/framelink/internal/config"
	"github.com/1broseidon/framelink/internal/dispatch"
	"github.com/1broseidon/framelink/internal/handoff"
	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/process"
	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/surface"
	"github.com/1broseidon/framelink/internal/view"
)

var (
	ErrNotRunning     = errors.New("provider: renderer not running")
	ErrAlreadyRunning = errors.New("provider: renderer already running")
	ErrResizeFailed   = errors.New("provider: surface resize failed")
	ErrClosed         = errors.New("provider: closed")
)

// Provider runs one renderer and keeps its surface on screen. All callbacks
// run on the main loop.
type Provider struct {
	cfg       *config.Config
	loop      dispatch.MainLoop
	ownLoop   *dispatch.Loop
	view      view.View
	alloc     surface.Allocator
	log       *slog.Logger
	stderr    io.Writer
	extraArgs []string
	env       []string

	mu          sync.Mutex
	gen         uint64
	closed      bool
	session     string
	surfaces    *surface.Manager
	sup         *process.Supervisor
	sender      *channel.Sender
	recv        *channel.Receiver
	disp        *dispatch.Dispatcher
	server      *handoff.Server
	handoffDone chan struct{}
	scale       float64
	firstFrame  bool
	parent      uintptr
	attached    bool
	bounds      *view.Rect

	cbMu         sync.Mutex
	onEvent      func(*protocol.Tree)
	onFirstFrame func()
	onExit       func(error)
	inCallback   atomic.Int32
}

// New returns an idle provider.
func New(opts ...Option) *Provider {
	p := &Provider{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(p)
	}
	if p.loop == nil {
		p.ownLoop = dispatch.NewLoop()
		p.loop = p.ownLoop
	}
	if p.alloc == nil {
		p.alloc = surface.NewAllocator()
	}
	if p.log == nil {
		p.log = logging.Logger()
	}
	return p
}

// OnEvent registers the receiver of generic events from the renderer.
// Bursts for the same key are coalesced to the latest value.
func (p *Provider) OnEvent(fn func(*protocol.Tree)) {
	p.cbMu.Lock()
	p.onEvent = fn
	p.cbMu.Unlock()
}

// OnFirstFrame registers a callback that runs once per launch, when the
// renderer reports its first frame.
func (p *Provider) OnFirstFrame(fn func()) {
	p.cbMu.Lock()
	p.onFirstFrame = fn
	p.cbMu.Unlock()
}

// OnExit registers a callback for the end of the renderer's channel, which
// usually means the renderer exited. err is nil for a clean end of stream.
func (p *Provider) OnExit(fn func(error)) {
	p.cbMu.Lock()
	p.onExit = fn
	p.cbMu.Unlock()
}

// Launch allocates a surface of width*scale by height*scale pixels, starts
// the renderer and hands it the surface. On failure everything allocated so
// far is released.
func (p *Provider) Launch(executable string, width, height int, scale float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.sup != nil {
		if p.sup.IsRunning() {
			return ErrAlreadyRunning
		}
		// The previous renderer exited on its own; clear its state first.
		p.stopLocked()
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("launch %dx%d: %w", width, height, surface.ErrInvalidSize)
	}
	if scale <= 0 {
		scale = 1
	}
	channelMode, err := process.ParseChannelMode(p.cfg.Channel)
	if err != nil {
		return err
	}

	session := uuid.NewString()
	log := p.log.With("session", session)

	pw, ph := pixels(width, scale), pixels(height, scale)
	surfaces := surface.NewManager(p.alloc)
	if err := surfaces.Create(pw, ph); err != nil {
		return err
	}
	current := surfaces.Current()

	ref := process.SurfaceRef{ID: current.ID()}
	var server *handoff.Server
	if p.cfg.Handoff != config.HandoffGlobal {
		server = handoff.NewServer()
		name, err := server.CreateServer()
		switch {
		case err == nil:
			ref = process.SurfaceRef{Service: name}
		case p.cfg.Handoff == config.HandoffRendezvous:
			surfaces.Release()
			return fmt.Errorf("register rendezvous: %w", err)
		default:
			log.Warn("rendezvous unavailable, falling back to global surface id", "error", err)
			server = nil
		}
	}

	sup := process.NewSupervisor(process.Options{
		GracePeriod: p.cfg.StopGrace(),
		TermPeriod:  p.cfg.StopTerm(),
	})
	spec := process.LaunchSpec{
		Executable: executable,
		Surface:    ref,
		Scale:      scale,
		WorkDir:    p.cfg.WorkDir,
		Channel:    channelMode,
		Env:        p.env,
		Stderr:     p.stderr,
		ExtraArgs:  append(append([]string(nil), p.cfg.Args...), p.extraArgs...),
	}
	if err := sup.Launch(spec); err != nil {
		if server != nil {
			server.DestroyServer()
		}
		surfaces.Release()
		return err
	}

	p.gen++
	gen := p.gen
	sender := channel.NewSender(sup.Writer())
	disp := dispatch.NewDispatcher(p.loop, p.deliverEvent)
	recv := channel.NewReceiver(channel.Handlers{
		OnInput:  func(e protocol.Event) { p.handleInput(gen, e) },
		OnTree:   func(_ protocol.Event, t *protocol.Tree) { disp.Enqueue(t) },
		OnClosed: func(err error) { p.handleClosed(gen, err) },
	}, p.cfg.MaxPayloadBytes)
	if err := recv.Start(sup.Reader()); err != nil {
		sup.Stop()
		if server != nil {
			server.DestroyServer()
		}
		surfaces.Release()
		return err
	}

	p.session = session
	p.surfaces = surfaces
	p.sup = sup
	p.sender = sender
	p.recv = recv
	p.disp = disp
	p.server = server
	p.scale = scale
	p.firstFrame = false

	if server != nil {
		done := make(chan struct{})
		p.handoffDone = done
		grant := handoff.Grant{ID: current.ID(), Width: uint32(pw), Height: uint32(ph)}
		go func() {
			defer close(done)
			err := server.SendPort(current.File(), grant)
			// The name is only needed for one request; free it for other providers.
			server.DestroyServer()
			if err != nil && !errors.Is(err, handoff.ErrClosed) {
				log.Warn("surface handoff failed", "error", err)
			}
		}()
	} else if err := sender.SendSurfaceRef(current.ID()); err != nil {
		p.stopLocked()
		return fmt.Errorf("announce surface: %w", err)
	}

	if p.view != nil {
		p.view.SetBackingScale(scale)
		p.view.SetSurface(current)
		if p.parent != 0 && !p.attached {
			if err := p.view.Attach(p.parent); err != nil {
				log.Warn("view attach failed", "error", err)
			} else {
				p.attached = true
			}
		}
		if p.bounds != nil {
			p.view.SetBounds(*p.bounds)
		}
	}

	log.Info("renderer launched",
		"pid", sup.Pid(),
		"surface_id", current.ID(),
		"width", pw,
		"height", ph,
		"scale", scale,
		"rendezvous", server != nil,
	)
	return nil
}

func pixels(logical int, scale float64) int {
	return int(float64(logical) * scale)
}

// Resize replaces the surface with one sized for the new logical size and
// tells the renderer to switch to it. Non-positive sizes are ignored. The
// old surface stays alive until a frame of the new one is presented.
func (p *Provider) Resize(width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if width <= 0 || height <= 0 {
		return nil
	}
	if p.sup == nil || p.surfaces == nil {
		return ErrNotRunning
	}

	pw, ph := pixels(width, p.scale), pixels(height, p.scale)
	if cur := p.surfaces.Current(); cur != nil && cur.Width() == pw && cur.Height() == ph {
		return nil
	}
	id := p.surfaces.Resize(pw, ph)
	if id == 0 {
		return ErrResizeFailed
	}
	if err := p.sender.SendResize(pw, ph, p.scale, id); err != nil {
		return err
	}
	if p.view != nil {
		p.view.SetPendingSurface(p.surfaces.Current())
	}
	p.log.Debug("surface resize sent", "session", p.session, "surface_id", id, "width", pw, "height", ph)
	return nil
}

// Stop tears the renderer down: the rendezvous registration, the handoff
// goroutine, the process, the receive loop, the view's surface and the
// surfaces. It is idempotent.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Provider) stopLocked() {
	if p.sup == nil {
		return
	}
	// Callbacks still in flight for this launch become no-ops.
	p.gen++

	if p.server != nil {
		p.server.DestroyServer()
	}
	if p.handoffDone != nil {
		<-p.handoffDone
	}
	p.sup.Stop()
	p.recv.Stop()
	p.disp.Reset()
	// SetSurface returns once the view has stopped reading the old surface.
	if p.view != nil {
		p.view.SetSurface(nil)
	}
	if err := p.surfaces.Release(); err != nil {
		p.log.Warn("surface release failed", "session", p.session, "error", err)
	}
	p.log.Info("renderer stopped", "session", p.session, "exit_code", p.sup.ExitCode())

	p.server = nil
	p.handoffDone = nil
	p.sup = nil
	p.recv = nil
	p.sender = nil
	p.disp = nil
	p.surfaces = nil
	p.session = ""
}

// Close stops the renderer, closes the view and the private main loop.
// The provider cannot be launched again. Called from one of the provider's
// callbacks, Close does not wait for the private loop to drain.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.stopLocked()
	p.closed = true
	v := p.view
	p.mu.Unlock()

	var err error
	if v != nil {
		err = v.Close()
	}
	if p.ownLoop != nil {
		if p.inCallback.Load() > 0 {
			p.ownLoop.Shutdown()
		} else {
			p.ownLoop.Close()
		}
	}
	return err
}

// IsRunning reports whether the renderer process is alive.
func (p *Provider) IsRunning() bool {
	p.mu.Lock()
	sup := p.sup
	p.mu.Unlock()
	return sup != nil && sup.IsRunning()
}

// SurfaceID returns the current surface id, or 0.
func (p *Provider) SurfaceID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.surfaces == nil {
		return 0
	}
	return p.surfaces.ID()
}

// PendingSurfaces returns how many replaced surfaces await a presented frame.
func (p *Provider) PendingSurfaces() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.surfaces == nil {
		return 0
	}
	return p.surfaces.Pending()
}

func (p *Provider) currentSender() *channel.Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender
}

// SendInput forwards an input frame to the renderer.
func (p *Provider) SendInput(e protocol.Event) error {
	s := p.currentSender()
	if s == nil {
		return ErrNotRunning
	}
	return s.SendInput(e)
}

// SendEvent forwards a generic event to the renderer.
func (p *Provider) SendEvent(t *protocol.Tree) error {
	s := p.currentSender()
	if s == nil {
		return ErrNotRunning
	}
	return s.SendEvent(t)
}

// AttachView places the view inside the host's native window.
func (p *Provider) AttachView(parent uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if parent == 0 {
		return nil
	}
	p.parent = parent
	if p.view == nil || p.attached {
		return nil
	}
	if err := p.view.Attach(parent); err != nil {
		return err
	}
	p.attached = true
	if p.bounds != nil {
		p.view.SetBounds(*p.bounds)
	}
	return nil
}

// DetachView removes the view from its parent.
func (p *Provider) DetachView() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parent = 0
	if p.view != nil && p.attached {
		p.view.Detach()
	}
	p.attached = false
}

// UpdateViewBounds positions the view within its parent.
func (p *Provider) UpdateViewBounds(x, y, width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := view.Rect{X: x, Y: y, Width: width, Height: height}
	p.bounds = &r
	if p.view != nil {
		p.view.SetBounds(r)
	}
}

// handleInput runs on the receive goroutine.
func (p *Provider) handleInput(gen uint64, e protocol.Event) {
	if e.Type != protocol.TypeFrame {
		p.log.Debug("ignoring renderer frame", "type", e.Type.String())
		return
	}
	id := e.SurfaceID()
	p.loop.Post(func() { p.framePresented(gen, id) })
}

// framePresented runs on the main loop.
func (p *Provider) framePresented(gen uint64, id uint32) {
	p.mu.Lock()
	if gen != p.gen || p.surfaces == nil {
		p.mu.Unlock()
		return
	}
	v, surfaces := p.view, p.surfaces
	first := !p.firstFrame
	p.firstFrame = true
	p.mu.Unlock()

	if v != nil {
		v.Present(id)
	}
	if n := surfaces.ConfirmPresented(id); n > 0 {
		p.log.Debug("previous surfaces released", "surface_id", id, "released", n)
	}

	if first {
		p.cbMu.Lock()
		fn := p.onFirstFrame
		p.cbMu.Unlock()
		if fn != nil {
			p.callback(fn)
		}
	}
}

func (p *Provider) deliverEvent(t *protocol.Tree) {
	p.cbMu.Lock()
	fn := p.onEvent
	p.cbMu.Unlock()
	if fn != nil {
		p.callback(func() { fn(t) })
	}
}

// callback runs a user callback, marking it so Close can tell it is being
// called from the loop it would wait on.
func (p *Provider) callback(fn func()) {
	p.inCallback.Add(1)
	defer p.inCallback.Add(-1)
	fn()
}

// handleClosed runs on the receive goroutine when the loop ends.
func (p *Provider) handleClosed(gen uint64, err error) {
	p.loop.Post(func() {
		p.mu.Lock()
		stale := gen != p.gen
		p.mu.Unlock()
		if stale {
			return
		}
		if errors.Is(err, io.EOF) {
			err = nil
		}
		p.log.Info("renderer channel ended", "error", err)

		p.cbMu.Lock()
		fn := p.onExit
		p.cbMu.Unlock()
		if fn != nil {
			p.callback(func() { fn(err) })
		}
	})
}
