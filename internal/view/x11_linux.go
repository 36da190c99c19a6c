//go:build linux

package view

import (
	"fmt"
	"math"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/surface"
)

// maxPutImage keeps each PutImage under the core protocol request limit
// (65535 four-byte units) without relying on BIG-REQUESTS.
const maxPutImage = 262140 - 32

const inputMask = xproto.EventMaskExposure |
	xproto.EventMaskStructureNotify |
	xproto.EventMaskButtonPress |
	xproto.EventMaskButtonRelease |
	xproto.EventMaskPointerMotion |
	xproto.EventMaskKeyPress |
	xproto.EventMaskKeyRelease |
	xproto.EventMaskFocusChange

// X11 presents surfaces in a child window created under the host's window,
// or in a top-level window when attached to the root.
type X11 struct {
	presenter

	xu    *xgbutil.XUtil
	root  xproto.Window
	depth byte

	mu      sync.Mutex
	win     *xwindow.Window
	gc      xproto.Gcontext
	bounds  Rect
	scale   float64
	title   string
	onInput func(protocol.Event)
	onClose func()
	onSize  func(width, height int)
}

var (
	_ View        = (*X11)(nil)
	_ InputSource = (*X11)(nil)
)

// NewX11 connects to the display named by $DISPLAY.
func NewX11(title string) (*X11, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X11: %w", err)
	}
	keybind.Initialize(xu)

	return &X11{
		xu:    xu,
		root:  xu.RootWin(),
		depth: xu.Screen().RootDepth,
		scale: 1,
		title: title,
	}, nil
}

// Root returns the root window, the parent for a top-level view.
func (v *X11) Root() uintptr { return uintptr(v.root) }

// OnInput registers the receiver of pointer, key and focus events.
func (v *X11) OnInput(fn func(protocol.Event)) {
	v.mu.Lock()
	v.onInput = fn
	v.mu.Unlock()
}

// OnClose registers a callback for the window manager's close request.
func (v *X11) OnClose(fn func()) {
	v.mu.Lock()
	v.onClose = fn
	v.mu.Unlock()
}

// OnResize registers a callback for size changes made by the window
// manager, in logical pixels.
func (v *X11) OnResize(fn func(width, height int)) {
	v.mu.Lock()
	v.onSize = fn
	v.mu.Unlock()
}

// Attach creates the view window as a child of parent. A zero parent means
// the root window.
func (v *X11) Attach(parent uintptr) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.win != nil {
		return nil
	}

	p := xproto.Window(parent)
	if p == 0 {
		p = v.root
	}

	win, err := xwindow.Generate(v.xu)
	if err != nil {
		return fmt.Errorf("allocate window id: %w", err)
	}
	phys := v.physical(v.bounds)
	if phys.Width <= 0 || phys.Height <= 0 {
		phys.Width, phys.Height = 1, 1
	}
	err = win.CreateChecked(p, phys.X, phys.Y, phys.Width, phys.Height,
		xproto.CwBackPixel|xproto.CwEventMask, 0, inputMask)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}

	gc, err := xproto.NewGcontextId(v.xu.Conn())
	if err != nil {
		win.Destroy()
		return fmt.Errorf("allocate graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(v.xu.Conn(), gc, xproto.Drawable(win.Id), 0, nil).Check(); err != nil {
		win.Destroy()
		return fmt.Errorf("create graphics context: %w", err)
	}

	if p == v.root {
		if v.title != "" {
			ewmh.WmNameSet(v.xu, win.Id, v.title)
			icccm.WmNameSet(v.xu, win.Id, v.title)
		}
		win.WMGracefulClose(func(*xwindow.Window) {
			v.mu.Lock()
			fn := v.onClose
			v.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	}

	v.win = win
	v.gc = gc
	v.connect(win.Id)
	win.Map()

	logging.Logger().Debug("x11 view attached", "window", win.Id, "parent", p)
	return nil
}

func (v *X11) connect(id xproto.Window) {
	xevent.ExposeFun(func(_ *xgbutil.XUtil, ev xevent.ExposeEvent) {
		if ev.Count == 0 {
			v.redraw()
		}
	}).Connect(v.xu, id)

	xevent.ConfigureNotifyFun(func(_ *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
		v.mu.Lock()
		fn, scale := v.onSize, v.scale
		v.mu.Unlock()
		if fn != nil {
			fn(int(math.Round(float64(ev.Width)/scale)), int(math.Round(float64(ev.Height)/scale)))
		}
	}).Connect(v.xu, id)

	xevent.MotionNotifyFun(func(_ *xgbutil.XUtil, ev xevent.MotionNotifyEvent) {
		x, y := v.logical(ev.EventX, ev.EventY)
		v.emit(protocol.MouseMove(x, y, modifiers(ev.State)))
	}).Connect(v.xu, id)

	xevent.ButtonPressFun(func(_ *xgbutil.XUtil, ev xevent.ButtonPressEvent) {
		x, y := v.logical(ev.EventX, ev.EventY)
		mods := modifiers(ev.State)
		switch ev.Detail {
		case 4:
			v.emit(protocol.MouseScroll(x, y, 0, 1, mods))
		case 5:
			v.emit(protocol.MouseScroll(x, y, 0, -1, mods))
		case 6:
			v.emit(protocol.MouseScroll(x, y, -1, 0, mods))
		case 7:
			v.emit(protocol.MouseScroll(x, y, 1, 0, mods))
		default:
			v.emit(protocol.MouseButton(x, y, uint8(ev.Detail), true, mods))
		}
	}).Connect(v.xu, id)

	xevent.ButtonReleaseFun(func(_ *xgbutil.XUtil, ev xevent.ButtonReleaseEvent) {
		if ev.Detail >= 4 && ev.Detail <= 7 {
			return
		}
		x, y := v.logical(ev.EventX, ev.EventY)
		v.emit(protocol.MouseButton(x, y, uint8(ev.Detail), false, modifiers(ev.State)))
	}).Connect(v.xu, id)

	xevent.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		v.emit(protocol.Key(int(ev.Detail), keyRune(xu, ev.State, ev.Detail), true, modifiers(ev.State)))
	}).Connect(v.xu, id)

	xevent.KeyReleaseFun(func(xu *xgbutil.XUtil, ev xevent.KeyReleaseEvent) {
		v.emit(protocol.Key(int(ev.Detail), keyRune(xu, ev.State, ev.Detail), false, modifiers(ev.State)))
	}).Connect(v.xu, id)

	xevent.FocusInFun(func(*xgbutil.XUtil, xevent.FocusInEvent) {
		v.emit(protocol.Focus(true))
	}).Connect(v.xu, id)

	xevent.FocusOutFun(func(*xgbutil.XUtil, xevent.FocusOutEvent) {
		v.emit(protocol.Focus(false))
	}).Connect(v.xu, id)
}

func (v *X11) emit(e protocol.Event) {
	v.mu.Lock()
	fn := v.onInput
	v.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (v *X11) logical(x, y int16) (int, int) {
	v.mu.Lock()
	scale := v.scale
	v.mu.Unlock()
	return int(math.Round(float64(x) / scale)), int(math.Round(float64(y) / scale))
}

// keyRune returns the character a key produces, or 0 for keys without one.
func keyRune(xu *xgbutil.XUtil, state uint16, code xproto.Keycode) rune {
	s := keybind.LookupString(xu, state, code)
	r := []rune(s)
	if len(r) != 1 {
		return 0
	}
	return r[0]
}

func modifiers(state uint16) uint8 {
	var m uint8
	if state&xproto.ModMaskShift != 0 {
		m |= protocol.ModShift
	}
	if state&xproto.ModMaskControl != 0 {
		m |= protocol.ModCtrl
	}
	if state&xproto.ModMask1 != 0 {
		m |= protocol.ModAlt
	}
	if state&xproto.ModMask4 != 0 {
		m |= protocol.ModMeta
	}
	return m
}

// Detach destroys the view window. The connection stays open for a later
// Attach.
func (v *X11) Detach() {
	v.mu.Lock()
	win, gc := v.win, v.gc
	v.win = nil
	v.mu.Unlock()
	if win == nil {
		return
	}
	xevent.Detach(v.xu, win.Id)
	xproto.FreeGC(v.xu.Conn(), gc)
	win.Destroy()
}

func (v *X11) physical(r Rect) Rect {
	return Rect{
		X:      int(math.Round(float64(r.X) * v.scale)),
		Y:      int(math.Round(float64(r.Y) * v.scale)),
		Width:  int(math.Round(float64(r.Width) * v.scale)),
		Height: int(math.Round(float64(r.Height) * v.scale)),
	}
}

// SetBounds moves and resizes the view window within its parent.
func (v *X11) SetBounds(r Rect) {
	v.mu.Lock()
	v.bounds = r
	win := v.win
	phys := v.physical(r)
	v.mu.Unlock()
	if win == nil || phys.Width <= 0 || phys.Height <= 0 {
		return
	}
	win.MoveResize(phys.X, phys.Y, phys.Width, phys.Height)
}

func (v *X11) SetBackingScale(scale float64) {
	if scale <= 0 {
		return
	}
	v.mu.Lock()
	v.scale = scale
	v.mu.Unlock()
}

// Present draws the surface the renderer just finished.
func (v *X11) Present(id uint32) bool {
	return v.presentWith(id, v.draw)
}

func (v *X11) redraw() {
	v.redrawWith(v.draw)
}

// draw pushes BGRA rows with PutImage. On little-endian depth 24 and 32
// visuals a ZPixmap pixel is B, G, R, X in memory, which matches the
// surface layout byte for byte. The caller holds drawMu.
func (v *X11) draw(s *surface.Surface) {
	pix, width, height, stride := s.Pixels(), s.Width(), s.Height(), s.Stride()
	v.mu.Lock()
	win, gc := v.win, v.gc
	v.mu.Unlock()
	if win == nil || pix == nil || stride <= 0 {
		return
	}

	rows := maxPutImage / stride
	if rows < 1 {
		rows = 1
	}
	conn := v.xu.Conn()
	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		xproto.PutImage(conn, xproto.ImageFormatZPixmap, xproto.Drawable(win.Id), gc,
			uint16(width), uint16(n), 0, int16(y), 0, v.depth, pix[y*stride:(y+n)*stride])
	}
	conn.Sync()
}

// EventLoop runs the X event loop until Quit.
func (v *X11) EventLoop() {
	xevent.Main(v.xu)
}

// Quit stops EventLoop.
func (v *X11) Quit() {
	xevent.Quit(v.xu)
}

// Close destroys the window and disconnects.
func (v *X11) Close() error {
	v.Detach()
	v.reset()
	v.xu.Conn().Close()
	return nil
}
