package main

import (
	"errors"
	"image"
	"math"
	"sync"

	"github.com/gogpu/gg"

	"github.com/1broseidon/framelink/internal/dispatch"
	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/surface"
)

var errUnexpectedImage = errors.New("gg returned a non-RGBA image")

var (
	background = gg.RGBA{R: 0.08, G: 0.09, B: 0.12, A: 1}
	accent     = gg.RGB(0.30, 0.65, 0.95)
	pressed    = gg.RGB(0.95, 0.45, 0.30)
)

// scrollStep is how far one unit of vertical scroll moves the level.
const scrollStep = 0.05

// scene is the demo's state. Input arrives on the channel goroutine and
// drawing happens on the render goroutine.
type scene struct {
	mu      sync.Mutex
	scale   float64
	x, y    float64 // pointer, logical pixels
	level   float64 // parameter 0, in [0, 1]
	down    bool
	focused bool
	keys    int
	frame   int
	dc      *gg.Context
}

func newScene(scale float64) *scene {
	if scale <= 0 {
		scale = 1
	}
	return &scene{scale: scale, level: 0.5, focused: true}
}

// handleInput applies a host event and reports whether a redraw is needed.
func (s *scene) handleInput(e protocol.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case protocol.TypeMouse:
		s.x, s.y = float64(e.X), float64(e.Y)
		switch e.Action {
		case protocol.ActionPress:
			s.down = true
		case protocol.ActionRelease:
			s.down = false
		case protocol.ActionScroll:
			_, dy := e.ScrollDelta()
			s.level = clamp01(s.level - dy*scrollStep)
		}
		return true
	case protocol.TypeKey:
		if e.Action == protocol.ActionPress {
			s.keys++
		}
		return true
	case protocol.TypeFocus:
		s.focused = e.Data1 != 0
		return true
	case protocol.TypeResize:
		if sc := e.Scale(); sc > 0 {
			s.scale = sc
		}
		return true
	}
	return false
}

// handleTree applies a parameter change and returns the echo to send back,
// or nil for trees the demo does not understand.
func (s *scene) handleTree(t *protocol.Tree) *protocol.Tree {
	if t == nil || t.Type != dispatch.ParamType || !t.Has("value") {
		return nil
	}
	id := t.Int("id", -1)
	value := t.Float("value", 0)

	s.mu.Lock()
	if id == 0 {
		s.level = clamp01(value)
	}
	s.mu.Unlock()

	return protocol.NewTree(dispatch.ParamType).Set("id", id).Set("value", value)
}

func (s *scene) levelValue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// draw renders the scene into surf.
func (s *scene) draw(surf *surface.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := surf.Width(), surf.Height()
	if s.dc == nil || s.dc.Width() != w || s.dc.Height() != h {
		if s.dc != nil {
			s.dc.Close()
		}
		s.dc = gg.NewContext(w, h)
	}
	dc := s.dc
	s.frame++

	fw, fh := float64(w), float64(h)
	pad := 12 * s.scale

	dc.ClearWithColor(background)

	dc.SetRGBA(1, 1, 1, 0.06)
	dc.DrawRoundedRectangle(pad, pad, fw-2*pad, fh-2*pad, 10*s.scale)
	if err := dc.Fill(); err != nil {
		return err
	}

	if bar := (fw - 4*pad) * s.level; bar > 0 && fh > 4*pad {
		dc.SetRGB(accent.R, accent.G, accent.B)
		dc.DrawRoundedRectangle(2*pad, fh-3*pad, bar, pad, pad/2)
		if err := dc.Fill(); err != nil {
			return err
		}
	}

	for i := range s.keys % 16 {
		dc.SetRGBA(1, 1, 1, 0.5)
		dc.DrawCircle(2*pad+float64(i)*pad, 2*pad, pad/3)
		if err := dc.Fill(); err != nil {
			return err
		}
	}

	r := (8 + 24*s.level) * s.scale
	if s.down {
		dc.SetRGB(pressed.R, pressed.G, pressed.B)
	} else {
		pulse := 0.5 + 0.5*math.Sin(float64(s.frame)/10)
		dc.SetRGBA(0.95, 0.85, 0.35, 0.6+0.4*pulse)
	}
	dc.DrawCircle(s.x*s.scale, s.y*s.scale, r)
	if err := dc.Fill(); err != nil {
		return err
	}

	if s.focused {
		dc.SetLineWidth(2 * s.scale)
		dc.SetRGBA(accent.R, accent.G, accent.B, 0.8)
		dc.DrawRoundedRectangle(pad, pad, fw-2*pad, fh-2*pad, 10*s.scale)
		if err := dc.Stroke(); err != nil {
			return err
		}
	}

	if err := dc.FlushGPU(); err != nil {
		return err
	}
	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return errUnexpectedImage
	}
	blit(surf.Pixels(), surf.Stride(), img)
	return nil
}

// blit copies RGBA rows into a BGRA buffer with the given stride.
func blit(dst []byte, stride int, img *image.RGBA) {
	b := img.Bounds()
	rowBytes := min(b.Dx()*4, stride)
	for y := 0; y < b.Dy(); y++ {
		if (y+1)*stride > len(dst) {
			return
		}
		src := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		row := dst[y*stride : y*stride+rowBytes]
		for x := 0; x+3 < rowBytes; x += 4 {
			row[x] = src[x+2]
			row[x+1] = src[x+1]
			row[x+2] = src[x]
			row[x+3] = src[x+3]
		}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
