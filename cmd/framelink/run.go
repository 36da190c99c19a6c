package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/1broseidon/framelink/internal/config"
	"github.com/1broseidon/framelink/internal/dispatch"
	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/provider"
	"github.com/1broseidon/framelink/internal/view"
)

var errNoRenderer = errors.New("no renderer: pass one as an argument or set renderer in the config")

type runOptions struct {
	width    int
	height   int
	scale    float64
	channel  string
	handoff  string
	headless bool
	duration time.Duration
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [renderer] [-- renderer-args...]",
		Short: "Launch a renderer and show its frames in a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *loaded
			cfg.Args = append([]string(nil), loaded.Args...)

			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				cfg.Args = append(cfg.Args, args[dash:]...)
				args = args[:dash]
			}
			if len(args) > 1 {
				return fmt.Errorf("expected at most one renderer, got %d", len(args))
			}
			if len(args) == 1 {
				cfg.Renderer = args[0]
			}

			flags := cmd.Flags()
			if flags.Changed("width") {
				cfg.Window.Width = opts.width
			}
			if flags.Changed("height") {
				cfg.Window.Height = opts.height
			}
			if flags.Changed("scale") {
				cfg.Scale = opts.scale
			}
			if flags.Changed("channel") {
				cfg.Channel = strings.ToLower(opts.channel)
			}
			if flags.Changed("handoff") {
				cfg.Handoff = config.HandoffMode(strings.ToLower(opts.handoff))
			}
			return runHost(cmd.Context(), &cfg, opts, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&opts.width, "width", config.DefaultWindowWidth, "Window width in logical pixels")
	cmd.Flags().IntVar(&opts.height, "height", config.DefaultWindowHeight, "Window height in logical pixels")
	cmd.Flags().Float64Var(&opts.scale, "scale", config.DefaultScale, "Display scale factor")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "Event channel: pipes or socket")
	cmd.Flags().StringVar(&opts.handoff, "handoff", "", "Surface handoff: auto, rendezvous or global")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run without a window")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// windowed is implemented by views backed by a real window system.
type windowed interface {
	Root() uintptr
	OnResize(func(width, height int))
	OnClose(func())
	EventLoop()
	Quit()
}

func runHost(parent context.Context, cfg *config.Config, opts runOptions, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Renderer) == "" {
		return errNoRenderer
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stderr})
	if err != nil {
		return err
	}
	logging.SetLogger(logger)
	defer logging.SetLogger(nil)

	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancelCause(sigCtx)
	defer cancel(nil)
	if opts.duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, opts.duration)
		defer cancelTimeout()
	}

	v := openView(cfg.Window.Title, opts.headless, logger)

	loop := dispatch.NewLoop()
	defer loop.Close()

	p := provider.New(
		provider.WithConfig(cfg),
		provider.WithMainLoop(loop),
		provider.WithView(v),
		provider.WithLogger(logger),
		provider.WithStderr(stderr),
	)
	defer p.Close()

	p.OnFirstFrame(func() {
		logger.Info("first frame presented", "surface_id", p.SurfaceID())
	})
	p.OnEvent(func(t *protocol.Tree) {
		logger.Debug("renderer event", "type", t.Type)
	})
	p.OnExit(func(err error) {
		if err != nil {
			cancel(fmt.Errorf("renderer exited: %w", err))
			return
		}
		logger.Info("renderer exited")
		cancel(nil)
	})

	if src, ok := v.(view.InputSource); ok {
		src.OnInput(func(e protocol.Event) {
			if err := p.SendInput(e); err != nil && !errors.Is(err, provider.ErrNotRunning) {
				logger.Debug("input dropped", "error", err)
			}
		})
	}

	width, height := cfg.Window.Width, cfg.Window.Height
	p.UpdateViewBounds(0, 0, width, height)

	win, isWindow := v.(windowed)
	if isWindow {
		lastW, lastH := width, height
		win.OnResize(func(w, h int) {
			loop.Post(func() {
				if w == lastW && h == lastH {
					return
				}
				lastW, lastH = w, h
				p.UpdateViewBounds(0, 0, w, h)
				if err := p.Resize(w, h); err != nil && !errors.Is(err, provider.ErrNotRunning) {
					logger.Warn("resize failed", "width", w, "height", h, "error", err)
				}
			})
		})
		win.OnClose(func() { cancel(nil) })
		if err := p.AttachView(win.Root()); err != nil {
			return fmt.Errorf("attach window: %w", err)
		}
	}

	if err := p.Launch(cfg.Renderer, width, height, cfg.Scale); err != nil {
		return fmt.Errorf("launch %s: %w", cfg.Renderer, err)
	}
	logger.Info("hosting renderer",
		"renderer", cfg.Renderer,
		"size", fmt.Sprintf("%dx%d", width, height),
		"scale", cfg.Scale,
		"channel", cfg.Channel,
		"handoff", string(cfg.Handoff),
	)

	if isWindow {
		go func() {
			win.EventLoop()
			cancel(nil)
		}()
		defer win.Quit()
	}

	<-ctx.Done()
	p.Stop()

	cause := context.Cause(ctx)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}

// openView opens a native window, or a headless view when asked to or
// when no window system is reachable.
func openView(title string, headless bool, logger *slog.Logger) view.View {
	if headless {
		return view.NewHeadless()
	}
	v, err := view.Native(title)
	if err != nil {
		logger.Warn("no native window, running headless", "error", err)
		return view.NewHeadless()
	}
	return v
}
