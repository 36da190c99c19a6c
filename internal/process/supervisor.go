// Package process launches the renderer executable and owns the
// bidirectional channel to it.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/1broseidon/framelink/internal/logging"
)

var (
	ErrExecutableNotFound = errors.New("process: renderer executable not found")
	ErrAlreadyRunning     = errors.New("process: renderer already launched")
	ErrUnsupportedChannel = errors.New("process: channel mode not supported on this platform")
)

// outputWaitDelay bounds how long Wait keeps copying the renderer's output
// after it exits. Descendants that inherited stderr can hold it open.
const outputWaitDelay = 250 * time.Millisecond

// ChildChannelFD is the descriptor number the renderer finds its socket
// channel on: the first entry of ExtraFiles.
const ChildChannelFD = 3

// ChannelMode selects how host and renderer are connected.
type ChannelMode int

const (
	// ChannelPipes uses the renderer's stdin (host→renderer) and stdout
	// (renderer→host).
	ChannelPipes ChannelMode = iota
	// ChannelSocket uses one connected stream socket passed as fd 3.
	ChannelSocket
)

func (m ChannelMode) String() string {
	switch m {
	case ChannelPipes:
		return "pipes"
	case ChannelSocket:
		return "socket"
	default:
		return "channel(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseChannelMode accepts "pipes" (or "") and "socket".
func ParseChannelMode(s string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pipes", "pipe":
		return ChannelPipes, nil
	case "socket":
		return ChannelSocket, nil
	default:
		return 0, fmt.Errorf("unknown channel mode %q", s)
	}
}

// SurfaceRef tells the renderer how to find its surface: by global id or
// through a rendezvous service.
type SurfaceRef struct {
	ID      uint32
	Service string
}

// Args renders the reference as a command-line argument.
func (r SurfaceRef) Args() []string {
	if r.Service != "" {
		return []string{"--surface-service=" + r.Service}
	}
	return []string{"--surface-id=" + strconv.FormatUint(uint64(r.ID), 10)}
}

// LaunchSpec describes one renderer launch.
type LaunchSpec struct {
	Executable string
	Surface    SurfaceRef
	Scale      float64
	WorkDir    string
	Channel    ChannelMode
	Env        []string  // nil inherits the host environment
	Stderr     io.Writer // defaults to os.Stderr
	ExtraArgs  []string
}

// Args returns the renderer's argument vector, excluding argv[0].
func (s LaunchSpec) Args() []string {
	args := s.Surface.Args()
	args = append(args, "--scale="+strconv.FormatFloat(s.Scale, 'f', -1, 64))
	if s.Channel == ChannelSocket {
		args = append(args, "--channel-fd="+strconv.Itoa(ChildChannelFD))
	}
	return append(args, s.ExtraArgs...)
}

// Options tunes the graduated shutdown.
type Options struct {
	GracePeriod  time.Duration // wait after closing the write side
	TermPeriod   time.Duration // wait after SIGTERM
	PollInterval time.Duration
}

// DefaultOptions bounds the whole exit wait to roughly 300ms.
func DefaultOptions() Options {
	return Options{
		GracePeriod:  200 * time.Millisecond,
		TermPeriod:   100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

// Supervisor owns one renderer process and its channel.
type Supervisor struct {
	opts Options

	stopMu sync.Mutex

	mu       sync.Mutex
	cmd      *exec.Cmd
	pid      int
	writer   io.WriteCloser
	reader   io.ReadCloser
	done     chan struct{}
	exitCode int
	waitErr  error
}

// NewSupervisor returns an idle supervisor. Zero option fields take defaults.
func NewSupervisor(opts Options) *Supervisor {
	def := DefaultOptions()
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = def.GracePeriod
	}
	if opts.TermPeriod <= 0 {
		opts.TermPeriod = def.TermPeriod
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	return &Supervisor{opts: opts, exitCode: -1}
}

// Launch verifies the executable, creates the channel and starts the
// renderer. On failure nothing is left open.
func (s *Supervisor) Launch(spec LaunchSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return ErrAlreadyRunning
	}

	st, err := os.Stat(spec.Executable)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExecutableNotFound, err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrExecutableNotFound, spec.Executable)
	}

	cmd := exec.Command(spec.Executable, spec.Args()...)
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	cmd.Stderr = spec.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.WaitDelay = outputWaitDelay

	ch, err := newChannel(spec.Channel)
	if err != nil {
		return err
	}
	ch.attach(cmd)

	if err := cmd.Start(); err != nil {
		ch.closeAll()
		return fmt.Errorf("start renderer: %w", err)
	}
	ch.closeChildEnds()

	done := make(chan struct{})
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.writer = ch.hostWriter
	s.reader = ch.hostReader
	s.done = done
	s.exitCode = -1
	s.waitErr = nil

	go s.wait(cmd, done)

	logging.Logger().Info("renderer launched",
		"pid", s.pid,
		"executable", spec.Executable,
		"channel", spec.Channel.String(),
		"args", strings.Join(spec.Args(), " "),
	)
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		logging.Logger().Debug("renderer output still held open after exit", "pid", cmd.Process.Pid)
		err = nil
	}
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	if s.done == done {
		s.exitCode = code
		s.waitErr = err
	}
	s.mu.Unlock()
	close(done)

	logging.Logger().Debug("renderer exited", "pid", cmd.Process.Pid, "exit_code", code)
}

// Stop shuts the renderer down in stages: close the host write side, wait,
// SIGTERM, wait, SIGKILL. A process that already exited counts as stopped.
// Stop is idempotent and safe for concurrent use, including from a signal
// handling goroutine.
func (s *Supervisor) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	cmd, done, writer, reader, pid := s.cmd, s.done, s.writer, s.reader, s.pid
	s.writer = nil
	s.mu.Unlock()

	if cmd == nil {
		return
	}
	log := logging.Logger().With("pid", pid)

	if writer != nil {
		writer.Close()
	}

	if !s.waitExit(done, s.opts.GracePeriod) {
		log.Debug("renderer still running after end of input, sending SIGTERM")
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Debug("SIGTERM failed", "error", err)
		}
		if !s.waitExit(done, s.opts.TermPeriod) {
			log.Warn("renderer ignored SIGTERM, killing")
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				log.Warn("SIGKILL failed", "error", err)
			}
			select {
			case <-done:
			default:
				// The wait goroutine reaps it once the kill lands.
				log.Debug("renderer not yet reaped after SIGKILL")
			}
		}
	}

	if reader != nil {
		reader.Close()
	}

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
		s.pid = 0
		s.reader = nil
	}
	s.mu.Unlock()
	log.Info("renderer stopped")
}

func (s *Supervisor) waitExit(done <-chan struct{}, total time.Duration) bool {
	deadline := time.Now().Add(total)
	for {
		select {
		case <-done:
			return true
		default:
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(s.opts.PollInterval)
	}
}

// IsRunning reports whether the renderer is alive without reaping it or
// changing its state.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.mu.Unlock()

	if cmd == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
	}
	return alive(cmd.Process)
}

// Pid returns the renderer pid, or 0 when not launched.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Writer returns the host→renderer side of the channel, or nil.
func (s *Supervisor) Writer() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	return s.writer
}

// Reader returns the renderer→host side of the channel, or nil.
func (s *Supervisor) Reader() io.ReadCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	return s.reader
}

// Done is closed when the most recently launched renderer has exited.
// It returns nil before the first launch.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ExitCode returns the last renderer's exit code, or -1 if unknown.
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}
