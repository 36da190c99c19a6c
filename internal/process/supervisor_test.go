//go:build unix

package process

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "FRAMELINK_PROCESS_HELPER"

// TestMain doubles as the renderer under test: when helperEnv is set the
// binary behaves as one of the helper modes below instead of running tests.
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode))
	}
	os.Exit(m.Run())
}

func runHelper(mode string) int {
	switch mode {
	case "echo":
		io.Copy(os.Stdout, os.Stdin)
		return 0
	case "args":
		fmt.Fprintln(os.Stdout, strings.Join(os.Args[1:], " "))
		return 0
	case "socket-echo":
		f := os.NewFile(ChildChannelFD, "channel")
		io.Copy(f, f)
		return 0
	case "ignore-eof":
		io.Copy(io.Discard, os.Stdin)
		time.Sleep(time.Minute)
		return 0
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		io.Copy(io.Discard, os.Stdin)
		time.Sleep(time.Minute)
		return 0
	case "exit-3":
		return 3
	case "orphan-stderr":
		// Leave a descendant holding stderr open after this process exits.
		child := exec.Command(os.Args[0])
		child.Env = append(os.Environ(), helperEnv+"=sleep")
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			return 5
		}
		return 0
	case "sleep":
		time.Sleep(3 * time.Second)
		return 0
	}
	return 2
}

func helperSpec(t *testing.T, mode string) LaunchSpec {
	t.Helper()
	return LaunchSpec{
		Executable: os.Args[0],
		Surface:    SurfaceRef{ID: 7},
		Scale:      1.5,
		Env:        append(os.Environ(), helperEnv+"="+mode),
		Stderr:     io.Discard,
	}
}

func fastOptions() Options {
	return Options{
		GracePeriod:  100 * time.Millisecond,
		TermPeriod:   100 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("renderer did not exit")
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	s := NewSupervisor(Options{})
	err := s.Launch(LaunchSpec{Executable: "/nonexistent/renderer"})
	assert.ErrorIs(t, err, ErrExecutableNotFound)
	assert.False(t, s.IsRunning())
	assert.Zero(t, s.Pid())
	assert.Nil(t, s.Writer())
}

func TestLaunchDirectoryIsNotExecutable(t *testing.T) {
	s := NewSupervisor(Options{})
	err := s.Launch(LaunchSpec{Executable: t.TempDir()})
	assert.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestLaunchPassesArguments(t *testing.T) {
	s := NewSupervisor(fastOptions())
	spec := helperSpec(t, "args")
	spec.Surface = SurfaceRef{Service: "framelink.42"}
	require.NoError(t, s.Launch(spec))
	defer s.Stop()

	line, err := bufio.NewReader(s.Reader()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--surface-service=framelink.42 --scale=1.5\n", line)
}

func TestPipeChannelEcho(t *testing.T) {
	s := NewSupervisor(fastOptions())
	require.NoError(t, s.Launch(helperSpec(t, "echo")))
	assert.True(t, s.IsRunning())
	assert.NotZero(t, s.Pid())

	msg := []byte("0123456789abcdef")
	_, err := s.Writer().Write(msg)
	require.NoError(t, err)

	got := make([]byte, len(msg))
	_, err = io.ReadFull(s.Reader(), got)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Equal(t, 0, s.ExitCode())
}

func TestSocketChannelEcho(t *testing.T) {
	s := NewSupervisor(fastOptions())
	spec := helperSpec(t, "socket-echo")
	spec.Channel = ChannelSocket
	assert.Contains(t, spec.Args(), "--channel-fd=3")
	require.NoError(t, s.Launch(spec))
	defer s.Stop()

	_, err := s.Writer().Write([]byte("ping"))
	require.NoError(t, err)
	got := make([]byte, 4)
	_, err = io.ReadFull(s.Reader(), got)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestStopEscalatesToTerm(t *testing.T) {
	s := NewSupervisor(fastOptions())
	require.NoError(t, s.Launch(helperSpec(t, "ignore-eof")))

	start := time.Now()
	s.Stop()
	waitDone(t, s)
	assert.False(t, s.IsRunning())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStopEscalatesToKill(t *testing.T) {
	s := NewSupervisor(fastOptions())
	require.NoError(t, s.Launch(helperSpec(t, "ignore-term")))
	// Give the helper time to install its SIGTERM handler.
	time.Sleep(100 * time.Millisecond)

	s.Stop()
	waitDone(t, s)
	assert.False(t, s.IsRunning())
	assert.Equal(t, -1, s.ExitCode())
}

func TestStopIsIdempotentAndConcurrent(t *testing.T) {
	s := NewSupervisor(fastOptions())
	s.Stop()

	require.NoError(t, s.Launch(helperSpec(t, "echo")))
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			s.Stop()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.Reader())
}

func TestIsRunningDoesNotDisturbExit(t *testing.T) {
	s := NewSupervisor(fastOptions())
	require.NoError(t, s.Launch(helperSpec(t, "exit-3")))
	waitDone(t, s)

	assert.False(t, s.IsRunning())
	assert.False(t, s.IsRunning())
	assert.Equal(t, 3, s.ExitCode())
	s.Stop()
}

func TestRelaunchAfterStop(t *testing.T) {
	s := NewSupervisor(fastOptions())
	require.NoError(t, s.Launch(helperSpec(t, "echo")))
	assert.ErrorIs(t, s.Launch(helperSpec(t, "echo")), ErrAlreadyRunning)
	first := s.Pid()
	s.Stop()

	require.NoError(t, s.Launch(helperSpec(t, "echo")))
	defer s.Stop()
	assert.NotEqual(t, first, s.Pid())
	assert.True(t, s.IsRunning())
}

func TestStderrIsForwarded(t *testing.T) {
	var buf bytes.Buffer
	s := NewSupervisor(fastOptions())
	spec := helperSpec(t, "args")
	spec.Channel = ChannelSocket
	spec.Stderr = &buf
	require.NoError(t, s.Launch(spec))
	waitDone(t, s)
	s.Stop()

	// With a socket channel stdout is folded into stderr.
	assert.Contains(t, buf.String(), "--surface-id=7")
}

func TestDoneDoesNotWaitForInheritedStderr(t *testing.T) {
	var buf bytes.Buffer
	s := NewSupervisor(fastOptions())
	spec := helperSpec(t, "orphan-stderr")
	spec.Stderr = &buf
	start := time.Now()
	require.NoError(t, s.Launch(spec))

	waitDone(t, s)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, s.ExitCode())
	s.Stop()
}

func TestParseChannelMode(t *testing.T) {
	cases := map[string]ChannelMode{"": ChannelPipes, "pipes": ChannelPipes, "Socket": ChannelSocket}
	for in, want := range cases {
		got, err := ParseChannelMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseChannelMode("shm")
	assert.Error(t, err)
}
