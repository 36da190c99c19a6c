package channel

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/protocol"
)

// ErrRunning is returned by Start on a receiver that is already reading.
var ErrRunning = errors.New("channel: receiver already running")

// Handlers receive decoded messages on the read goroutine. Callers that
// need main-thread delivery hand the work to a dispatch.MainLoop.
type Handlers struct {
	// OnInput gets every non-generic frame.
	OnInput func(protocol.Event)
	// OnTree gets every generic frame that carried a payload.
	OnTree func(protocol.Event, *protocol.Tree)
	// OnClosed runs once when the loop ends. err is nil when Stop ended it.
	OnClosed func(err error)
}

// Receiver runs a dedicated read loop over the renderer→host stream.
type Receiver struct {
	h          Handlers
	maxPayload int

	mu      sync.Mutex
	src     io.Reader
	done    chan struct{}
	running atomic.Bool
}

// NewReceiver returns an idle receiver. maxPayload bounds generic payloads;
// zero means protocol.MaxPayloadSize.
func NewReceiver(h Handlers, maxPayload int) *Receiver {
	return &Receiver{h: h, maxPayload: maxPayload}
}

// Start begins reading r on a new goroutine.
func (r *Receiver) Start(src io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrRunning
		}
	}
	r.src = src
	r.done = make(chan struct{})
	r.running.Store(true)
	go r.loop(protocol.NewReader(src, r.maxPayload), r.done)
	return nil
}

func (r *Receiver) loop(pr *protocol.Reader, done chan struct{}) {
	defer close(done)
	log := logging.Logger()

	var err error
	for r.running.Load() {
		var msg protocol.Message
		msg, err = pr.Next()
		if err != nil {
			break
		}
		switch {
		case msg.Event.Type != protocol.TypeGeneric:
			if r.h.OnInput != nil {
				r.h.OnInput(msg.Event)
			}
		case msg.Tree != nil:
			if r.h.OnTree != nil {
				r.h.OnTree(msg.Event, msg.Tree)
			}
		}
	}

	if stopped := !r.running.Swap(false); stopped {
		// Stop closed the stream under us.
		err = nil
	}
	switch {
	case err == nil:
		log.Debug("receive loop stopped")
	case errors.Is(err, io.EOF):
		log.Debug("renderer closed the channel")
	case errors.Is(err, os.ErrClosed), errors.Is(err, net.ErrClosed):
		log.Debug("channel closed locally")
	default:
		log.Warn("receive loop failed", "error", err)
	}
	if r.h.OnClosed != nil {
		r.h.OnClosed(err)
	}
}

// Stop clears the running flag, closes the source when it is an io.Closer
// to unblock a pending read, and waits for the loop to exit. It is a no-op
// on a receiver that never started.
func (r *Receiver) Stop() {
	r.mu.Lock()
	src, done := r.src, r.done
	r.mu.Unlock()
	if done == nil {
		return
	}

	r.running.Store(false)
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
	<-done
}

// Done is closed when the loop has exited. Nil before Start.
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
