package dispatch

import (
	"sync"
)

// MainLoop runs functions on the host's primary thread, in order, one at a
// time. Post must not block on the function running.
type MainLoop interface {
	Post(fn func())
}

// Loop is a MainLoop backed by one goroutine, for hosts without an event
// loop of their own.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

// NewLoop starts a loop goroutine. Close stops it.
func NewLoop() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn. Functions posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.stopped)
	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			fn()
		}
	}
}

// Close runs what is already queued, then stops the loop goroutine and
// waits for it. Close must not be called from a posted function; use
// Shutdown there.
func (l *Loop) Close() {
	l.Shutdown()
	<-l.stopped
}

// Shutdown stops accepting functions and lets the loop goroutine exit once
// the queue is drained, without waiting for it.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// ManualLoop queues posted functions until RunPending is called. Hosts
// that pump their own event loop call RunPending from it.
type ManualLoop struct {
	mu    sync.Mutex
	queue []func()
}

func (m *ManualLoop) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// RunPending runs everything queued so far, including functions they post,
// and returns how many ran.
func (m *ManualLoop) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Len reports how many functions are waiting.
func (m *ManualLoop) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
