// Package dispatch coalesces bursty generic events into at most one pending
// main-loop delivery per key.
package dispatch

import (
	"strconv"
	"sync"

	"github.com/1broseidon/framelink/internal/protocol"
)

// ParamType is the tree type of parameter change events.
const ParamType = "param"

// Key returns the coalescing key of a tree: its type, and for parameter
// events with an id, "param_<id>" so each parameter coalesces on its own.
func Key(t *protocol.Tree) string {
	if t.Type == ParamType && t.Has("id") {
		return ParamType + "_" + strconv.FormatInt(t.Int("id", 0), 10)
	}
	return t.Type
}

// Dispatcher keeps the latest tree per key and schedules one delivery per
// key on a MainLoop. Values that arrive while a delivery is pending replace
// the stored value; only the latest is delivered.
type Dispatcher struct {
	loop    MainLoop
	deliver func(*protocol.Tree)

	mu        sync.Mutex
	pending   map[string]*protocol.Tree
	scheduled map[string]bool
}

// NewDispatcher returns a dispatcher that calls deliver on loop.
func NewDispatcher(loop MainLoop, deliver func(*protocol.Tree)) *Dispatcher {
	return &Dispatcher{
		loop:    loop,
		deliver: deliver,
		pending:   make(map[string]*protocol.Tree),
		scheduled: make(map[string]bool),
	}
}

// Enqueue stores t under its key and schedules a delivery when none is
// pending for that key. Safe to call from any goroutine.
func (d *Dispatcher) Enqueue(t *protocol.Tree) {
	key := Key(t)

	d.mu.Lock()
	scheduled := d.scheduled[key]
	d.pending[key] = t
	d.scheduled[key] = true
	d.mu.Unlock()

	if !scheduled {
		d.loop.Post(func() { d.flush(key) })
	}
}

func (d *Dispatcher) flush(key string) {
	d.mu.Lock()
	t, ok := d.pending[key]
	delete(d.pending, key)
	delete(d.scheduled, key)
	d.mu.Unlock()

	if ok && d.deliver != nil {
		d.deliver(t)
	}
}

// Pending reports how many keys hold an undelivered value.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Reset drops every undelivered value. Deliveries already posted stay
// scheduled: they deliver a value enqueued after Reset, or nothing.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	clear(d.pending)
	d.mu.Unlock()
}
