package live

import "github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"

const DefaultWindowCapacity = 100

// Window is a fixed-capacity ring buffer. Push is O(1); once full, each
// push evicts the oldest entry. Not safe for concurrent use.
type Window struct {
	buf  []types.Reading
	head int // index of the newest entry
	size int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultWindowCapacity
	}
	return &Window{buf: make([]types.Reading, capacity), head: -1}
}

func (w *Window) Push(r types.Reading) {
	w.head = (w.head + 1) % len(w.buf)
	w.buf[w.head] = r
	if w.size < len(w.buf) {
		w.size++
	}
}

// Reset replaces the contents with readings, given newest first. Entries
// past capacity are dropped.
func (w *Window) Reset(newestFirst []types.Reading) {
	w.Clear()
	n := min(len(newestFirst), len(w.buf))
	for i := n - 1; i >= 0; i-- {
		w.Push(newestFirst[i])
	}
}

func (w *Window) Clear() {
	clear(w.buf)
	w.head = -1
	w.size = 0
}

func (w *Window) Len() int { return w.size }

func (w *Window) Cap() int { return len(w.buf) }

// Slice returns a newest-first copy.
func (w *Window) Slice() []types.Reading {
	out := make([]types.Reading, w.size)
	for i := range w.size {
		out[i] = w.buf[(w.head-i+len(w.buf))%len(w.buf)]
	}
	return out
}
