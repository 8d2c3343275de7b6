package eventbus

import (
	"context"
	"sync"
)

// Recorder keeps a bounded ring of the most recent bus events for
// diagnostics. Oldest events are dropped once capacity is reached.
type Recorder struct {
	mu  sync.Mutex
	buf []Event
	cap int
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 64
	}
	return &Recorder{cap: capacity}
}

// Run subscribes to the bus and records events until ctx is done.
func (r *Recorder) Run(ctx context.Context, bus Bus) {
	events, unsub := bus.Subscribe(r.cap)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			r.Record(e)
		}
	}
}

func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	if len(r.buf) == r.cap {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = e
	} else {
		r.buf = append(r.buf, e)
	}
	r.mu.Unlock()
}

// Recent returns a copy of the recorded events, oldest first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.buf))
	copy(out, r.buf)
	return out
}
