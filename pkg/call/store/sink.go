package store

import (
	"sync"

	"github.com/marmos91/voicegate/pkg/call"
)

// sinkHolder is the shared event-sink plumbing embedded by every backend.
type sinkHolder struct {
	mu   sync.RWMutex
	sink EventSink
}

// SetEventSink implements Store.
func (h *sinkHolder) SetEventSink(sink EventSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

// deliver hands committed events to the sink, if one is installed. Callers
// invoke it while still holding the per-call lock.
func (h *sinkHolder) deliver(events []call.Event) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()
	if sink != nil {
		sink(events)
	}
}
