package engine

import "sync"

// DefaultHistorySize is how many recent log lines are kept by default.
const DefaultHistorySize = 5

// History is a bounded, most-recent-N log sink.
type History struct {
	mu   sync.RWMutex
	size int
	msgs []string
}

// NewHistory creates a History keeping at most size messages.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size: size,
		msgs: make([]string, 0, size),
	}
}

// Append adds msg, evicting the oldest message when full.
func (h *History) Append(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.msgs = append(h.msgs, msg)
	if len(h.msgs) > h.size {
		trim := len(h.msgs) - h.size
		h.msgs = append([]string(nil), h.msgs[trim:]...)
	}
}

// Recent returns a copy of the retained messages, oldest first.
func (h *History) Recent() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Reset drops all retained messages.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = h.msgs[:0]
}
