// Package buffer provides a bounded frame history ring used to replay recent
// workspace traffic to a newly joined peer.
package buffer

import "sync"

// History is a thread-safe ring of the most recent frames up to a fixed
// count. When full, the oldest frame is discarded for each new one.
type History struct {
	mu       sync.RWMutex
	frames   [][]byte
	capacity int
	start    int
	count    int
}

// NewHistory creates a History holding at most capacity frames. A capacity
// below 1 defaults to 1.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		frames:   make([][]byte, capacity),
		capacity: capacity,
	}
}

// Append records a frame, evicting the oldest when the ring is full. The
// frame is copied so callers may reuse their buffer.
func (h *History) Append(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)

	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.start + h.count) % h.capacity
	h.frames[idx] = cp
	if h.count < h.capacity {
		h.count++
	} else {
		h.start = (h.start + 1) % h.capacity
	}
}

// Frames returns the retained frames, oldest first.
func (h *History) Frames() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([][]byte, h.count)
	for i := 0; i < h.count; i++ {
		result[i] = h.frames[(h.start+i)%h.capacity]
	}
	return result
}

// Len returns the number of retained frames.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Clear drops all retained frames.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frames = make([][]byte, h.capacity)
	h.start = 0
	h.count = 0
}
