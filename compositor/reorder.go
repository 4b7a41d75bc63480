package compositor

import (
	"sync"

	"gocv.io/x/gocv"
)

// ReorderBuffer collects frames rendered out of order by the worker pool and
// hands them back strictly in increasing index order. The window is bounded:
// Put blocks while the frame's index is more than capacity ahead of the
// oldest frame not yet taken, so memory stays proportional to capacity no
// matter how far workers race ahead of the writer.
type ReorderBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames map[int]gocv.Mat
	next   int // watermark: the index Take will emit next
	cap    int
	closed bool
}

// NewReorderBuffer returns a buffer that emits indices start, start+1, ...
// and admits at most capacity frames at a time.
func NewReorderBuffer(start, capacity int) *ReorderBuffer {
	if capacity < 1 {
		capacity = 1
	}
	rb := &ReorderBuffer{
		frames: make(map[int]gocv.Mat, capacity),
		next:   start,
		cap:    capacity,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Put stores the frame for index, blocking while index is outside the
// admission window. Returns false if the buffer was closed; the caller still
// owns (and must Close) the Mat in that case.
func (rb *ReorderBuffer) Put(index int, frame gocv.Mat) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for !rb.closed && index >= rb.next+rb.cap {
		rb.cond.Wait()
	}
	if rb.closed {
		return false
	}
	rb.frames[index] = frame
	rb.cond.Broadcast()
	return true
}

// Take blocks until the frame at the watermark arrives, then returns it and
// advances. Returns ok=false once the buffer is closed and no contiguous
// frame remains; any frames stranded behind a gap are released internally.
func (rb *ReorderBuffer) Take() (gocv.Mat, int, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for {
		if frame, ok := rb.frames[rb.next]; ok {
			delete(rb.frames, rb.next)
			idx := rb.next
			rb.next++
			rb.cond.Broadcast()
			return frame, idx, true
		}
		if rb.closed {
			rb.releaseLocked()
			return gocv.Mat{}, 0, false
		}
		rb.cond.Wait()
	}
}

// Close stops admission and unblocks all waiters. Safe to call more than
// once.
func (rb *ReorderBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}

// Pending reports how many frames are held, for tests and summaries.
func (rb *ReorderBuffer) Pending() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.frames)
}

func (rb *ReorderBuffer) releaseLocked() {
	for idx, frame := range rb.frames {
		frame.Close()
		delete(rb.frames, idx)
	}
}
