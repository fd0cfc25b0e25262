// Package media records the video feed to disk and captures photos.
package media

import (
	"sync"

	"dronegcs/app/codec"
)

const DefaultQueueSize = 10

type OfferResult int

const (
	// OfferAccepted means the frame was queued for the writer.
	OfferAccepted OfferResult = iota
	// OfferFull means the queue was at capacity and the frame was dropped.
	OfferFull
	// OfferInactive means no unpaused recording was accepting frames.
	OfferInactive
)

func (r OfferResult) String() string {
	switch r {
	case OfferAccepted:
		return "accepted"
	case OfferFull:
		return "full"
	default:
		return "inactive"
	}
}

// RecordQueue is the bounded FIFO between video ingest and the recording
// writer. A single mutex guards the frames and the recording/paused flags.
type RecordQueue struct {
	mu        sync.Mutex
	frames    []codec.Frame
	capacity  int
	accepting bool
	paused    bool
}

func NewRecordQueue(capacity int) *RecordQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &RecordQueue{
		frames:   make([]codec.Frame, 0, capacity),
		capacity: capacity,
	}
}

// Offer never blocks and never evicts: once full, new frames are dropped.
func (q *RecordQueue) Offer(f codec.Frame) OfferResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.accepting || q.paused {
		return OfferInactive
	}
	if len(q.frames) >= q.capacity {
		return OfferFull
	}
	q.frames = append(q.frames, f)
	return OfferAccepted
}

// Poll pops the oldest frame unless the queue is paused or empty.
func (q *RecordQueue) Poll() (codec.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.paused || len(q.frames) == 0 {
		return codec.Frame{}, false
	}
	f := q.frames[0]
	n := copy(q.frames, q.frames[1:])
	q.frames[n] = codec.Frame{}
	q.frames = q.frames[:n]
	return f, true
}

// Open starts accepting frames, unpaused.
func (q *RecordQueue) Open() {
	q.mu.Lock()
	q.accepting = true
	q.paused = false
	q.mu.Unlock()
}

// Close stops accepting frames and discards anything still queued.
func (q *RecordQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := len(q.frames)
	q.accepting = false
	q.paused = false
	q.frames = make([]codec.Frame, 0, q.capacity)
	return dropped
}

// Seal stops accepting new frames but keeps queued ones for a final drain.
func (q *RecordQueue) Seal() {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()
}

// SwapPaused sets the paused flag only while the queue is accepting frames
// and the flag differs. It reports whether the flag changed.
func (q *RecordQueue) SwapPaused(paused bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.accepting || q.paused == paused {
		return false
	}
	q.paused = paused
	return true
}

func (q *RecordQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

func (q *RecordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Drain removes and returns every queued frame regardless of pause state.
func (q *RecordQueue) Drain() []codec.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.frames
	q.frames = make([]codec.Frame, 0, q.capacity)
	return out
}
