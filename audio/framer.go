package audio

import (
	"context"
	"sync"
	"sync/atomic"
)

// Framer re-chunks the arbitrarily sized buffers handed to a DataCallback
// into fixed-size frames and queues them for a blocking reader. The queue is
// bounded; when the reader falls behind new frames are dropped and counted.
type Framer struct {
	frameBytes int
	frames     chan []byte
	done       chan struct{}
	dropped    atomic.Int64

	mu      sync.Mutex
	pending []byte
	closed  bool
}

func NewFramer(frameBytes, depth int) *Framer {
	if depth < 1 {
		depth = 1
	}
	return &Framer{
		frameBytes: frameBytes,
		frames:     make(chan []byte, depth),
		done:       make(chan struct{}),
	}
}

// Write is safe to call from a capture callback goroutine. It never blocks.
func (f *Framer) Write(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.pending = append(f.pending, data...)
	for len(f.pending) >= f.frameBytes {
		frame := make([]byte, f.frameBytes)
		copy(frame, f.pending[:f.frameBytes])
		f.pending = f.pending[f.frameBytes:]
		select {
		case f.frames <- frame:
		default:
			f.dropped.Add(1)
		}
	}
	if len(f.pending) == 0 {
		f.pending = f.pending[:0:0]
	}
}

// Next blocks until a frame is available, the framer is closed, or ctx is done.
// Frames queued before Close are still handed out.
func (f *Framer) Next(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-f.frames:
		return frame, nil
	default:
	}
	select {
	case frame := <-f.frames:
		return frame, nil
	case <-f.done:
		select {
		case frame := <-f.frames:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Framer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.pending = nil
	close(f.done)
}

// Dropped reports how many complete frames were discarded because the queue was full.
func (f *Framer) Dropped() int {
	return int(f.dropped.Load())
}
