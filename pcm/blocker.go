package pcm

// Blocker collects samples into frames of a fixed size. Each completed
// frame is handed to emit exactly once, in order. A partially filled
// frame is never emitted; Reset drops it.
type Blocker struct {
	size int
	buf  []int16
	emit func(Frame)
}

func NewBlocker(size int, emit func(Frame)) *Blocker {
	return &Blocker{
		size: size,
		buf:  make([]int16, 0, size),
		emit: emit,
	}
}


func (b *Blocker) Write(samples []int16) {
	for len(samples) > 0 {
		n := min(b.size-len(b.buf), len(samples))
		b.buf = append(b.buf, samples[:n]...)
		samples = samples[n:]

		if len(b.buf) == b.size {
			// The receiver may hold on to the frame, so hand over
			// the filled buffer and start a fresh one.
			frame := Frame(b.buf)
			b.buf = make([]int16, 0, b.size)
			b.emit(frame)
		}
	}
}

// Pending reports how many samples are waiting for the next frame.

// Reset discards the pending tail and returns how many samples were dropped.
func (b *Blocker) Reset() int {
	n := len(b.buf)
	b.buf = b.buf[:0]
	return n
}
