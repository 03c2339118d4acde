package pcm

// Pipeline chains resampling, quantization and blocking. It is owned by
// a single goroutine, normally the capture callback, and is not safe
// for concurrent use.
type Pipeline struct {
	target    int
	resampler *Resampler
	blocker   *Blocker
	scratch   []int16
}

func NewPipeline(targetRate, blockSize int, emit func(Frame)) *Pipeline {
	return &Pipeline{
		target:  targetRate,
		blocker: NewBlocker(blockSize, emit),
	}
}

// Write feeds samples captured at sampleRate. The resampler is rebuilt
// whenever the incoming rate changes.
func (p *Pipeline) Write(samples []float32, sampleRate int) {
	if p.resampler == nil || p.resampler.from != sampleRate {
		p.resampler = NewResampler(sampleRate, p.target)
	}

	samples = p.resampler.Process(samples)
	if cap(p.scratch) < len(samples) {
		p.scratch = make([]int16, len(samples))
	}
	n := QuantizeInto(p.scratch[:len(samples)], samples)
	p.blocker.Write(p.scratch[:n])
}

// Reset drops any sub-frame tail, along with input still held by the
// resampler, and returns the number of output samples lost.
func (p *Pipeline) Reset() int {
	lost := p.blocker.Reset()
	if p.resampler != nil {
		lost += p.resampler.held()
	}
	p.resampler = nil
	return lost
}
