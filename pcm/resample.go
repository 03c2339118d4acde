package pcm

import "github.com/gopxl/beep"

// ResampleQuality is the number of neighbours on each side that beep's
// Lagrange resampler interpolates over.
const ResampleQuality = 4

// beep's resampler pulls its source this many samples at a time and
// treats a short read as the end of the stream.
const resampleChunk = 512

// Resampler converts a continuous mono stream between sample rates with
// beep's resampler. Capture pushes blocks in while beep pulls, so input
// is queued and only as much output is drawn as the queued input fully
// covers. The input held back costs about resampleChunk*2 samples of
// latency.
type Resampler struct {
	from, to int
	ratio    float64
	source   *queueStreamer
	beep     *beep.Resampler
	in, out  int64

	stereo [][2]float64
	buf    []float32
}

func NewResampler(from, to int) *Resampler {
	r := &Resampler{
		from:   from,
		to:     to,
		ratio:  float64(from) / float64(to),
		source: &queueStreamer{},
	}
	if from != to {
		r.beep = beep.Resample(ResampleQuality, beep.SampleRate(from), beep.SampleRate(to), r.source)
	}
	return r
}

func (r *Resampler) Passthrough() bool { return r.from == r.to }

// Process queues in and returns the output now available. The returned
// slice is reused by the next call.
func (r *Resampler) Process(in []float32) []float32 {
	if r.Passthrough() || len(in) == 0 {
		return in
	}
	r.source.push(in)
	r.in += int64(len(in))

	lead := r.in - 2*resampleChunk - 2*ResampleQuality
	ready := int(int64(float64(lead)/r.ratio) - r.out)
	if lead <= 0 || ready <= 0 {
		return nil
	}

	if cap(r.stereo) < ready {
		r.stereo = make([][2]float64, ready)
	}
	n, _ := r.beep.Stream(r.stereo[:ready])
	r.out += int64(n)

	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	out := r.buf[:n]
	for i, s := range r.stereo[:n] {
		out[i] = float32(s[0])
	}
	return out
}

// held is how many output samples the queued input would still yield.
func (r *Resampler) held() int {
	if r.Passthrough() {
		return 0
	}
	return int(int64(float64(r.in)/r.ratio) - r.out)
}

// queueStreamer is the beep.Streamer end of the queue. Mono input is
// duplicated into both channels.
type queueStreamer struct {
	buf []float32
}

func (q *queueStreamer) push(in []float32) {
	q.buf = append(q.buf, in...)
}

func (q *queueStreamer) Stream(samples [][2]float64) (int, bool) {
	n := min(len(samples), len(q.buf))
	for i, v := range q.buf[:n] {
		samples[i] = [2]float64{float64(v), float64(v)}
	}
	q.buf = q.buf[:copy(q.buf, q.buf[n:])]
	return n, true
}

func (q *queueStreamer) Err() error { return nil }
