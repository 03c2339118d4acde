package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"podium/etc"
	"podium/feedback"
	"podium/pcm"
	"podium/snd"
	"podium/stt"
	"podium/transcript"
)

type packet struct {
	seq   uint64
	frame pcm.Frame
}

// run is one session. Its context ends the session; the supervisor
// goroutine then tears everything down exactly once.
type run struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	frames   chan packet
	finished chan struct{}
	wg       sync.WaitGroup

	// Touched only from the capture callback, and by teardown once the
	// device is stopped.
	captureMu sync.Mutex
	pipeline  *pcm.Pipeline
	seq       uint64

	recording *Recording

	// live is set once capture is running. Guarded by Controller.mu.
	live bool

	mu        sync.Mutex
	stream    Stream
	capturing bool
	closed    bool
	err       error
	stopped   bool
	upload    bool
	stopCtx   context.Context
}

func (c *Controller) newRun(ctx context.Context) *run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:       etc.NewSessionID(),
		ctx:      runCtx,
		cancel:   cancel,
		frames:   make(chan packet, c.cfg.QueueDepth),
		finished: make(chan struct{}),
	}
	r.pipeline = pcm.NewPipeline(c.cfg.SampleRate, c.blockSize, func(f pcm.Frame) {
		c.metrics.FramesCaptured.Inc()
		p := packet{seq: r.seq, frame: f}
		r.seq++
		// Never block the audio thread: drop when the queue is full.
		select {
		case r.frames <- p:
		default:
			c.metrics.FramesDropped.Inc()
		}
	})
	if c.cfg.Mode == Batch {
		r.recording = NewRecording(c.cfg.SampleRate, c.blockSize)
	}
	return r
}

func (r *run) onBlock(b snd.Block) {
	if r.ctx.Err() != nil {
		return
	}
	r.captureMu.Lock()
	r.pipeline.Write(b.Samples, b.SampleRate)
	r.captureMu.Unlock()
}

// fail records the first error that ends the session and cancels it.
// Errors after the session is already ending are ignored.
func (r *run) fail(err error) {
	r.mu.Lock()
	if r.err == nil && r.ctx.Err() == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *run) requestStop(ctx context.Context, upload bool) {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		r.upload = upload
		r.stopCtx = ctx
	}
	r.mu.Unlock()
	r.cancel()
}

// attachStream registers workers that teardown must wait for. It fails
// once teardown has begun.
func (r *run) attachStream(s Stream, workers int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.stream = s
	r.wg.Add(workers)
	return true
}

func (r *run) attachCapture() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.capturing = true
	return true
}

func (c *Controller) supervise(r *run) {
	<-r.ctx.Done()
	c.teardown(r)
	close(r.finished)
}

func (c *Controller) teardown(r *run) {
	r.mu.Lock()
	r.closed = true
	stream, capturing := r.stream, r.capturing
	upload, stopCtx := r.upload, r.stopCtx
	r.mu.Unlock()

	if capturing {
		if err := c.capture.Stop(); err != nil {
			c.log.Warn("releasing microphone", "error", err)
		}
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			c.log.Warn("closing stream", "error", err)
		}
	}
	r.wg.Wait()

	r.captureMu.Lock()
	tail := r.pipeline.Reset()
	r.captureMu.Unlock()
	if tail > 0 {
		c.metrics.TailSamples.Add(float64(tail))
		c.log.Debug("discarded partial frame", "samples", tail)
	}

	err := r.Err()
	if err == nil && r.recording != nil && upload {
		r.drain()
		err = c.finishBatch(r, stopCtx)
		if err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
	}

	if err != nil {
		c.transcript.Fail()
		c.metrics.SessionsFailed.WithLabelValues(reason(err)).Inc()
		c.log.Error("session ended", "id", r.id, "error", err)
	} else {
		c.log.Info("session ended", "id", r.id)
	}
	c.transcript.Stop()
	c.metrics.ActiveSessions.Set(0)

	c.mu.Lock()
	r.live = false
	c.mu.Unlock()

	// Listeners hear the end before a new session may begin.
	c.notifyTranscript()
	c.notifyEnded(err)

	c.mu.Lock()
	if c.run == r {
		c.run = nil
	}
	c.mu.Unlock()
}

func reason(err error) string {
	var acqErr *snd.AcquisitionError
	var trErr *stt.TransportError
	switch {
	case errors.As(err, &acqErr):
		return "capture"
	case errors.Is(err, stt.ErrServer):
		return "server"
	case errors.As(err, &trErr):
		return "transport"
	case errors.Is(err, ErrEmptyRecording):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "other"
}

// send drains the frame queue into the stream in capture order.
func (c *Controller) send(r *run, stream Stream) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case p := <-r.frames:
			if err := stream.Send(p.frame); err != nil {
				r.fail(err)
				return
			}
			c.metrics.FramesSent.Inc()
		}
	}
}

// receive applies inbound events in arrival order.
func (c *Controller) receive(r *run, stream Stream) {
	defer r.wg.Done()
	events := stream.Events()
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				err := stream.Err()
				if err == nil {
					err = &stt.TransportError{Op: "receive", Err: stt.ErrClosed}
				}
				r.fail(err)
				return
			}
			c.dispatch(r, ev)
		}
	}
}

func (c *Controller) dispatch(r *run, ev stt.Event) {
	c.metrics.Events.WithLabelValues(stt.TypeName(ev)).Inc()

	switch ev := ev.(type) {
	case stt.Transcript:
		seg := transcript.Segment{
			Text:      ev.Text,
			IsFinal:   ev.IsFinal,
			Timestamp: feedback.Seconds(ev.Timestamp),
		}
		if c.transcript.Apply(seg) {
			c.notifyTranscript()
		}

	case stt.Feedback:
		e := c.feedback.Push(feedback.Event{
			Text:               ev.Text,
			StutteringDetected: ev.StutteringDetected,
			Timestamp:          feedback.Seconds(ev.Timestamp),
			Origin:             feedback.Speech,
		})
		c.notifyFeedback(e)

	case stt.Error:
		c.transcript.Fail()
		r.fail(stt.ServerError(ev))
	}
}

// record collects frames for a batch upload.
func (c *Controller) record(r *run) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case p := <-r.frames:
			r.recording.Add(p.seq, p.frame)
		}
	}
}

// drain moves frames still queued at stop into the recording.
func (r *run) drain() {
	for {
		select {
		case p := <-r.frames:
			r.recording.Add(p.seq, p.frame)
		default:
			return
		}
	}
}

func (c *Controller) finishBatch(r *run, ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	path, err := r.recording.Save(c.cfg.Format, c.cfg.RecordingPath, c.log)
	if err != nil {
		return err
	}
	if c.cfg.RecordingPath == "" {
		defer os.Remove(path)
	}

	c.log.Info("recording saved", "path", path, "frames", r.recording.Frames())

	start := time.Now()
	text, err := c.upload.Transcribe(ctx, path)
	c.metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.Uploads.WithLabelValues("error").Inc()
		return err
	}
	c.metrics.Uploads.WithLabelValues("ok").Inc()

	if c.transcript.Apply(transcript.Segment{Text: text, IsFinal: true}) {
		c.notifyTranscript()
	}
	return nil
}
