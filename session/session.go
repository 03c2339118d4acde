// Package session runs capture sessions: it owns the microphone and the
// link to the transcription service for as long as a session is active
// and guarantees both are released however the session ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"podium/feedback"
	"podium/metrics"
	"podium/pcm"
	"podium/snd"
	"podium/stt"
	"podium/transcript"
)

var (
	ErrSessionActive = errors.New("a capture session is already active")
	ErrNoSession     = errors.New("no active capture session")
	ErrClosed        = errors.New("controller closed")
)

type Mode int

const (
	Streaming Mode = iota
	Batch
)

func (m Mode) String() string {
	if m == Batch {
		return "batch"
	}
	return "streaming"
}

// DefaultQueueDepth bounds the frames waiting between the capture
// callback and the sender.
const DefaultQueueDepth = 32

type Config struct {
	SampleRate int
	BufferSize int
	QueueDepth int
	Mode       Mode

	// Batch only.
	Format        Format
	RecordingPath string
}

// Capturer is the microphone side. snd.Source implements it.
type Capturer interface {
	Start(ctx context.Context, onBlock func(snd.Block)) (int, error)
	Stop() error
}

// Stream is an open streaming connection. stt.Channel implements it.
type Stream interface {
	Send(pcm.Frame) error
	Events() <-chan stt.Event
	Err() error
	Close() error
}

type Connector interface {
	Connect(ctx context.Context) (Stream, error)
}

type ConnectorFunc func(ctx context.Context) (Stream, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Stream, error) { return f(ctx) }

// DialConnector adapts an stt.Dialer.
func DialConnector(d *stt.Dialer) Connector {
	return ConnectorFunc(func(ctx context.Context) (Stream, error) {
		ch, err := d.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
}

// Uploader turns a finished recording file into text. stt.BatchClient
// implements it.
type Uploader interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Listener hears about session changes. Calls arrive on the session's
// internal goroutines and must return quickly.
type Listener interface {
	TranscriptChanged(transcript.Snapshot)
	FeedbackAdded(feedback.Event)
	SessionEnded(err error)
}

type Option func(*Controller)

func WithConnector(c Connector) Option { return func(ctl *Controller) { ctl.connect = c } }
func WithUploader(u Uploader) Option   { return func(ctl *Controller) { ctl.upload = u } }
func WithListener(l Listener) Option {
	return func(ctl *Controller) { ctl.listeners = append(ctl.listeners, l) }
}
func WithMetrics(m *metrics.Metrics) Option { return func(ctl *Controller) { ctl.metrics = m } }
func WithLogger(l *log.Logger) Option       { return func(ctl *Controller) { ctl.log = l } }

// Controller allows one session at a time.
type Controller struct {
	cfg        Config
	blockSize  int
	capture    Capturer
	connect    Connector
	upload     Uploader
	listeners  []Listener
	metrics    *metrics.Metrics
	log        *log.Logger
	transcript *transcript.Assembler
	feedback   *feedback.Queue

	mu     sync.Mutex
	run    *run
	closed bool
}

func New(cfg Config, capture Capturer, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:        cfg,
		blockSize:  pcm.ValidBufferSize(cfg.BufferSize),
		capture:    capture,
		transcript: transcript.New(),
		feedback:   feedback.NewQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = log.New(io.Discard)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.cfg.QueueDepth <= 0 {
		c.cfg.QueueDepth = DefaultQueueDepth
	}
	if c.cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", c.cfg.SampleRate)
	}
	if capture == nil {
		return nil, errors.New("no capture source")
	}

	switch c.cfg.Mode {
	case Streaming:
		if c.connect == nil {
			return nil, errors.New("streaming mode needs a connector")
		}
	case Batch:
		if c.upload == nil {
			return nil, errors.New("batch mode needs an uploader")
		}
	default:
		return nil, fmt.Errorf("unknown mode %d", c.cfg.Mode)
	}

	if c.blockSize != cfg.BufferSize {
		c.log.Warn("buffer size adjusted", "requested", cfg.BufferSize, "using", c.blockSize)
	}
	return c, nil
}

// Start begins a session: it clears the transcript and feedback, opens
// the service connection and then the microphone. The session is active
// only once both are held; if either fails, whatever was acquired is
// released and the error returned. Until then Active reports false and
// Annotate is refused. Cancelling ctx later forces the session down.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.run != nil:
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.transcript.Start()
	c.feedback.Reset()
	r := c.newRun(ctx)
	c.run = r
	c.mu.Unlock()
	c.notifyTranscript()

	go c.supervise(r)

	if err := c.acquire(r); err != nil {
		r.fail(err)
		<-r.finished
		return err
	}

	// A session that ended while starting stays inactive.
	c.mu.Lock()
	r.live = r.ctx.Err() == nil
	c.mu.Unlock()

	c.metrics.SessionsStarted.Inc()
	c.metrics.ActiveSessions.Set(1)
	c.log.Info(
		"session started",
		"id", r.id,
		"mode", c.cfg.Mode,
		"rate", c.cfg.SampleRate,
		"block", c.blockSize,
	)
	return nil
}

func (c *Controller) acquire(r *run) error {
	switch c.cfg.Mode {
	case Streaming:
		stream, err := c.connect.Connect(r.ctx)
		if err != nil {
			return err
		}
		if !r.attachStream(stream, 2) {
			stream.Close()
			return context.Cause(r.ctx)
		}
		go c.send(r, stream)
		go c.receive(r, stream)

	case Batch:
		if !r.attachStream(nil, 1) {
			return context.Cause(r.ctx)
		}
		go c.record(r)
	}

	rate, err := c.capture.Start(r.ctx, r.onBlock)
	if err != nil {
		return err
	}
	if !r.attachCapture() {
		c.capture.Stop()
		return context.Cause(r.ctx)
	}
	if rate != c.cfg.SampleRate {
		c.log.Info("resampling", "from", rate, "to", c.cfg.SampleRate)
	}
	return nil
}

// Stop ends the active session and releases its resources. In batch
// mode it then encodes and uploads the recording, waiting for the
// transcript. Stop on an idle controller does nothing. The returned
// error is whatever ended the session, if it was not the Stop itself.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return nil
	}

	r.requestStop(ctx, true)
	select {
	case <-r.finished:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close forces any session down without a batch upload and refuses new
// sessions. It is safe to call repeatedly.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	r := c.run
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	r.requestStop(context.Background(), false)
	<-r.finished
	return nil
}

// active is the session holding both the connection and the
// microphone. A session still starting is not active.
func (c *Controller) active() *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil || !c.run.live {
		return nil
	}
	return c.run
}

func (c *Controller) Active() bool { return c.active() != nil }

// SessionID is the id of the active session, or "".
func (c *Controller) SessionID() string {
	if r := c.active(); r != nil {
		return r.id
	}
	return ""
}

func (c *Controller) Mode() Mode { return c.cfg.Mode }

func (c *Controller) Transcript() transcript.Snapshot { return c.transcript.Snapshot() }

func (c *Controller) Feedback() []feedback.Event { return c.feedback.Events() }

// FeedbackNewest lists the session's feedback newest first.
func (c *Controller) FeedbackNewest() []feedback.Event { return c.feedback.Newest() }

func (c *Controller) FeedbackSince(id uint64) []feedback.Event { return c.feedback.Since(id) }

func (c *Controller) Metrics() *metrics.Metrics { return c.metrics }

// Annotate adds a note from a collaborator, such as gesture tracking or
// EEG, to the active session's feedback.
func (c *Controller) Annotate(origin feedback.Origin, text string, flagged bool) (feedback.Event, error) {
	c.mu.Lock()
	if c.run == nil || !c.run.live {
		c.mu.Unlock()
		return feedback.Event{}, ErrNoSession
	}
	e := c.feedback.Push(feedback.Event{
		Text:               text,
		StutteringDetected: flagged,
		Origin:             origin,
	})
	c.mu.Unlock()
	c.notifyFeedback(e)
	return e, nil
}

func (c *Controller) notifyTranscript() {
	snap := c.transcript.Snapshot()
	for _, l := range c.listeners {
		l.TranscriptChanged(snap)
	}
}

func (c *Controller) notifyFeedback(e feedback.Event) {
	for _, l := range c.listeners {
		l.FeedbackAdded(e)
	}
}

func (c *Controller) notifyEnded(err error) {
	for _, l := range c.listeners {
		l.SessionEnded(err)
	}
}
