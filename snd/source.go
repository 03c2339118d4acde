// Package snd owns the microphone. A Source holds at most one open input
// stream and delivers float sample blocks from the audio backend's own
// callback thread.
package snd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNoDevice         = errors.New("no input device available")
	ErrRunning          = errors.New("capture already running")
)

// AcquisitionError reports a failure to open the input device.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	name := e.Device
	if name == "" {
		name = "default input"
	}
	return fmt.Sprintf("acquire %s: %v", name, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Constraints describe the input stream the caller wants. Backends that
// cannot honour a processing flag log it and carry on.
type Constraints struct {
	Device           string
	SampleRate       int
	Channels         int
	FramesPerBuffer  int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Block is one callback's worth of mono float samples.
type Block struct {
	Samples    []float32
	SampleRate int
}

// Device opens input streams. The onBlock callback runs on the
// backend's audio thread and must not block.
type Device interface {
	Open(ctx context.Context, c Constraints, onBlock func(Block)) (Stream, error)
}

// Stream is an opened, not yet started, input stream.
type Stream interface {
	SampleRate() int
	Start() error
	Close() error
}

type Source struct {
	mu     sync.Mutex
	device Device
	c      Constraints
	logger *log.Logger
	stream Stream
}

func NewSource(device Device, c Constraints, logger *log.Logger) *Source {
	if c.Channels == 0 {
		c.Channels = 1
	}
	return &Source{device: device, c: c, logger: logger}
}

// Start acquires the device and begins delivering blocks. It returns
// the rate the hardware actually runs at, which may differ from the
// requested one.
func (s *Source) Start(ctx context.Context, onBlock func(Block)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return 0, ErrRunning
	}

	stream, err := s.device.Open(ctx, s.c, onBlock)
	if err != nil {
		var acqErr *AcquisitionError
		if errors.As(err, &acqErr) {
			return 0, err
		}
		return 0, &AcquisitionError{Device: s.c.Device, Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return 0, &AcquisitionError{Device: s.c.Device, Err: err}
	}

	s.stream = stream
	s.logger.Info(
		"mic",
		"device", s.c.Device,
		"rate", stream.SampleRate(),
		"frames", s.c.FramesPerBuffer,
	)
	return stream.SampleRate(), nil
}

// Stop releases the device. Calling it on a stopped source is a no-op.
func (s *Source) Stop() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("release input stream: %w", err)
	}
	s.logger.Info("mic released")
	return nil
}
