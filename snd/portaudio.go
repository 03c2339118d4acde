package snd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// PortAudio is the hardware backend. Each opened stream holds its own
// reference on the PortAudio library, released when the stream closes.
type PortAudio struct {
	logger *log.Logger
}

func NewPortAudio(logger *log.Logger) *PortAudio {
	return &PortAudio{logger: logger}
}

type paStream struct {
	stream *portaudio.Stream
	rate   int
	once   sync.Once
	err    error
}

func (s *paStream) SampleRate() int { return s.rate }

func (s *paStream) Start() error { return s.stream.Start() }

func (s *paStream) Close() error {
	s.once.Do(func() {
		// Stop fails on a stream that never started; Close still has
		// to run.
		s.stream.Stop()
		s.err = s.stream.Close()
		portaudio.Terminate()
	})
	return s.err
}

func (p *PortAudio) Open(
	ctx context.Context,
	c Constraints,
	onBlock func(Block),
) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, &AcquisitionError{
			Device: c.Device,
			Err:    fmt.Errorf("initialize portaudio: %w", err),
		}
	}

	stream, err := p.open(c, onBlock)
	if err != nil {
		portaudio.Terminate()
		return nil, &AcquisitionError{Device: c.Device, Err: classify(err)}
	}
	return stream, nil
}

func (p *PortAudio) open(c Constraints, onBlock func(Block)) (*paStream, error) {
	dev, err := lookupDevice(c.Device)
	if err != nil {
		return nil, err
	}

	if c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl {
		p.logger.Debug(
			"input processing is left to the host audio stack",
			"echo", c.EchoCancellation,
			"noise", c.NoiseSuppression,
			"agc", c.AutoGainControl,
		)
	}

	rate := c.SampleRate
	callback := func(in []float32) {
		samples := make([]float32, len(in))
		copy(samples, in)
		onBlock(Block{Samples: samples, SampleRate: rate})
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = c.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, callback)
	if errors.Is(err, portaudio.InvalidSampleRate) {
		// Many devices only run at their native rate; capture there
		// and let the pipeline resample.
		p.logger.Warn(
			"sample rate rejected, using device default",
			"wanted", c.SampleRate,
			"default", dev.DefaultSampleRate,
		)
		rate = int(dev.DefaultSampleRate)
		params.SampleRate = dev.DefaultSampleRate
		frames := c.FramesPerBuffer * rate / c.SampleRate
		params.FramesPerBuffer = frames
		stream, err = portaudio.OpenStream(params, callback)
	}
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}

	return &paStream{stream: stream, rate: rate}, nil
}

func lookupDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}

// classify maps PortAudio host errors onto the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNoDevice), errors.Is(err, ErrPermissionDenied):
		return err
	case errors.Is(err, portaudio.InvalidDevice):
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	case errors.Is(err, portaudio.DeviceUnavailable):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

// DeviceInfo describes one input-capable device.
type DeviceInfo struct {
	Name        string
	HostAPI     string
	Channels    int
	DefaultRate float64
	Default     bool
}

// ListDevices enumerates the input devices PortAudio can see.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var defaultName string
	if dev, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = dev.Name
	}

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		info := DeviceInfo{
			Name:        dev.Name,
			Channels:    dev.MaxInputChannels,
			DefaultRate: dev.DefaultSampleRate,
			Default:     dev.Name == defaultName,
		}
		if dev.HostApi != nil {
			info.HostAPI = dev.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}
