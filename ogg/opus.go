// Package ogg writes mono PCM16 audio as an Ogg/Opus file for batch
// uploads.
package ogg

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const (
	// Opus granule positions always count at 48 kHz.
	granuleRate   = 48000
	frameDuration = 20 // ms
	ticksPerFrame = granuleRate * frameDuration / 1000
	maxPacketSize = 4000
)

// silentPacket is a 20 ms Opus frame that decodes to silence.
var silentPacket = []byte{0xf8, 0xff, 0xfe}

// SupportedRate reports whether Opus can encode at the given rate.
func SupportedRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// Writer encodes 20 ms Opus frames into an Ogg stream. Samples are
// placed by their offset in the recording; gaps become silence.
type Writer struct {
	ogg       *oggwriter.OggWriter
	enc       *opus.Encoder
	frameLen  int
	next      int64
	pending   []int16
	timestamp uint32
	packet    []byte
	path      string
	log       *log.Logger
}

// NewWriter writes to out. If out is an io.Closer, Close closes it.
func NewWriter(out io.Writer, sampleRate int, logger *log.Logger) (*Writer, error) {
	if !SupportedRate(sampleRate) {
		return nil, fmt.Errorf("opus cannot encode at %d Hz", sampleRate)
	}

	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create Opus encoder: %w", err)
	}

	oggWriter, err := oggwriter.NewWith(out, uint32(sampleRate), 1)
	if err != nil {
		return nil, fmt.Errorf("create OGG writer: %w", err)
	}

	frameLen := sampleRate * frameDuration / 1000
	return &Writer{
		ogg:      oggWriter,
		enc:      enc,
		frameLen: frameLen,
		pending:  make([]int16, 0, frameLen),
		packet:   make([]byte, maxPacketSize),
		log:      logger,
	}, nil
}

// Create opens a Writer on a new file at path.
func Create(path string, sampleRate int, logger *log.Logger) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return onFile(f, sampleRate, logger)
}

// CreateTemp opens a Writer on a new temporary file.
func CreateTemp(sampleRate int, logger *log.Logger) (*Writer, error) {
	f, err := os.CreateTemp("", "podium-*.ogg")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return onFile(f, sampleRate, logger)
}

func onFile(f *os.File, sampleRate int, logger *log.Logger) (*Writer, error) {
	w, err := NewWriter(f, sampleRate, logger)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	w.path = f.Name()
	return w, nil
}

// Path is the file behind a Writer made by Create or CreateTemp.
func (w *Writer) Path() string { return w.path }

// Write appends samples that start at offset, counted in samples from
// the beginning of the recording. Samples before the current position
// are dropped.
func (w *Writer) Write(samples []int16, offset int64) error {
	if offset > w.next {
		if err := w.fillGap(offset - w.next); err != nil {
			return err
		}
	}
	if offset < w.next {
		skip := w.next - offset
		if skip >= int64(len(samples)) {
			return nil
		}
		samples = samples[skip:]
	}

	w.next += int64(len(samples))
	for len(samples) > 0 {
		n := min(w.frameLen-len(w.pending), len(samples))
		w.pending = append(w.pending, samples[:n]...)
		samples = samples[n:]
		if len(w.pending) == w.frameLen {
			if err := w.flushFrame(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) fillGap(gap int64) error {
	w.next += gap

	// Finish the partly filled frame with zeros first.
	if len(w.pending) > 0 {
		fill := min(gap, int64(w.frameLen-len(w.pending)))
		w.pending = append(w.pending, make([]int16, fill)...)
		gap -= fill
		if len(w.pending) == w.frameLen {
			if err := w.flushFrame(); err != nil {
				return err
			}
		}
	}

	silentPacketsCount := gap / int64(w.frameLen)
	w.log.Debug("Inserting silent packets", "count", silentPacketsCount, "gap", gap)
	for j := int64(0); j < silentPacketsCount; j++ {
		if err := w.writePacket(silentPacket); err != nil {
			return fmt.Errorf("write silent Opus packet: %w", err)
		}
	}

	w.pending = append(w.pending, make([]int16, gap%int64(w.frameLen))...)
	return nil
}

func (w *Writer) flushFrame() error {
	n, err := w.enc.Encode(w.pending, w.packet)
	if err != nil {
		return fmt.Errorf("encode Opus frame: %w", err)
	}
	w.pending = w.pending[:0]
	if err := w.writePacket(w.packet[:n]); err != nil {
		return fmt.Errorf("write Opus packet: %w", err)
	}
	return nil
}

func (w *Writer) writePacket(payload []byte) error {
	err := w.ogg.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Timestamp: w.timestamp,
		},
		Payload: payload,
	})
	w.timestamp += ticksPerFrame
	return err
}

// Close pads the last partial frame with silence and finishes the
// stream.
func (w *Writer) Close() error {
	if len(w.pending) > 0 {
		w.pending = append(w.pending, make([]int16, w.frameLen-len(w.pending))...)
		if err := w.flushFrame(); err != nil {
			w.ogg.Close()
			return err
		}
	}
	if err := w.ogg.Close(); err != nil {
		return fmt.Errorf("close OGG writer: %w", err)
	}
	return nil
}
