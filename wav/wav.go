// Package wav writes and inspects mono 16-bit RIFF/WAVE files.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	BitDepth   = 16
	HeaderSize = 44
	formatPCM  = 1
)

var ErrEmpty = errors.New("no samples to encode")

// Encode writes a canonical 44-byte header followed by the samples as
// mono little-endian PCM16.
func Encode(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return ErrEmpty
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, BitDepth, 1, formatPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize header: %w", err)
	}
	return nil
}

// WriteFile encodes samples into a new file at path.
func WriteFile(path string, samples []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, samples, sampleRate); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// WriteTemp encodes samples into a fresh temporary file and returns its
// path. The caller removes it.
func WriteTemp(samples []int16, sampleRate int) (string, error) {
	f, err := os.CreateTemp("", "podium-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := Encode(f, samples, sampleRate); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Info is what Inspect learns from a file's header.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    int
}

func (i Info) Seconds() float64 {
	if i.SampleRate == 0 || i.Channels == 0 {
		return 0
	}
	return float64(i.Samples) / float64(i.SampleRate*i.Channels)
}

// Decode reads a whole PCM WAVE stream.
func Decode(r io.ReadSeeker) (Info, []int16, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Info{}, nil, errors.New("not a valid WAVE file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Info{}, nil, fmt.Errorf("read samples: %w", err)
	}

	info := Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Samples:    len(buf.Data),
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	return info, samples, nil
}

// Inspect decodes the file at path and returns its header facts.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	info, _, err := Decode(f)
	return info, err
}
