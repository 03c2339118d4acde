package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"podium/ogg"
	"podium/pcm"
	"podium/wav"
)

// Format is the container used for batch uploads.
type Format string

const (
	WAV Format = "wav"
	Ogg Format = "ogg"
)

var ErrEmptyRecording = errors.New("recording is empty")

type chunk struct {
	offset  int64
	samples []int16
}

// Recording holds every frame of a batch session until it is encoded.
// Frames are placed by sequence number, so a frame lost to a full queue
// leaves silence rather than shifting later audio.
type Recording struct {
	mu        sync.Mutex
	rate      int
	blockSize int
	chunks    []chunk
}

func NewRecording(sampleRate, blockSize int) *Recording {
	return &Recording{rate: sampleRate, blockSize: blockSize}
}

func (r *Recording) Add(seq uint64, f pcm.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk{
		offset:  int64(seq) * int64(r.blockSize),
		samples: f,
	})
}

func (r *Recording) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Samples returns the whole recording with gaps filled by zeros.
func (r *Recording) Samples() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chunks) == 0 {
		return nil
	}
	last := r.chunks[len(r.chunks)-1]
	out := make([]int16, last.offset+int64(len(last.samples)))
	for _, c := range r.chunks {
		copy(out[c.offset:], c.samples)
	}
	return out
}

// Save encodes the recording. With an empty path it goes to a temporary
// file, which the caller removes.
func (r *Recording) Save(format Format, path string, logger *log.Logger) (string, error) {
	if r.Frames() == 0 {
		return "", ErrEmptyRecording
	}

	switch format {
	case WAV, "":
		if path == "" {
			return wav.WriteTemp(r.Samples(), r.rate)
		}
		return path, wav.WriteFile(path, r.Samples(), r.rate)
	case Ogg:
		return r.saveOgg(path, logger)
	}
	return "", fmt.Errorf("unknown recording format %q", format)
}

func (r *Recording) saveOgg(path string, logger *log.Logger) (string, error) {
	var (
		w   *ogg.Writer
		err error
	)
	if path == "" {
		w, err = ogg.CreateTemp(r.rate, logger)
	} else {
		w, err = ogg.Create(path, r.rate, logger)
	}
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	chunks := append([]chunk(nil), r.chunks...)
	r.mu.Unlock()

	for _, c := range chunks {
		if err := w.Write(c.samples, c.offset); err != nil {
			w.Close()
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.Path(), nil
}
