// Package pcm turns float microphone samples into fixed-size blocks of
// signed 16-bit mono PCM.
package pcm

import (
	"encoding/binary"
	"math"
)

// BufferSizes are the block lengths, in samples, that the capture path
// accepts.
var BufferSizes = []int{256, 512, 1024, 2048, 4096, 8192, 16384}

// ValidBufferSize returns the member of BufferSizes nearest to n.
// Ties go to the smaller size.
func ValidBufferSize(n int) int {
	best := BufferSizes[0]
	for _, size := range BufferSizes[1:] {
		if abs(size-n) < abs(best-n) {
			best = size
		}
	}
	return best
}

// Quantize maps a float sample to int16. Input is clamped to [-1, 1];
// negative values scale by 32768 and positive values by 32767 so that
// both ends of the range are reachable.
func Quantize(s float32) int16 {
	switch {
	case math.IsNaN(float64(s)):
		return 0
	case s <= -1:
		return -32768
	case s >= 1:
		return 32767
	case s < 0:
		return int16(s * 32768)
	default:
		return int16(s * 32767)
	}
}

// QuantizeInto writes the quantized form of src into dst and returns
// the number of samples written.
func QuantizeInto(dst []int16, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Quantize(src[i])
	}
	return n
}

// Frame is one block of mono PCM16 samples.
type Frame []int16

// Bytes encodes the frame as little-endian PCM16.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
