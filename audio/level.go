package audio

import (
	"encoding/binary"
	"math"
)

// RMS returns the root-mean-square amplitude of a frame of little-endian
// 16-bit samples, truncated to an integer. A trailing odd byte is ignored.
// An empty frame has level 0.
func RMS(frame []byte) int {
	n := len(frame) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += s * s
	}
	return int(math.Sqrt(sum / float64(n)))
}

// ConstantFrame returns a frame of n samples all equal to level, whose RMS is
// exactly |level|. Used for synthetic audio.
func ConstantFrame(level int16, n int) []byte {
	frame := make([]byte, n*BytesPerSample)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(level))
	}
	return frame
}

// PCM16 encodes samples as little-endian 16-bit bytes.
func PCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
