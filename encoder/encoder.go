// Package encoder compresses recordings before upload to a cloud transcriber.
package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Encoded is a compressed recording with the numbers the diagnostics log wants.
type Encoded struct {
	Data       []byte
	Format     string // file extension understood by transcription APIs
	SampleRate int
	Samples    uint64
	RawBytes   int
	EncodeTime time.Duration
}

func (e Encoded) AudioLength() time.Duration {
	if e.SampleRate == 0 {
		return 0
	}
	return time.Duration(e.Samples) * time.Second / time.Duration(e.SampleRate)
}

// FLACFromWAV reads a mono 16-bit WAV file and encodes it as FLAC.
func FLACFromWAV(path string) (Encoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return Encoded{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Encoded{}, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.NumChans != Channels || dec.BitDepth != BitsPerSample {
		return Encoded{}, fmt.Errorf("%s: need mono 16-bit PCM", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Encoded{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	start := time.Now()
	enc, err := NewFlac(int(dec.SampleRate))
	if err != nil {
		return Encoded{}, err
	}
	block := make([]int16, 0, BlockSize)
	for _, s := range buf.Data {
		block = append(block, int16(s))
		if len(block) == BlockSize {
			if err := enc.EncodeBlock(block); err != nil {
				return Encoded{}, err
			}
			block = block[:0]
		}
	}
	if len(block) > 0 {
		if err := enc.EncodeBlock(block); err != nil {
			return Encoded{}, err
		}
	}
	if err := enc.Close(); err != nil {
		return Encoded{}, fmt.Errorf("closing flac encoder: %w", err)
	}

	return Encoded{
		Data:       enc.Bytes(),
		Format:     "flac",
		SampleRate: int(dec.SampleRate),
		Samples:    enc.TotalSamples(),
		RawBytes:   len(buf.Data) * 2,
		EncodeTime: time.Since(start),
	}, nil
}
