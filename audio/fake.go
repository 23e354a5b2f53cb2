package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// FakeContext replays PCM in place of a microphone. After the recorded audio
// is exhausted it keeps delivering silent frames until stopped, so silence
// detection can end a session the way it would with a live microphone.
type FakeContext struct {
	pcm        []byte
	sampleRate int
	realtime   bool
}

// NewFakeContext loads a mono 16-bit PCM WAV file.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", wavPath)
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%s: need mono 16-bit PCM, got %d channels at %d bits", wavPath, dec.NumChans, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", wavPath, err)
	}
	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	return &FakeContext{pcm: PCM16(samples), sampleRate: int(dec.SampleRate), realtime: realtime}, nil
}

// NewFakeContextPCM replays raw little-endian 16-bit mono samples.
func NewFakeContextPCM(pcm []byte, sampleRate int, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, sampleRate: sampleRate, realtime: realtime}
}

func (f *FakeContext) SampleRate() int { return f.sampleRate }

// Frames reports how many whole frames of recorded audio the context holds.
func (f *FakeContext) Frames(frameSize int) int {
	return (len(f.pcm) + frameSize*BytesPerSample - 1) / (frameSize * BytesPerSample)
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	frameSize := config.FrameSize
	if frameSize == 0 {
		frameSize = DefaultFrameSize
	}
	return &FakeCapture{
		pcm:        f.pcm,
		sampleRate: f.sampleRate,
		frameSize:  frameSize,
		realtime:   f.realtime,
		audioDone:  make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm        []byte
	sampleRate int
	frameSize  int
	realtime   bool
	audioDone  chan struct{}

	callbackSlot
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once every recorded frame has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, chunkBytes)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(f.frameSize))
	return end
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := f.frameSize * BytesPerSample
	interval := time.Millisecond
	if f.realtime && f.sampleRate > 0 {
		interval = time.Duration(f.frameSize) * time.Second / time.Duration(f.sampleRate)
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		audioFinished := false

		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			cb := f.load()
			if cb == nil {
				time.Sleep(time.Millisecond)
				continue
			}

			switch {
			case pos < len(f.pcm):
				pos = f.feedChunk(cb, pos, chunkBytes)
				if !f.realtime {
					continue
				}
			default:
				if !audioFinished {
					audioFinished = true
					close(f.audioDone)
				}
				cb(silence, uint32(f.frameSize))
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {}
