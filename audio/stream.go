package audio

import (
	"context"
	"fmt"
	"sync"
)

const defaultQueueDepth = 64 // ~1.5s of 1024-sample frames at 44.1kHz

// Stream is an open capture stream delivering fixed-size PCM frames.
type Stream interface {
	// Read blocks until the next frame is captured. It returns ErrClosed once
	// the stream has ended and ctx.Err() if ctx is done first.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Mic is a Source backed by a capture Context.
type Mic struct {
	Ctx    Context
	Device *DeviceInfo
	Config CaptureConfig
	Depth  int // frame queue depth, defaults to 64
}

func (m *Mic) Open() (Stream, error) {
	dev, err := m.Ctx.NewCapture(m.Device, m.Config)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	depth := m.Depth
	if depth == 0 {
		depth = defaultQueueDepth
	}
	framer := NewFramer(m.Config.FrameBytes(), depth)
	dev.SetCallback(func(data []byte, _ uint32) {
		framer.Write(data)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	return &captureStream{dev: dev, framer: framer}, nil
}

type captureStream struct {
	dev    CaptureDevice
	framer *Framer
	once   sync.Once
}

func (s *captureStream) Read(ctx context.Context) ([]byte, error) {
	return s.framer.Next(ctx)
}

func (s *captureStream) Close() error {
	s.once.Do(func() {
		s.dev.ClearCallback()
		s.dev.Stop()
		s.dev.Close()
		s.framer.Close()
	})
	return nil
}

// Dropped reports frames lost to queue overflow.
func (s *captureStream) Dropped() int {
	return s.framer.Dropped()
}
