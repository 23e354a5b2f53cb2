//go:build linux && !portaudio

package audio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
)

// Backend names the capture implementation compiled in.
const Backend = "pulse"

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("dictate"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

// NewCapture creates the record stream up front so a vanished source is
// reported by Mic.Open rather than on the first read.
func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if config.Channels != 1 {
		return nil, fmt.Errorf("pulse: only mono capture is supported, got %d channels", config.Channels)
	}

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(config.SampleRate)),
		pulse.RecordLatency(0.05),
	}
	if device != nil {
		source, err := p.client.SourceByID(device.ID)
		if err != nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, err)
		}
		opts = append(opts, pulse.RecordSource(source))
	}

	c := &pulseCapture{}
	stream, err := p.client.NewRecord(pulse.Int16Writer(c.write), opts...)
	if err != nil {
		return nil, fmt.Errorf("pulse record: %w", err)
	}
	c.stream = stream
	return c, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseCapture forwards whatever the server hands over; the Framer in Mic
// cuts it into fixed-size frames.
type pulseCapture struct {
	callbackSlot
	stream *pulse.RecordStream
	close  sync.Once
}

// write runs on the pulse client goroutine.
func (c *pulseCapture) write(buf []int16) (int, error) {
	if cb := c.load(); cb != nil && len(buf) > 0 {
		cb(PCM16(buf), uint32(len(buf)))
	}
	return len(buf), nil
}

func (c *pulseCapture) Start() error {
	c.stream.Start()
	return nil
}

func (c *pulseCapture) Stop() {
	c.stream.Stop()
}

func (c *pulseCapture) Close() {
	c.close.Do(c.stream.Close)
}
