//go:build portaudio

package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Backend names the capture implementation compiled in.
const Backend = "portaudio"

// The portaudio backend replaces pulse/malgo when built with -tags portaudio.
// It reads the stream in a blocking loop and hands each buffer to the callback.

type portaudioContext struct{}

func NewContext() (Context, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	return &portaudioContext{}, nil
}

func (p *portaudioContext) Devices() ([]DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			result = append(result, DeviceInfo{ID: d.Name, Name: d.Name})
		}
	}
	return result, nil
}

func (p *portaudioContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	in := make([]int16, config.FrameSize*int(config.Channels))

	var (
		stream *portaudio.Stream
		err    error
	)
	if device == nil {
		stream, err = portaudio.OpenDefaultStream(int(config.Channels), 0, float64(config.SampleRate), config.FrameSize, in)
	} else {
		var info *portaudio.DeviceInfo
		info, err = lookupInput(device.ID)
		if err != nil {
			return nil, err
		}
		params := portaudio.LowLatencyParameters(info, nil)
		params.Input.Channels = int(config.Channels)
		params.SampleRate = float64(config.SampleRate)
		params.FramesPerBuffer = config.FrameSize
		stream, err = portaudio.OpenStream(params, in)
	}
	if err != nil {
		return nil, fmt.Errorf("portaudio open: %w", err)
	}
	return &portaudioCapture{stream: stream, in: in}, nil
}

func lookupInput(name string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	for _, d := range devs {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device %q", name)
}

func (p *portaudioContext) Close() {
	_ = portaudio.Terminate()
}

type portaudioCapture struct {
	callbackSlot
	stream *portaudio.Stream
	in     []int16

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (c *portaudioCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start: %w", err)
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.stop:
				return
			default:
			}
			if err := c.stream.Read(); err != nil {
				// input overflow; the frame is lost but the stream is still usable
				continue
			}
			if cb := c.load(); cb != nil {
				cb(PCM16(c.in), uint32(len(c.in)))
			}
		}
	}()
	return nil
}

func (c *portaudioCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	select {
	case <-c.stop:
		return
	default:
		close(c.stop)
	}
	<-c.done
	_ = c.stream.Stop()
}

func (c *portaudioCapture) Close() {
	c.Stop()
	_ = c.stream.Close()
}
