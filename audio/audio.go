package audio

import (
	"errors"
	"strings"
	"sync/atomic"
)

const (
	WAVHeaderSize = 44

	DefaultSampleRate = 44100
	DefaultFrameSize  = 1024 // samples per frame
	BytesPerSample    = 2    // 16-bit mono
)

// ErrClosed is returned by Stream.Read once the stream has been closed or the
// capture device stopped delivering data.
var ErrClosed = errors.New("audio: stream closed")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	FrameSize  int // samples per frame handed to Stream readers
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: DefaultSampleRate, Channels: 1, FrameSize: DefaultFrameSize}
}

// FrameBytes is the size in bytes of one frame of mono 16-bit PCM.
func (c CaptureConfig) FrameBytes() int {
	return c.FrameSize * BytesPerSample
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context is a capture backend (pulse, malgo, portaudio or fake).
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// callbackSlot holds the DataCallback of a capture device. Backends embed it
// and read it from their audio thread.
type callbackSlot struct {
	cb atomic.Pointer[DataCallback]
}

func (s *callbackSlot) SetCallback(cb DataCallback) { s.cb.Store(&cb) }
func (s *callbackSlot) ClearCallback()              { s.cb.Store(nil) }

func (s *callbackSlot) load() DataCallback {
	if p := s.cb.Load(); p != nil {
		return *p
	}
	return nil
}

// Source opens blocking frame streams. Calibration and recording each open
// their own stream and close it when done.
type Source interface {
	Open() (Stream, error)
}

// FindDevice returns the device whose name or ID matches, case-insensitively.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if strings.EqualFold(devices[i].Name, name) || devices[i].ID == name {
			return &devices[i], nil
		}
	}
	return nil, errors.New("audio: no capture device named " + name)
}
