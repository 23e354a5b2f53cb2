package recorder

import (
	"time"

	"dictate/audio"
)

// Clock supplies the session's notion of "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StreamClock derives time from the number of frames read instead of the wall
// clock: each frame advances it by one frame duration. Replaying a file faster
// than real time with a StreamClock gives the same silence and duration
// decisions as live capture.
type StreamClock struct {
	now  time.Time
	step time.Duration
}

func NewStreamClock(step time.Duration) *StreamClock {
	return &StreamClock{now: time.Unix(0, 0), step: step}
}

func (c *StreamClock) Now() time.Time { return c.now }

// Tick advances the clock by one frame.
func (c *StreamClock) Tick() { c.now = c.now.Add(c.step) }

type ticker interface{ Tick() }

// FrameDuration is the wall time covered by one frame of the given format.
func FrameDuration(format audio.CaptureConfig) time.Duration {
	if format.SampleRate == 0 {
		return 0
	}
	return time.Duration(format.FrameSize) * time.Second / time.Duration(format.SampleRate)
}
