package main

import (
	"fmt"

	"dictate/audio"
	"dictate/recorder"
)

// replaySource feeds a WAV file through the capture path in place of the
// microphone. Without realtime pacing the session runs on a clock derived
// from the frame count, so silence and max-duration timing still hold.
func replaySource(path string, realtime bool, format *audio.CaptureConfig) (audio.Source, recorder.Clock, error) {
	fake, err := audio.NewFakeContext(path, realtime)
	if err != nil {
		return nil, nil, fmt.Errorf("load replay file: %w", err)
	}
	format.SampleRate = uint32(fake.SampleRate())

	mic := &audio.Mic{Ctx: fake, Config: *format}
	if realtime {
		return mic, nil, nil
	}
	// everything is queued up front, so the queue must hold the whole file
	mic.Depth = fake.Frames(format.FrameSize) + 64
	return mic, recorder.NewStreamClock(recorder.FrameDuration(*format)), nil
}
