package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"dictate/audio"
	"dictate/log"
)

// Calibration controls how the ambient noise floor is turned into a speech
// threshold.
type Calibration struct {
	Duration   time.Duration // how much ambient audio to sample
	Percentile float64       // noise floor percentile of per-frame RMS
	Multiplier float64       // threshold = floor * Multiplier
	Min        int
	Max        int
	Fallback   int // used when no frame could be read
}

func DefaultCalibration() Calibration {
	return Calibration{
		Duration:   1500 * time.Millisecond,
		Percentile: 0.95,
		Multiplier: 5,
		Min:        300,
		Max:        3000,
		Fallback:   500,
	}
}

// Frames is the number of frames sampled for the given capture format.
func (c Calibration) Frames(format audio.CaptureConfig) int {
	if format.FrameSize == 0 {
		return 0
	}
	return int(float64(format.SampleRate) / float64(format.FrameSize) * c.Duration.Seconds())
}

// NoiseFloor returns the configured percentile of the levels, or false when
// there are none. levels is sorted in place.
func (c Calibration) NoiseFloor(levels []int) (int, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	slices.Sort(levels)
	idx := int(float64(len(levels)) * c.Percentile)
	if idx >= len(levels) {
		idx = len(levels) - 1
	}
	return levels[idx], true
}

// Threshold maps sampled ambient levels to a speech threshold clamped to
// [Min, Max]. With no samples it returns Fallback.
func (c Calibration) Threshold(levels []int) int {
	floor, ok := c.NoiseFloor(levels)
	if !ok {
		return c.Fallback
	}
	t := int(float64(floor) * c.Multiplier)
	return max(c.Min, min(t, c.Max))
}

// Calibrate samples ambient audio from src and returns a speech threshold.
// Frame read errors are skipped. Failing to open the source is fatal.
func Calibrate(ctx context.Context, src audio.Source, format audio.CaptureConfig, c Calibration) (int, error) {
	stream, err := src.Open()
	if err != nil {
		return 0, fmt.Errorf("open audio stream: %w", err)
	}
	defer stream.Close()

	n := c.Frames(format)
	levels := make([]int, 0, n)
	skipped := 0
	for i := 0; i < n; i++ {
		frame, err := stream.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			if errors.Is(err, audio.ErrClosed) || errors.Is(err, io.EOF) {
				break
			}
			skipped++
			continue
		}
		levels = append(levels, audio.RMS(frame))
	}

	threshold := c.Threshold(levels)
	floor, _ := c.NoiseFloor(levels)
	log.Calibrated(threshold, floor, len(levels), skipped)
	return threshold, nil
}
