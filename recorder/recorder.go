package recorder

import (
	"context"
	"fmt"
	"os"

	"dictate/audio"
	"dictate/log"
)

// Recorder runs one Session against a freshly opened stream and a temporary
// WAV file. The stream and the file handle are released on every exit path;
// on failure the file is removed too.
type Recorder struct {
	Source  audio.Source
	Format  audio.CaptureConfig
	Config  Config
	TempDir string
	Events  Events
	Clock   Clock
}

func (r *Recorder) Run(ctx context.Context, stop <-chan struct{}) (Result, error) {
	stream, err := r.Source.Open()
	if err != nil {
		return Result{}, fmt.Errorf("open audio stream: %w", err)
	}
	defer stream.Close()

	sink, err := CreateWAV(r.TempDir, int(r.Format.SampleRate))
	if err != nil {
		return Result{}, err
	}

	res, runErr := NewSession(r.Config, r.Events, r.Clock).Run(ctx, stream, sink, stop)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("finalize wav: %w", err)
	}
	if runErr != nil {
		os.Remove(sink.Path())
		return res, runErr
	}
	if res.Frames == 0 {
		// nothing captured; an empty WAV is not worth keeping
		os.Remove(sink.Path())
	} else {
		res.Path = sink.Path()
	}
	log.RecordingDone(string(res.Reason), res.Frames, res.Dropped, res.Duration, res.SpeechDetected)
	return res, nil
}
