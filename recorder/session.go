package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"dictate/audio"
	"dictate/log"
)

type State int

const (
	AwaitingSpeech State = iota
	Speaking
	Finished
)

func (s State) String() string {
	switch s {
	case AwaitingSpeech:
		return "awaiting_speech"
	case Speaking:
		return "speaking"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type StopReason string

const (
	StopSilence     StopReason = "silence"
	StopMaxDuration StopReason = "max_duration"
	StopManual      StopReason = "manual"
	StopCanceled    StopReason = "canceled"
	StopStreamEnded StopReason = "stream_ended"
	StopSinkError   StopReason = "sink_error"
)

type Config struct {
	Threshold       int           // RMS above which a frame counts as speech
	SilenceDuration time.Duration // trailing silence that ends a session once speech started
	MaxDuration     time.Duration
	FlushInterval   int           // frames buffered in memory between sink writes
	NoSpeechWarn    time.Duration // 0 disables the warning
}

func DefaultConfig() Config {
	return Config{
		SilenceDuration: 5 * time.Second,
		MaxDuration:     600 * time.Second,
		FlushInterval:   100,
		NoSpeechWarn:    8 * time.Second,
	}
}

// Sink receives captured frames in capture order.
type Sink interface {
	Write(frames [][]byte) error
	Close() error
}

// Events observes a running session. Calls happen on the session goroutine.
type Events interface {
	StateChanged(from, to State)
	Level(rms int)
	NoSpeech(waited time.Duration)
}

type NopEvents struct{}

func (NopEvents) StateChanged(State, State) {}
func (NopEvents) Level(int)                 {}
func (NopEvents) NoSpeech(time.Duration)    {}

type Result struct {
	Path           string // WAV file set by Recorder, empty when no frames were written
	Reason         StopReason
	Frames         int // frames written to the sink
	Dropped        int // frames lost to read errors
	Duration       time.Duration
	SpeechDetected bool
	PeakBuffered   int
}

// Session is one voice-activity-gated recording. A Session is single use.
type Session struct {
	cfg    Config
	events Events
	clock  Clock

	state     State
	buf       [][]byte
	start     time.Time
	lastSound time.Time
	result    Result
}

func NewSession(cfg Config, events Events, clock Clock) *Session {
	if events == nil {
		events = NopEvents{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if cfg.FlushInterval < 1 {
		cfg.FlushInterval = 1
	}
	return &Session{cfg: cfg, events: events, clock: clock}
}

func (s *Session) State() State { return s.state }

func (s *Session) setState(to State) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to
	s.events.StateChanged(from, to)
}

func (s *Session) flush(sink Sink) error {
	if len(s.buf) == 0 {
		return nil
	}
	if err := sink.Write(s.buf); err != nil {
		return err
	}
	s.result.Frames += len(s.buf)
	s.buf = s.buf[:0]
	return nil
}

// Run reads frames from stream until trailing silence after speech, the
// maximum duration, a close of stop, the end of the stream, or cancellation of
// ctx. Buffered frames are always flushed to sink before Run returns. Run does
// not close stream or sink.
func (s *Session) Run(ctx context.Context, stream audio.Stream, sink Sink, stop <-chan struct{}) (Result, error) {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	if stop != nil {
		go func() {
			select {
			case <-stop:
				cancelRead()
			case <-readCtx.Done():
			}
		}()
	}

	s.buf = make([][]byte, 0, s.cfg.FlushInterval)
	s.start = s.clock.Now()
	now := s.start
	nextWarn := s.start.Add(s.cfg.NoSpeechWarn)
	tick, _ := s.clock.(ticker)

	var runErr error
loop:
	for {
		if stopped(stop) {
			s.result.Reason = StopManual
			break
		}
		frame, err := stream.Read(readCtx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.result.Reason = StopCanceled
				runErr = ctx.Err()
				break loop
			case readCtx.Err() != nil:
				s.result.Reason = StopManual
				break loop
			case errors.Is(err, audio.ErrClosed), errors.Is(err, io.EOF):
				s.result.Reason = StopStreamEnded
				break loop
			default:
				s.result.Dropped++
				if s.result.Dropped == 1 {
					log.Warnf("audio read error, dropping frame: %v", err)
				}
				continue
			}
		}
		if tick != nil {
			tick.Tick()
		}
		now = s.clock.Now()

		s.buf = append(s.buf, frame)
		s.result.PeakBuffered = max(s.result.PeakBuffered, len(s.buf))
		if len(s.buf) >= s.cfg.FlushInterval {
			if err := s.flush(sink); err != nil {
				s.result.Reason = StopSinkError
				runErr = fmt.Errorf("write audio: %w", err)
				break
			}
		}

		level := audio.RMS(frame)
		s.events.Level(level)
		if level > s.cfg.Threshold {
			if s.state == AwaitingSpeech {
				s.result.SpeechDetected = true
				s.setState(Speaking)
			}
			s.lastSound = now
		}

		if s.state == Speaking && now.Sub(s.lastSound) > s.cfg.SilenceDuration {
			s.result.Reason = StopSilence
			break
		}
		if now.Sub(s.start) >= s.cfg.MaxDuration {
			s.result.Reason = StopMaxDuration
			break
		}
		if s.state == AwaitingSpeech && s.cfg.NoSpeechWarn > 0 && !now.Before(nextWarn) {
			s.events.NoSpeech(now.Sub(s.start))
			nextWarn = nextWarn.Add(s.cfg.NoSpeechWarn)
		}
	}

	if s.result.Reason != StopSinkError {
		if err := s.flush(sink); err != nil && runErr == nil {
			s.result.Reason = StopSinkError
			runErr = fmt.Errorf("write audio: %w", err)
		}
	}
	s.result.Duration = now.Sub(s.start)
	s.setState(Finished)
	return s.result, runErr
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
