package main

import (
	"time"

	"dictate/beep"
	"dictate/console"
	"dictate/delivery"
	"dictate/log"
	"dictate/recorder"
)

// EventSink abstracts the display layer so the plain console and the
// Bubble Tea TUI can receive the same session events.
type EventSink interface {
	Calibrating()
	Calibrated(threshold int)
	Listening(threshold int)
	StateChanged(from, to recorder.State)
	Level(rms int)
	NoSpeech(waited time.Duration)
	Stopped(res recorder.Result, limit time.Duration)
	Transcribed(text string, rep delivery.Report)
}

// sessionEvents adapts a recorder session to an EventSink and adds the
// side effects that do not belong to any display.
type sessionEvents struct {
	sink   EventSink
	beeper Beeper
}

func (e sessionEvents) StateChanged(from, to recorder.State) { e.sink.StateChanged(from, to) }

func (e sessionEvents) Level(rms int) { e.sink.Level(rms) }

func (e sessionEvents) NoSpeech(waited time.Duration) {
	log.Warnf("no speech after %s", waited.Round(time.Second))
	e.beeper.Play(beep.Error)
	e.sink.NoSpeech(waited)
}

// consoleSink prints the status lines a user sees without the TUI.
type consoleSink struct {
	out *console.Console
}

func (c consoleSink) Calibrating() {}

func (c consoleSink) Calibrated(threshold int) {
	c.out.Infof("Auto-calibrated silence threshold: %d", threshold)
}

func (c consoleSink) Listening(int) {}

func (c consoleSink) StateChanged(_, to recorder.State) {
	if to == recorder.Speaking {
		c.out.Successf("Speech detected, recording...")
	}
}

func (c consoleSink) Level(int) {}

func (c consoleSink) NoSpeech(waited time.Duration) {
	c.out.Warnf("No speech detected yet (%s). Is the microphone muted?", waited.Round(time.Second))
}

func (c consoleSink) Stopped(res recorder.Result, limit time.Duration) {
	if res.Reason == recorder.StopMaxDuration {
		c.out.Printf("\n")
		c.out.Printf("Maximum recording duration (%ds) reached. Stopping recording.\n", int(limit.Seconds()))
	}
}

func (c consoleSink) Transcribed(string, delivery.Report) {}
