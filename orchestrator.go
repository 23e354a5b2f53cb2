package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"dictate/audio"
	"dictate/beep"
	"dictate/config"
	"dictate/delivery"
	"dictate/log"
	"dictate/notify"
	"dictate/recorder"
	"dictate/transcriber"
)

// Deliverer puts the transcript somewhere useful: the focused window or stdout.
type Deliverer interface {
	Deliver(ctx context.Context, text string) delivery.Report
}

type Beeper interface {
	Play(s beep.Sound)
}

// Orchestrator runs one dictation: calibrate, record, transcribe, deliver.
type Orchestrator struct {
	Config      config.Config
	Source      audio.Source
	Format      audio.CaptureConfig
	Calibration recorder.Calibration
	Clock       recorder.Clock // nil uses wall time
	Transcriber transcriber.Transcriber
	Deliverer   Deliverer
	Notifier    notify.Notifier
	Beeper      Beeper
	Sink        EventSink
}

// Summary describes a finished run.
type Summary struct {
	Threshold   int
	Calibrated  bool
	Recording   recorder.Result
	Text        string
	Transcribed bool // false for an empty recording or a skipped silent one
	Delivery    delivery.Report
}

func (o *Orchestrator) Run(ctx context.Context, stop <-chan struct{}) (Summary, error) {
	var sum Summary

	sum.Threshold = o.Config.Recording.Threshold
	if sum.Threshold == 0 {
		o.Sink.Calibrating()
		t, err := recorder.Calibrate(ctx, o.Source, o.Format, o.Calibration)
		if err != nil {
			return sum, fmt.Errorf("calibrate: %w", err)
		}
		sum.Threshold = t
		sum.Calibrated = true
		o.Sink.Calibrated(t)
	}

	o.Beeper.Play(beep.Start)
	o.Notifier.Notify("Start Speaking...", notify.IconSpeaking)
	if w, ok := o.Transcriber.(transcriber.Warmer); ok {
		go w.Warm()
	}

	o.Sink.Listening(sum.Threshold)
	rec := recorder.Recorder{
		Source:  o.Source,
		Format:  o.Format,
		Config:  o.recorderConfig(sum.Threshold),
		TempDir: o.Config.Recording.TempDir,
		Events:  sessionEvents{sink: o.Sink, beeper: o.Beeper},
		Clock:   o.Clock,
	}
	res, err := rec.Run(ctx, stop)
	sum.Recording = res
	o.Sink.Stopped(res, o.Config.Recording.MaxDuration)
	if err != nil {
		o.Beeper.Play(beep.Error)
		return sum, fmt.Errorf("record: %w", err)
	}

	o.Notifier.Notify("Processing recording...", notify.IconSilence)

	switch {
	case res.Path == "":
		log.Info("empty recording, nothing to transcribe")
	case !res.SpeechDetected && o.Config.Recording.SkipSilent:
		os.Remove(res.Path)
		log.Info("no speech detected, skipping transcription")
	default:
		text, err := o.transcribe(ctx, res)
		os.Remove(res.Path)
		if err != nil {
			o.Beeper.Play(beep.Error)
			return sum, err
		}
		sum.Text = text
		sum.Transcribed = true
	}

	sum.Delivery = o.Deliverer.Deliver(ctx, sum.Text)
	o.Sink.Transcribed(sum.Text, sum.Delivery)

	o.Beeper.Play(beep.End)
	o.Notifier.Notify("Transcription complete!", notify.IconThinking)
	return sum, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, res recorder.Result) (string, error) {
	start := time.Now()
	r, err := o.Transcriber.Transcribe(ctx, res.Path)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	m := log.Metrics{
		Engine:           o.Transcriber.Name(),
		AudioLengthS:     res.Duration.Seconds(),
		RawSizeKB:        float64(r.RawBytes) / 1024,
		CompressedSizeKB: float64(r.CompressedBytes) / 1024,
		EncodeTimeMs:     ms(r.EncodeTime),
		TotalTimeMs:      ms(time.Since(start)),
		TextChars:        len(r.Text),
	}
	if r.Metrics != nil {
		m.DNSTimeMs = ms(r.Metrics.DNS)
		m.TLSTimeMs = ms(r.Metrics.TLS)
		m.TTFBMs = ms(r.Metrics.TTFB)
		m.ConnReused = r.Metrics.ConnReused
	}
	log.Transcribed(m)
	return strings.TrimSpace(r.Text), nil
}

func (o *Orchestrator) recorderConfig(threshold int) recorder.Config {
	r := o.Config.Recording
	return recorder.Config{
		Threshold:       threshold,
		SilenceDuration: r.SilenceDuration,
		MaxDuration:     r.MaxDuration,
		FlushInterval:   r.FlushInterval,
		NoSpeechWarn:    r.NoSpeechWarn,
	}
}

func calibrationFromConfig(c config.CalibrationConfig) recorder.Calibration {
	return recorder.Calibration{
		Duration:   c.Duration,
		Percentile: c.Percentile,
		Multiplier: c.Multiplier,
		Min:        c.MinThreshold,
		Max:        c.MaxThreshold,
		Fallback:   c.FallbackThreshold,
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
