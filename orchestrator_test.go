package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dictate/audio"
	"dictate/beep"
	"dictate/config"
	"dictate/console"
	"dictate/delivery"
	"dictate/recorder"
	"dictate/transcriber"
)

var testFormat = audio.DefaultCaptureConfig()

func constant(level int16, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = audio.ConstantFrame(level, testFormat.FrameSize)
	}
	return out
}

func concat(parts ...[][]byte) [][]byte {
	var out [][]byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// listStream plays its frames once and then reports the stream closed.
type listStream struct{ frames [][]byte }

func (s *listStream) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.frames) == 0 {
		return nil, audio.ErrClosed
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *listStream) Close() error { return nil }

// scriptSource hands out one script per Open call.
type scriptSource struct {
	scripts [][][]byte
	opens   int
}

func (s *scriptSource) Open() (audio.Stream, error) {
	if s.opens >= len(s.scripts) {
		return nil, errors.New("no more scripts")
	}
	st := &listStream{frames: s.scripts[s.opens]}
	s.opens++
	return st, nil
}

type recordingDeliverer struct{ texts []string }

func (d *recordingDeliverer) Deliver(_ context.Context, text string) delivery.Report {
	d.texts = append(d.texts, text)
	return delivery.Report{Skipped: text == ""}
}

type recordingNotifier struct{ messages []string }

func (n *recordingNotifier) Notify(message, _ string) { n.messages = append(n.messages, message) }

type recordingBeeper struct{ sounds []beep.Sound }

func (b *recordingBeeper) Play(s beep.Sound) { b.sounds = append(b.sounds, s) }

type recordingSink struct {
	calibrating bool
	calibrated  int
	listening   int
	states      []recorder.State
	noSpeech    int
	stopped     recorder.StopReason
	transcribed []string
}

func (r *recordingSink) Calibrating()           { r.calibrating = true }
func (r *recordingSink) Calibrated(t int)       { r.calibrated = t }
func (r *recordingSink) Listening(t int)        { r.listening = t }
func (r *recordingSink) Level(int)              {}
func (r *recordingSink) NoSpeech(time.Duration) { r.noSpeech++ }
func (r *recordingSink) StateChanged(_, to recorder.State) {
	r.states = append(r.states, to)
}
func (r *recordingSink) Stopped(res recorder.Result, _ time.Duration) { r.stopped = res.Reason }
func (r *recordingSink) Transcribed(text string, _ delivery.Report) {
	r.transcribed = append(r.transcribed, text)
}

type harness struct {
	o         *Orchestrator
	source    *scriptSource
	tr        *transcriber.FakeTranscriber
	deliverer *recordingDeliverer
	notifier  *recordingNotifier
	beeper    *recordingBeeper
	sink      *recordingSink
}

func newHarness(t *testing.T, tr *transcriber.FakeTranscriber, scripts ...[][]byte) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Recording.Threshold = 400
	cfg.Recording.SilenceDuration = time.Second
	cfg.Recording.TempDir = t.TempDir()

	h := &harness{
		source:    &scriptSource{scripts: scripts},
		tr:        tr,
		deliverer: &recordingDeliverer{},
		notifier:  &recordingNotifier{},
		beeper:    &recordingBeeper{},
		sink:      &recordingSink{},
	}
	h.o = &Orchestrator{
		Config:      cfg,
		Source:      h.source,
		Format:      testFormat,
		Calibration: calibrationFromConfig(cfg.Calibration),
		Clock:       recorder.NewStreamClock(recorder.FrameDuration(testFormat)),
		Transcriber: tr,
		Deliverer:   h.deliverer,
		Notifier:    h.notifier,
		Beeper:      h.beeper,
		Sink:        h.sink,
	}
	return h
}

// speech is quiet lead-in, a burst over the threshold and enough trailing
// silence to end the session.
func speech() [][]byte {
	return concat(constant(10, 10), constant(2000, 20), constant(10, 60))
}

func TestRunTranscribesAndDelivers(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("  hello world \n", nil), speech())

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 400, sum.Threshold)
	assert.False(t, sum.Calibrated)
	assert.False(t, h.sink.calibrating)
	assert.True(t, sum.Recording.SpeechDetected)
	assert.Equal(t, recorder.StopSilence, h.sink.stopped)
	assert.Equal(t, "hello world", sum.Text)
	assert.Equal(t, []string{"hello world"}, h.deliverer.texts)
	assert.Equal(t, []string{"hello world"}, h.sink.transcribed)
	assert.Equal(t, []recorder.State{recorder.Speaking, recorder.Finished}, h.sink.states)

	assert.Equal(t, []string{"Start Speaking...", "Processing recording...", "Transcription complete!"}, h.notifier.messages)
	assert.Equal(t, []beep.Sound{beep.Start, beep.End}, h.beeper.sounds)

	calls := h.tr.Calls()
	require.Len(t, calls, 1)
	_, statErr := os.Stat(calls[0])
	assert.True(t, os.IsNotExist(statErr), "temporary WAV should be removed")
}

func TestRunCalibratesWhenThresholdZero(t *testing.T) {
	calibration := constant(100, 64)
	h := newHarness(t, transcriber.NewFake("ok", nil), calibration, speech())
	h.o.Config.Recording.Threshold = 0

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, sum.Calibrated)
	assert.Equal(t, 500, sum.Threshold)
	assert.True(t, h.sink.calibrating)
	assert.Equal(t, 500, h.sink.calibrated)
	assert.Equal(t, 500, h.sink.listening)
	assert.Equal(t, 2, h.source.opens)
	assert.Equal(t, "ok", sum.Text)
}

func TestRunCalibrationClampsToMinimum(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("ok", nil), constant(0, 64), speech())
	h.o.Config.Recording.Threshold = 0

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 300, sum.Threshold)
}

func TestRunWithoutSpeechStillTranscribes(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("soft words", nil), constant(10, 50))

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.False(t, sum.Recording.SpeechDetected)
	assert.Equal(t, recorder.StopStreamEnded, sum.Recording.Reason)
	require.Len(t, h.tr.Calls(), 1)
	assert.True(t, sum.Transcribed)
	assert.Equal(t, []string{"soft words"}, h.deliverer.texts)
	assert.Equal(t, "Transcription complete!", h.notifier.messages[len(h.notifier.messages)-1])

	_, statErr := os.Stat(sum.Recording.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunBelowThresholdUntilMaxDuration(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("whispered", nil), constant(350, 200))
	h.o.Config.Recording.MaxDuration = time.Second

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, sum.Recording.SpeechDetected)
	assert.Len(t, h.tr.Calls(), 1)
	assert.Equal(t, "whispered", sum.Text)
}

func TestRunSkipSilent(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("never", nil), constant(10, 50))
	h.o.Config.Recording.SkipSilent = true

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, h.tr.Calls())
	assert.False(t, sum.Transcribed)
	assert.Equal(t, []string{""}, h.deliverer.texts)
	assert.True(t, sum.Delivery.Skipped)
	_, statErr := os.Stat(sum.Recording.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunTranscriptionError(t *testing.T) {
	boom := errors.New("boom")
	h := newHarness(t, transcriber.NewFake("", boom), speech())

	_, err := h.o.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "transcribe")

	assert.Empty(t, h.deliverer.texts)
	assert.Equal(t, []beep.Sound{beep.Start, beep.Error}, h.beeper.sounds)
	assert.NotContains(t, h.notifier.messages, "Transcription complete!")

	calls := h.tr.Calls()
	require.Len(t, calls, 1)
	_, statErr := os.Stat(calls[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunRecordingErrorPlaysErrorBeep(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("x", nil)) // no scripts: Open fails

	_, err := h.o.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record")
	assert.Equal(t, []beep.Sound{beep.Start, beep.Error}, h.beeper.sounds)
	assert.Empty(t, h.tr.Calls())
}

func TestRunMaxDuration(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("long", nil), constant(2000, 200))
	h.o.Config.Recording.MaxDuration = time.Second

	sum, err := h.o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, recorder.StopMaxDuration, h.sink.stopped)
	assert.Equal(t, "long", sum.Text)
	assert.GreaterOrEqual(t, sum.Recording.Duration, time.Second)
}

// stopAfter closes stop once n frames have been read.
type stopAfter struct {
	src  audio.Source
	n    int
	stop chan struct{}
}

func (s *stopAfter) Open() (audio.Stream, error) {
	st, err := s.src.Open()
	if err != nil {
		return nil, err
	}
	return &stopAfterStream{Stream: st, parent: s}, nil
}

type stopAfterStream struct {
	audio.Stream
	parent *stopAfter
	reads  int
}

func (s *stopAfterStream) Read(ctx context.Context) ([]byte, error) {
	f, err := s.Stream.Read(ctx)
	if err == nil {
		s.reads++
		if s.reads == s.parent.n {
			close(s.parent.stop)
		}
	}
	return f, err
}

func TestRunManualStop(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("stopped early", nil), constant(2000, 500))
	stop := make(chan struct{})
	h.o.Source = &stopAfter{src: h.source, n: 5, stop: stop}

	sum, err := h.o.Run(context.Background(), stop)
	require.NoError(t, err)
	assert.Equal(t, recorder.StopManual, sum.Recording.Reason)
	assert.Positive(t, sum.Recording.Frames)
	require.Len(t, h.tr.Calls(), 1)
	assert.Equal(t, "stopped early", sum.Text)
}

func TestRunManualStopBeforeAnyAudio(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("never", nil), constant(2000, 500))
	stop := make(chan struct{})
	close(stop)

	sum, err := h.o.Run(context.Background(), stop)
	require.NoError(t, err)
	assert.Equal(t, recorder.StopManual, sum.Recording.Reason)
	assert.Zero(t, sum.Recording.Frames)
	assert.Empty(t, sum.Recording.Path)
	assert.Empty(t, h.tr.Calls())
	assert.False(t, sum.Transcribed)
}

func TestRunCanceled(t *testing.T) {
	h := newHarness(t, transcriber.NewFake("x", nil), speech())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.o.Run(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.deliverer.texts)
}

func TestNoSpeechEventPlaysErrorBeep(t *testing.T) {
	sink := &recordingSink{}
	beeper := &recordingBeeper{}
	ev := sessionEvents{sink: sink, beeper: beeper}

	ev.NoSpeech(8 * time.Second)
	assert.Equal(t, 1, sink.noSpeech)
	assert.Equal(t, []beep.Sound{beep.Error}, beeper.sounds)
}

func TestConsoleSinkMessages(t *testing.T) {
	var buf bytes.Buffer
	sink := consoleSink{out: console.New(&buf)}

	sink.Calibrated(812)
	sink.StateChanged(recorder.AwaitingSpeech, recorder.Speaking)
	sink.StateChanged(recorder.Speaking, recorder.Finished)
	sink.Stopped(recorder.Result{Reason: recorder.StopSilence}, time.Minute)
	sink.Stopped(recorder.Result{Reason: recorder.StopMaxDuration}, 10*time.Minute)

	want := "Auto-calibrated silence threshold: 812\n" +
		"Speech detected, recording...\n" +
		"\n" +
		"Maximum recording duration (600s) reached. Stopping recording.\n"
	assert.Equal(t, want, buf.String())
}
