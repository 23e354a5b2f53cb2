package delivery

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allClipboard = []string{"wl-copy", "xclip", "native"}
	allInject    = []string{"wtype-paste", "wtype", "xdotool", "ydotool", "keyboard"}
)

type adviceLog []Advice

func (a *adviceLog) Advise(adv Advice) { *a = append(*a, adv) }

func testTools(r *FakeRunner) Tools {
	return Tools{
		Runner:           r,
		PasteDelay:       time.Millisecond,
		ClipboardTimeout: time.Second,
		PasteTimeout:     time.Second,
		TypeTimeout:      time.Second,
	}
}

func newDeliverer(t *testing.T, display Display, tools Tools, advisor Advisor) *Deliverer {
	t.Helper()
	cb, err := tools.ClipboardSteps(allClipboard)
	require.NoError(t, err)
	inj, err := tools.InjectSteps(allInject)
	require.NoError(t, err)
	return New(display, cb, inj, advisor)
}

func names(calls []Command) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Name)
	}
	return out
}

func outcomes(rep Report) map[string]Outcome {
	m := make(map[string]Outcome)
	for _, a := range rep.Attempts {
		m[a.Mechanism] = a.Outcome
	}
	return m
}

func TestDeliverEmptyTextIsNoop(t *testing.T) {
	r := &FakeRunner{Installed: map[string]bool{"xclip": true, "xdotool": true}}
	var advice adviceLog
	d := newDeliverer(t, X11, testTools(r), &advice)

	for _, text := range []string{"", "   ", "\n\t "} {
		rep := d.Deliver(context.Background(), text)
		assert.True(t, rep.Skipped)
		assert.Empty(t, rep.Attempts)
	}
	assert.Empty(t, r.Calls())
	assert.Empty(t, advice)
}

func TestDeliverWaylandPastes(t *testing.T) {
	r := &FakeRunner{Installed: map[string]bool{"wl-copy": true, "wtype": true}}
	var advice adviceLog
	rep := newDeliverer(t, Wayland, testTools(r), &advice).Deliver(context.Background(), "hello world")

	assert.True(t, rep.Copied)
	assert.Equal(t, "wl-copy", rep.Copier)
	assert.Equal(t, "wtype-paste", rep.Method)
	calls := r.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Command{Name: "wl-copy", Stdin: "hello world"}, calls[0])
	assert.Equal(t, []string{"-M", "ctrl", "v", "-m", "ctrl"}, calls[1].Args)
	assert.Empty(t, advice)
}

func TestDeliverWaylandPasteFailsFallsBackToTyping(t *testing.T) {
	r := &FakeRunner{Installed: map[string]bool{"wl-copy": true, "wtype": true}}
	calls := 0
	d := newDeliverer(t, Wayland, testTools(r), nil)
	// the paste step fails, typing with wtype succeeds
	d.inject[0].Run = func(context.Context, Input) error { calls++; return errors.New("compositor refused") }

	rep := d.Deliver(context.Background(), "hi")
	assert.Equal(t, 1, calls)
	assert.Equal(t, "wtype", rep.Method)
	last := r.Calls()[len(r.Calls())-1]
	assert.Equal(t, Command{Name: "wtype", Args: []string{"-d", "1", "hi"}}, last)
}

func TestDeliverX11(t *testing.T) {
	r := &FakeRunner{Installed: map[string]bool{"xclip": true, "xdotool": true, "wtype": true}}
	rep := newDeliverer(t, X11, testTools(r), nil).Deliver(context.Background(), "typed text")

	assert.Equal(t, "xclip", rep.Copier)
	assert.Equal(t, "xdotool", rep.Method)
	calls := r.Calls()
	require.Equal(t, []string{"xclip", "xdotool"}, names(calls))
	assert.Equal(t, []string{"-selection", "clipboard"}, calls[0].Args)
	assert.Equal(t, "typed text", calls[0].Stdin)
	assert.Equal(t, []string{"type", "--clearmodifiers", "--delay", "1", "typed text"}, calls[1].Args)

	got := outcomes(rep)
	assert.Equal(t, Skipped, got["wl-copy"], "wl-copy needs wayland")
	assert.Equal(t, Skipped, got["wtype-paste"])
	assert.Equal(t, Skipped, got["wtype"], "wtype needs wayland even when installed")
}

func TestDeliverYdotoolLastResort(t *testing.T) {
	r := &FakeRunner{
		Installed: map[string]bool{"xdotool": true, "ydotool": true},
		Fail:      map[string]error{"xdotool": errors.New("exit status 1")},
	}
	var advice adviceLog
	rep := newDeliverer(t, X11, testTools(r), &advice).Deliver(context.Background(), "-rf")

	assert.False(t, rep.Copied)
	assert.Equal(t, "ydotool", rep.Method)
	last := r.Calls()[len(r.Calls())-1]
	assert.Equal(t, []string{"type", "--", "-rf"}, last.Args)
	assert.Empty(t, advice)
}

func TestDeliverAllFailAfterCopyAdvisesManualPaste(t *testing.T) {
	r := &FakeRunner{
		Installed: map[string]bool{"xclip": true, "xdotool": true, "ydotool": true},
		Fail: map[string]error{
			"xdotool": errors.New("exit status 1"),
			"ydotool": errors.New("exit status 1"),
		},
	}
	var advice adviceLog
	rep := newDeliverer(t, X11, testTools(r), &advice).Deliver(context.Background(), "text")

	assert.True(t, rep.Copied)
	assert.Empty(t, rep.Method)
	assert.Equal(t, AdviceManualPaste, rep.Advice)
	assert.Equal(t, adviceLog{AdviceManualPaste}, advice)
	assert.Equal(t, "Text copied to clipboard (paste manually with Ctrl+V)", AdviceManualPaste.Message())
}

func TestDeliverNothingInstalledAdvisesInstall(t *testing.T) {
	r := &FakeRunner{}
	var advice adviceLog
	rep := newDeliverer(t, Wayland, testTools(r), &advice).Deliver(context.Background(), "text")

	assert.False(t, rep.Copied)
	assert.Equal(t, adviceLog{AdviceInstallTool}, advice)
	assert.Empty(t, r.Calls())
	for _, a := range rep.Attempts {
		assert.Equal(t, Skipped, a.Outcome, a.Mechanism)
	}
}

func TestDeliverTimeoutMovesOn(t *testing.T) {
	r := &FakeRunner{
		Installed: map[string]bool{"xdotool": true, "ydotool": true},
		Hang:      map[string]bool{"xdotool": true},
	}
	tools := testTools(r)
	tools.TypeTimeout = 50 * time.Millisecond
	start := time.Now()
	rep := newDeliverer(t, X11, tools, nil).Deliver(context.Background(), "text")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "ydotool", rep.Method)
	var xdo Attempt
	for _, a := range rep.Attempts {
		if a.Mechanism == "xdotool" {
			xdo = a
		}
	}
	assert.Equal(t, Failed, xdo.Outcome)
	assert.ErrorIs(t, xdo.Err, ErrTimeout)
	require.Eventually(t, func() bool { return len(r.Killed()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeliverRecoversFromPanickingStep(t *testing.T) {
	kb := &FakeKeyboard{}
	d := New(X11, nil, []Step{
		{Name: "boom", Run: func(context.Context, Input) error { panic("bad driver") }},
		{Name: "kb", Run: func(ctx context.Context, in Input) error { return kb.Type(ctx, in.Text) }},
	}, nil)

	rep := d.Deliver(context.Background(), "still works")
	assert.Equal(t, "kb", rep.Method)
	assert.Equal(t, []string{"still works"}, kb.Typed)
	require.Len(t, rep.Attempts, 2)
	assert.Equal(t, Failed, rep.Attempts[0].Outcome)
	assert.ErrorContains(t, rep.Attempts[0].Err, "panic")
}

func TestDeliverWaitsForOverrunningStep(t *testing.T) {
	var running, overlapped atomic.Bool
	d := New(X11, nil, []Step{
		{Name: "slow", Timeout: 50 * time.Millisecond, Run: func(context.Context, Input) error {
			running.Store(true)
			defer running.Store(false)
			time.Sleep(300 * time.Millisecond)
			return errors.New("gave up")
		}},
		{Name: "next", Run: func(context.Context, Input) error {
			overlapped.Store(running.Load())
			return nil
		}},
	}, nil)

	rep := d.Deliver(context.Background(), "text")
	assert.Equal(t, "next", rep.Method)
	assert.False(t, overlapped.Load(), "next step started while slow step was running")
	require.Len(t, rep.Attempts, 2)
	assert.ErrorIs(t, rep.Attempts[0].Err, ErrTimeout)
}

func TestDeliverStopsAfterStuckStep(t *testing.T) {
	defer func(g time.Duration) { stopGrace = g }(stopGrace)
	stopGrace = 20 * time.Millisecond

	release := make(chan struct{})
	defer close(release)
	var nextRan atomic.Bool
	var advice adviceLog
	d := New(X11, []Step{
		{Name: "stuck", Timeout: 10 * time.Millisecond, Run: func(context.Context, Input) error {
			<-release
			return nil
		}},
	}, []Step{
		{Name: "next", Run: func(context.Context, Input) error {
			nextRan.Store(true)
			return nil
		}},
	}, &advice)

	rep := d.Deliver(context.Background(), "text")
	assert.False(t, nextRan.Load())
	assert.False(t, rep.Copied)
	assert.Empty(t, rep.Method)
	require.Len(t, rep.Attempts, 1)
	assert.ErrorIs(t, rep.Attempts[0].Err, ErrStuck)
	assert.Equal(t, adviceLog{AdviceInstallTool}, advice)
}

func TestKeyboardStep(t *testing.T) {
	t.Run("pastes when copied", func(t *testing.T) {
		kb := &FakeKeyboard{}
		tools := testTools(&FakeRunner{})
		tools.Clipboard = &FakeClipboard{}
		tools.Keyboard = kb
		rep := newDeliverer(t, X11, tools, nil).Deliver(context.Background(), "abc")

		assert.Equal(t, "native", rep.Copier)
		assert.Equal(t, "keyboard", rep.Method)
		assert.Equal(t, 1, kb.Pasted)
		assert.Empty(t, kb.Typed)
	})
	t.Run("types when clipboard failed", func(t *testing.T) {
		kb := &FakeKeyboard{}
		tools := testTools(&FakeRunner{})
		tools.Clipboard = &FakeClipboard{Err: errors.New("no display")}
		tools.Keyboard = kb
		rep := newDeliverer(t, X11, tools, nil).Deliver(context.Background(), "abc")

		assert.False(t, rep.Copied)
		assert.Equal(t, 0, kb.Pasted)
		assert.Equal(t, []string{"abc"}, kb.Typed)
	})
}

func TestNativeClipboardCopierOrder(t *testing.T) {
	r := &FakeRunner{Installed: map[string]bool{"xclip": true}, Fail: map[string]error{"xclip": errors.New("no X")}}
	cb := &FakeClipboard{}
	tools := testTools(r)
	tools.Clipboard = cb
	rep := newDeliverer(t, X11, tools, nil).Deliver(context.Background(), "fallback")

	assert.Equal(t, "native", rep.Copier)
	assert.Equal(t, "fallback", cb.Text)
}

func TestUnknownMechanism(t *testing.T) {
	_, err := testTools(&FakeRunner{}).InjectSteps([]string{"xdotool", "telepathy"})
	assert.ErrorContains(t, err, "telepathy")
	_, err = testTools(&FakeRunner{}).ClipboardSteps([]string{"pbcopy"})
	assert.Error(t, err)
}

func TestDetectDisplay(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Display
	}{
		{"empty", nil, X11},
		{"session type", map[string]string{"XDG_SESSION_TYPE": "wayland"}, Wayland},
		{"wayland display", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, Wayland},
		{"x11 session", map[string]string{"XDG_SESSION_TYPE": "x11", "DISPLAY": ":0"}, X11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			assert.Equal(t, tt.want, DetectDisplay(getenv))
		})
	}
}

func TestParseDisplay(t *testing.T) {
	wayland := func(k string) string {
		if k == "WAYLAND_DISPLAY" {
			return "wayland-1"
		}
		return ""
	}
	d, err := ParseDisplay("auto", wayland)
	require.NoError(t, err)
	assert.Equal(t, Wayland, d)
	d, err = ParseDisplay("x11", wayland)
	require.NoError(t, err)
	assert.Equal(t, X11, d)
	_, err = ParseDisplay("mir", wayland)
	assert.Error(t, err)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	rep := Printer{W: &buf}.Deliver(context.Background(), "to stdout")
	assert.Equal(t, "stdout", rep.Method)
	assert.Equal(t, "to stdout\n", buf.String())

	buf.Reset()
	rep = Printer{W: &buf}.Deliver(context.Background(), " ")
	assert.True(t, rep.Skipped)
	assert.Empty(t, buf.String())
}
