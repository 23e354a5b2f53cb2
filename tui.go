package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dictate/delivery"
	"dictate/log"
	"dictate/recorder"
)

// TUI message types
type calibratingMsg struct{}
type listeningMsg struct{ Threshold int }
type stateMsg struct{ State recorder.State }
type levelMsg struct{ RMS int }
type noSpeechMsg struct{ Waited time.Duration }
type stoppedMsg struct{ Reason recorder.StopReason }
type tickMsg time.Time

type tuiPhase int

const (
	phaseStarting tuiPhase = iota
	phaseCalibrating
	phaseWaiting
	phaseSpeaking
	phaseDone
)

const meterWidth = 40

type tuiModel struct {
	phase     tuiPhase
	threshold int
	level     float64 // smoothed RMS
	peak      int
	started   time.Time
	now       time.Time
	noSpeech  time.Duration
	reason    recorder.StopReason
	stop      func() // Enter: stop recording, keep the audio
	abort     func() // Ctrl+C: cancel the session
}

var (
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	waitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	meterLow     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	meterHigh    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

func newTUIModel(stop, abort func()) tuiModel {
	return tuiModel{stop: stop, abort: abort}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.abort()
		case "enter", " ", "space":
			m.stop()
		}

	case tickMsg:
		m.now = time.Time(msg)
		return m, tuiTick()

	case calibratingMsg:
		m.phase = phaseCalibrating

	case listeningMsg:
		m.phase = phaseWaiting
		m.threshold = msg.Threshold
		m.started = time.Now()
		m.now = m.started

	case stateMsg:
		if msg.State == recorder.Speaking {
			m.phase = phaseSpeaking
			m.noSpeech = 0
		}

	case levelMsg:
		m.level = m.level*0.6 + float64(msg.RMS)*0.4
		if msg.RMS > m.peak {
			m.peak = msg.RMS
		}

	case noSpeechMsg:
		m.noSpeech = msg.Waited

	case stoppedMsg:
		m.phase = phaseDone
		m.reason = msg.Reason
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) View() string {
	var lines []string
	switch m.phase {
	case phaseStarting:
		lines = append(lines, dimStyle.Render("○ STARTING"))
	case phaseCalibrating:
		lines = append(lines, dimStyle.Render("○ CALIBRATING (stay quiet)"))
	case phaseWaiting:
		lines = append(lines, waitStyle.Render(fmt.Sprintf("○ LISTENING %.1fs", m.elapsed().Seconds())))
	case phaseSpeaking:
		lines = append(lines, recStyle.Render(fmt.Sprintf("● REC %.1fs", m.elapsed().Seconds())))
	case phaseDone:
		lines = append(lines, dimStyle.Render("■ STOPPED ("+string(m.reason)+")"))
	}

	if m.phase == phaseWaiting || m.phase == phaseSpeaking {
		lines = append(lines, levelMeter(int(m.level), m.threshold, meterWidth)+
			dimStyle.Render(fmt.Sprintf(" %4d / %d", int(m.level), m.threshold)))
	}
	if m.noSpeech > 0 {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("  ⚠ no voice detected for %s", m.noSpeech.Round(time.Second))))
	}

	lines = append(lines, "")
	lines = append(lines, boldStyle.Render("Enter")+helpStyle.Render(" stop  ")+
		boldStyle.Render("Ctrl+C")+helpStyle.Render(" abort"))
	return strings.Join(lines, "\n") + "\n"
}

func (m tuiModel) elapsed() time.Duration {
	if m.started.IsZero() || m.now.Before(m.started) {
		return 0
	}
	return m.now.Sub(m.started)
}

// levelMeter draws a bar scaled to twice the threshold with a marker at
// the threshold itself.
func levelMeter(level, threshold, width int) string {
	if threshold <= 0 || width <= 0 {
		return ""
	}
	full := 2 * threshold
	filled := min(level*width/full, width)
	mark := width / 2

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == mark:
			b.WriteString(meterMark.Render("|"))
		case i < filled && level >= threshold:
			b.WriteString(meterHigh.Render("█"))
		case i < filled:
			b.WriteString(meterLow.Render("█"))
		default:
			b.WriteString(meterLow.Render("·"))
		}
	}
	return b.String()
}

// tuiSink forwards session events to a running Bubble Tea program and
// waits for it to restore the terminal once recording stops.
type tuiSink struct {
	p    *tea.Program
	done <-chan struct{}

	mu       sync.Mutex
	lastSent time.Time
}

func (t *tuiSink) Calibrating()                        { t.p.Send(calibratingMsg{}) }
func (t *tuiSink) Calibrated(int)                      {}
func (t *tuiSink) Listening(threshold int)             { t.p.Send(listeningMsg{Threshold: threshold}) }
func (t *tuiSink) StateChanged(_, to recorder.State)   { t.p.Send(stateMsg{State: to}) }
func (t *tuiSink) NoSpeech(waited time.Duration)       { t.p.Send(noSpeechMsg{Waited: waited}) }
func (t *tuiSink) Transcribed(string, delivery.Report) {}

// Level is called for every frame; the screen only needs ~30 updates a second.
func (t *tuiSink) Level(rms int) {
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.lastSent) < 30*time.Millisecond {
		t.mu.Unlock()
		return
	}
	t.lastSent = now
	t.mu.Unlock()
	t.p.Send(levelMsg{RMS: rms})
}

func (t *tuiSink) Stopped(res recorder.Result, _ time.Duration) {
	t.p.Send(stoppedMsg{Reason: res.Reason})
	<-t.done
}

// startTUI runs the status screen on stderr so stdout stays usable for -print.
func startTUI(stop, abort func()) *tuiSink {
	p := tea.NewProgram(newTUIModel(stop, abort), tea.WithOutput(os.Stderr))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
	}()
	return &tuiSink{p: p, done: done}
}

// Close shuts the screen down if recording never got to stop it.
func (t *tuiSink) Close() {
	t.p.Quit()
	<-t.done
}
