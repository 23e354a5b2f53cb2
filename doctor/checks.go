package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"dictate/audio"
	"dictate/config"
	"dictate/delivery"
	"dictate/recorder"
	"dictate/transcriber"
)

// Env is what the standard checks inspect. Nil Source or Keyboard skips
// the corresponding check.
type Env struct {
	Config      config.Config
	Getenv      func(string) string
	Runner      delivery.Runner
	Keyboard    interface{ Ready() error }
	Source      audio.Source
	Format      audio.CaptureConfig
	Calibration recorder.Calibration
	LookPath    func(string) (string, error)
}

func Checks(env Env) []Check {
	if env.Getenv == nil {
		env.Getenv = os.Getenv
	}
	if env.LookPath == nil {
		env.LookPath = exec.LookPath
	}
	checks := []Check{
		{Name: "Display server", Run: env.display},
		{Name: "Clipboard tools", Run: env.tools(env.Config.Delivery.Clipboard, true),
			Hint: "install wl-clipboard (Wayland) or xclip (X11)"},
		{Name: "Typing tools", Run: env.tools(env.Config.Delivery.Inject, false),
			Hint: "install wtype (Wayland) or xdotool (X11)"},
	}
	if env.Keyboard != nil {
		checks = append(checks, Check{Name: "Virtual keyboard", Run: env.keyboard,
			Hint: "sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput"})
	}
	if env.Source != nil {
		checks = append(checks, Check{Name: "Microphone", Run: env.microphone})
	}
	checks = append(checks, Check{Name: "Transcriber", Run: env.transcriber})
	return checks
}

func (e Env) display(context.Context) (Status, string) {
	d, err := delivery.ParseDisplay(e.Config.Delivery.Display, e.Getenv)
	if err != nil {
		return Fail, err.Error()
	}
	if e.Getenv("WAYLAND_DISPLAY") == "" && e.Getenv("DISPLAY") == "" {
		return Warn, fmt.Sprintf("no WAYLAND_DISPLAY or DISPLAY set, assuming %s", d)
	}
	return Pass, d.String()
}

// tools reports which external programs of a chain are installed. A chain
// with an in-process mechanism never fails outright.
func (e Env) tools(names []string, required bool) func(context.Context) (Status, string) {
	return func(context.Context) (Status, string) {
		var found, missing, builtin []string
		for _, name := range names {
			bin, ok := delivery.ToolFor(name)
			switch {
			case !ok:
				builtin = append(builtin, name)
			case e.Runner != nil && e.Runner.Available(bin):
				found = append(found, name)
			default:
				missing = append(missing, name)
			}
		}
		detail := fmt.Sprintf("found [%s] missing [%s]", strings.Join(found, " "), strings.Join(missing, " "))
		if len(builtin) > 0 {
			detail += fmt.Sprintf(" built-in [%s]", strings.Join(builtin, " "))
		}
		switch {
		case len(found) > 0:
			return Pass, detail
		case len(builtin) > 0 || !required:
			return Warn, detail
		}
		return Fail, detail
	}
}

func (e Env) keyboard(context.Context) (Status, string) {
	if err := e.Keyboard.Ready(); err != nil {
		return Fail, err.Error()
	}
	return Pass, "virtual keyboard ready"
}

func (e Env) microphone(ctx context.Context) (Status, string) {
	threshold, err := recorder.Calibrate(ctx, e.Source, e.Format, e.Calibration)
	if err != nil {
		return Fail, err.Error()
	}
	return Pass, fmt.Sprintf("sampled %s of audio, silence threshold %d", e.Calibration.Duration, threshold)
}

func (e Env) transcriber(context.Context) (Status, string) {
	cfg := e.Config.Transcriber
	if err := config.Validate(e.Config); err != nil {
		return Fail, err.Error()
	}
	switch cfg.Mode {
	case config.ModeGroq, config.ModeOpenAI:
		return Pass, cfg.Mode + " API key set"
	case config.ModeFake:
		return Warn, "fake transcriber configured"
	}

	ex, err := transcriber.NewExec(cfg)
	if err != nil {
		return Fail, err.Error()
	}
	args := ex.Args("recording.wav")
	path, err := e.LookPath(args[0])
	if err != nil {
		return Fail, fmt.Sprintf("%s not found in PATH", args[0])
	}
	for _, a := range args[1:] {
		if strings.HasSuffix(a, ".bin") {
			if _, err := os.Stat(a); err != nil {
				return Fail, fmt.Sprintf("model file %s missing", a)
			}
		}
	}
	return Pass, path
}
