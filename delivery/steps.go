package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Keyboard injects keystrokes without an external program.
type Keyboard interface {
	Paste() error
	Type(ctx context.Context, text string) error
}

type Clipboard interface {
	WriteAll(text string) error
}

// NativeClipboard writes through atotto/clipboard, which picks the platform
// mechanism itself (pbcopy, the Windows API, or xsel/xclip/wl-clipboard).
type NativeClipboard struct{}

func (NativeClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	return clipboard.WriteAll(text)
}

// Tools holds what the step catalog needs to build chains.
type Tools struct {
	Runner           Runner
	Clipboard        Clipboard // nil disables "native"
	Keyboard         Keyboard  // nil disables "keyboard"
	PasteDelay       time.Duration
	ClipboardTimeout time.Duration
	PasteTimeout     time.Duration
	TypeTimeout      time.Duration
}

// ClipboardSteps builds the copy chain from mechanism names, in order.
func (t Tools) ClipboardSteps(names []string) ([]Step, error) {
	catalog := map[string]func() Step{
		"wl-copy": t.wlCopy,
		"xclip":   t.xclip,
		"xsel":    t.xsel,
		"native":  t.native,
	}
	return build(catalog, names)
}

// InjectSteps builds the injection chain from mechanism names, in order.
func (t Tools) InjectSteps(names []string) ([]Step, error) {
	catalog := map[string]func() Step{
		"wtype-paste": t.wtypePaste,
		"wtype":       t.wtype,
		"xdotool":     t.xdotool,
		"ydotool":     t.ydotool,
		"keyboard":    t.keyboard,
	}
	return build(catalog, names)
}

var toolBinaries = map[string]string{
	"wl-copy":     "wl-copy",
	"xclip":       "xclip",
	"xsel":        "xsel",
	"wtype-paste": "wtype",
	"wtype":       "wtype",
	"xdotool":     "xdotool",
	"ydotool":     "ydotool",
}

// ToolFor names the program a mechanism runs. ok is false for mechanisms
// handled in-process.
func ToolFor(mechanism string) (binary string, ok bool) {
	binary, ok = toolBinaries[mechanism]
	return binary, ok
}

func build(catalog map[string]func() Step, names []string) ([]Step, error) {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		mk, ok := catalog[name]
		if !ok {
			return nil, fmt.Errorf("unknown delivery mechanism %q", name)
		}
		steps = append(steps, mk())
	}
	return steps, nil
}

func (t Tools) available(name string) bool {
	return t.Runner != nil && t.Runner.Available(name)
}

func (t Tools) command(timeout time.Duration, args func(Input) Command) func(context.Context, Input) error {
	return func(ctx context.Context, in Input) error {
		return t.Runner.Run(ctx, args(in), timeout)
	}
}

func (t Tools) wlCopy() Step {
	return Step{
		Name: "wl-copy",
		When: func(in Input) bool { return in.Display == Wayland && t.available("wl-copy") },
		Run: t.command(t.ClipboardTimeout, func(in Input) Command {
			return Command{Name: "wl-copy", Stdin: in.Text}
		}),
		Timeout: t.ClipboardTimeout,
	}
}

func (t Tools) xclip() Step {
	return Step{
		Name: "xclip",
		When: func(Input) bool { return t.available("xclip") },
		Run: t.command(t.ClipboardTimeout, func(in Input) Command {
			return Command{Name: "xclip", Args: []string{"-selection", "clipboard"}, Stdin: in.Text}
		}),
		Timeout: t.ClipboardTimeout,
	}
}

func (t Tools) xsel() Step {
	return Step{
		Name: "xsel",
		When: func(Input) bool { return t.available("xsel") },
		Run: t.command(t.ClipboardTimeout, func(in Input) Command {
			return Command{Name: "xsel", Args: []string{"--clipboard", "--input"}, Stdin: in.Text}
		}),
		Timeout: t.ClipboardTimeout,
	}
}

func (t Tools) native() Step {
	return Step{
		Name: "native",
		When: func(Input) bool { return t.Clipboard != nil },
		Run: func(_ context.Context, in Input) error {
			return t.Clipboard.WriteAll(in.Text)
		},
		Timeout: t.ClipboardTimeout,
	}
}

func (t Tools) wtypePaste() Step {
	return Step{
		Name: "wtype-paste",
		When: func(in Input) bool { return in.Display == Wayland && in.Copied && t.available("wtype") },
		Run: func(ctx context.Context, in Input) error {
			if err := sleep(ctx, t.PasteDelay); err != nil {
				return err
			}
			return t.Runner.Run(ctx, Command{Name: "wtype", Args: []string{"-M", "ctrl", "v", "-m", "ctrl"}}, t.PasteTimeout)
		},
		Timeout: t.PasteDelay + t.PasteTimeout,
	}
}

func (t Tools) wtype() Step {
	return Step{
		Name: "wtype",
		When: func(in Input) bool { return in.Display == Wayland && t.available("wtype") },
		Run: t.command(t.TypeTimeout, func(in Input) Command {
			return Command{Name: "wtype", Args: []string{"-d", "1", in.Text}}
		}),
		Timeout: t.TypeTimeout,
	}
}

func (t Tools) xdotool() Step {
	return Step{
		Name: "xdotool",
		When: func(Input) bool { return t.available("xdotool") },
		Run: t.command(t.TypeTimeout, func(in Input) Command {
			return Command{Name: "xdotool", Args: []string{"type", "--clearmodifiers", "--delay", "1", in.Text}}
		}),
		Timeout: t.TypeTimeout,
	}
}

func (t Tools) ydotool() Step {
	return Step{
		Name: "ydotool",
		When: func(Input) bool { return t.available("ydotool") },
		Run: t.command(t.TypeTimeout, func(in Input) Command {
			return Command{Name: "ydotool", Args: []string{"type", "--", in.Text}}
		}),
		Timeout: t.TypeTimeout,
	}
}

func (t Tools) keyboard() Step {
	return Step{
		Name: "keyboard",
		When: func(Input) bool { return t.Keyboard != nil },
		Run: func(ctx context.Context, in Input) error {
			if in.Copied {
				if err := sleep(ctx, t.PasteDelay); err != nil {
					return err
				}
				return t.Keyboard.Paste()
			}
			return t.Keyboard.Type(ctx, in.Text)
		},
		Timeout: t.TypeTimeout,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
