package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ErrSelectionCanceled is returned when the picker is dismissed with Ctrl+C or Esc.
var ErrSelectionCanceled = errors.New("device selection canceled")

var (
	pickerTitle    = lipgloss.NewStyle().Bold(true)
	pickerCursor   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	pickerBTWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	pickerDimmed   = lipgloss.NewStyle().Faint(true)
	defaultChoice  = "System default"
	btWarningLabel = " [lower audio quality]"
)

// SelectDevice presents an interactive picker on the terminal. The first entry
// is the system default, selecting it returns a nil device.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no capture devices found")
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("device selection needs an interactive terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	idx, err := runPicker(os.Stdin, os.Stdout, devices)
	if err != nil {
		return nil, err
	}
	if idx == 0 {
		return nil, nil
	}
	return &devices[idx-1], nil
}

func runPicker(in io.Reader, out io.Writer, devices []DeviceInfo) (int, error) {
	entries := len(devices) + 1
	cursor := 0

	render := func() {
		fmt.Fprint(out, "\r\x1b[J")
		fmt.Fprint(out, pickerTitle.Render("Select input device (↑/↓ or j/k, Enter to confirm)")+"\r\n\r\n")
		for i := 0; i < entries; i++ {
			label := defaultChoice
			suffix := ""
			if i > 0 {
				label = devices[i-1].Name
				if IsBluetooth(label) {
					suffix = pickerBTWarn.Render(btWarningLabel)
				}
			}
			if i == cursor {
				fmt.Fprintf(out, "  %s%s\r\n", pickerCursor.Render("▶ "+label), suffix)
			} else if i == 0 {
				fmt.Fprintf(out, "    %s\r\n", pickerDimmed.Render(label))
			} else {
				fmt.Fprintf(out, "    %s%s\r\n", label, suffix)
			}
		}
	}

	render()
	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}
		switch {
		case n == 1 && buf[0] == '\r':
			fmt.Fprint(out, "\r\n")
			return cursor, nil
		case n == 1 && (buf[0] == 3 || buf[0] == 0x1b):
			fmt.Fprint(out, "\r\n")
			return 0, ErrSelectionCanceled
		case n == 1 && buf[0] == 'j', n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
			if cursor < entries-1 {
				cursor++
			}
		case n == 1 && buf[0] == 'k', n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
			if cursor > 0 {
				cursor--
			}
		}
		fmt.Fprintf(out, "\x1b[%dA", entries+2)
		render()
	}
}
