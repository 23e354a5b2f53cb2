// Package console prints colored status lines for the user on stderr.
// Diagnostics go to the log package; this is only what a person reads.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type Console struct {
	mu      sync.Mutex
	w       io.Writer
	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
}

// New renders for w, dropping colors when w is not a terminal.
func New(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		info:    r.NewStyle().Foreground(lipgloss.Color("6")),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		err:     r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func Stderr() *Console { return New(os.Stderr) }

// Discard returns a console that prints nothing.
func Discard() *Console { return New(io.Discard) }

func (c *Console) Infof(format string, args ...any)    { c.line(c.info, format, args...) }
func (c *Console) Successf(format string, args ...any) { c.line(c.success, format, args...) }
func (c *Console) Warnf(format string, args ...any)    { c.line(c.warn, format, args...) }
func (c *Console) Errorf(format string, args ...any)   { c.line(c.err, format, args...) }

func (c *Console) Printf(format string, args ...any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) line(style lipgloss.Style, format string, args ...any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, style.Render(fmt.Sprintf(format, args...)))
}
