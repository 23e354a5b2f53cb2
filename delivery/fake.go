package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeRunner records commands instead of executing them.
type FakeRunner struct {
	Installed map[string]bool
	Fail      map[string]error // per program; missing means success
	Hang      map[string]bool  // block until the timeout fires

	mu     sync.Mutex
	calls  []Command
	killed []string
}

func (f *FakeRunner) Available(name string) bool {
	return f.Installed[name]
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command, timeout time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.Hang[cmd.Name] {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-ctx.Done()
		f.mu.Lock()
		f.killed = append(f.killed, cmd.Name)
		f.mu.Unlock()
		return fmt.Errorf("%s: %w after %s", cmd.Name, ErrTimeout, timeout)
	}
	return f.Fail[cmd.Name]
}

func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// Killed lists programs whose invocation ran into its timeout.
func (f *FakeRunner) Killed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.killed...)
}

// FakeKeyboard records in-process keystroke injection.
type FakeKeyboard struct {
	PasteErr error
	TypeErr  error

	mu     sync.Mutex
	Pasted int
	Typed  []string
}

func (k *FakeKeyboard) Paste() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.PasteErr != nil {
		return k.PasteErr
	}
	k.Pasted++
	return nil
}

func (k *FakeKeyboard) Type(ctx context.Context, text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if k.TypeErr != nil {
		return k.TypeErr
	}
	k.Typed = append(k.Typed, text)
	return nil
}

// FakeClipboard is an in-memory Clipboard.
type FakeClipboard struct {
	Err  error
	Text string
}

func (c *FakeClipboard) WriteAll(text string) error {
	if c.Err != nil {
		return c.Err
	}
	c.Text = text
	return nil
}
