package delivery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrTimeout     = errors.New("timed out")
	ErrUnavailable = errors.New("not available")
	ErrStuck       = errors.New("still running after timeout")
)

// Command is one external program invocation. Stdin is piped to the child
// when non-empty.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes external programs for delivery steps.
type Runner interface {
	Available(name string) bool
	// Run waits for the command to exit. A command still running after
	// timeout is killed and ErrTimeout is returned.
	Run(ctx context.Context, cmd Command, timeout time.Duration) error
}

type ExecRunner struct{}

func (ExecRunner) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (ExecRunner) Run(ctx context.Context, c Command, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	// wl-copy and xclip fork a selection owner that inherits our descriptors.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, timeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w", c.Name, ErrUnavailable)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}
