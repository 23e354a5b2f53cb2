// Package doctor runs setup diagnostics: display detection, delivery
// tools, the microphone and the transcriber configuration.
package doctor

import (
	"context"
	"fmt"
	"io"
)

type Status int

const (
	Pass Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Warn:
		return "WARN"
	}
	return "FAIL"
}

// Check is one diagnostic. Hint is printed on failure only.
type Check struct {
	Name string
	Run  func(ctx context.Context) (Status, string)
	Hint string
}

// Run executes checks in order and returns an exit code (0=no failures, 1=any fail).
// Warnings do not fail the run.
func Run(ctx context.Context, out io.Writer, checks []Check) int {
	fmt.Fprintln(out, "dictate doctor - system diagnostics")
	fmt.Fprintln(out, "===================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(checks), c.Name)
		if ctx.Err() != nil {
			fmt.Fprintln(out, "  FAIL: interrupted")
			failed++
			break
		}
		status, detail := c.Run(ctx)
		fmt.Fprintf(out, "  %s: %s\n", status, detail)
		if status == Fail {
			failed++
			if c.Hint != "" {
				fmt.Fprintf(out, "  Fix with: %s\n", c.Hint)
			}
		}
	}

	fmt.Fprintln(out)
	if failed == 0 {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintf(out, "%d check(s) failed. See details above.\n", failed)
	return 1
}
