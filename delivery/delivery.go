package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"dictate/log"
)

type Outcome int

const (
	Success Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	}
	return "failed"
}

// Input is what a step sees: the text plus session facts its precondition may
// depend on.
type Input struct {
	Text    string
	Display Display
	Copied  bool
}

// Step is one mechanism in a fallback chain. A nil When always applies.
type Step struct {
	Name    string
	When    func(Input) bool
	Run     func(ctx context.Context, in Input) error
	Timeout time.Duration
}

type Attempt struct {
	Mechanism string
	Outcome   Outcome
	Err       error
	Elapsed   time.Duration
}

type Advice int

const (
	AdviceNone Advice = iota
	AdviceManualPaste
	AdviceInstallTool
)

func (a Advice) String() string {
	switch a {
	case AdviceManualPaste:
		return "manual_paste"
	case AdviceInstallTool:
		return "install_tool"
	}
	return "none"
}

func (a Advice) Message() string {
	switch a {
	case AdviceManualPaste:
		return "Text copied to clipboard (paste manually with Ctrl+V)"
	case AdviceInstallTool:
		return "Could not type or copy text. Install wtype (Wayland) or xdotool (X11)"
	}
	return ""
}

// Advisor surfaces the advisory emitted when no injection mechanism worked.
type Advisor interface {
	Advise(Advice)
}

type AdvisorFunc func(Advice)

func (f AdvisorFunc) Advise(a Advice) { f(a) }

type Report struct {
	Skipped  bool // empty transcript, nothing attempted
	Copied   bool
	Copier   string // clipboard mechanism that succeeded
	Method   string // injection mechanism that succeeded
	Advice   Advice
	Attempts []Attempt
}

// Deliverer puts text into the focused application. It copies the text to
// the clipboard, then walks the injection chain until one step succeeds.
type Deliverer struct {
	display   Display
	clipboard []Step
	inject    []Step
	advisor   Advisor
}

func New(display Display, clipboard, inject []Step, advisor Advisor) *Deliverer {
	if advisor == nil {
		advisor = AdvisorFunc(func(Advice) {})
	}
	return &Deliverer{display: display, clipboard: clipboard, inject: inject, advisor: advisor}
}

// Deliver never fails: every problem is recorded in the report and, when no
// injection succeeded, reported through the Advisor exactly once.
func (d *Deliverer) Deliver(ctx context.Context, text string) Report {
	var rep Report
	if strings.TrimSpace(text) == "" {
		rep.Skipped = true
		return rep
	}

	in := Input{Text: text, Display: d.display}
	copier, attempts, stuck := runChain(ctx, d.clipboard, in)
	rep.Copier, rep.Attempts = copier, attempts
	rep.Copied = copier != ""

	// a stuck step may still be running, so nothing else is started
	var method string
	if !stuck {
		in.Copied = rep.Copied
		method, attempts, _ = runChain(ctx, d.inject, in)
		rep.Method = method
		rep.Attempts = append(rep.Attempts, attempts...)
	}

	if method == "" {
		rep.Advice = AdviceInstallTool
		if rep.Copied {
			rep.Advice = AdviceManualPaste
		}
		d.advisor.Advise(rep.Advice)
	}
	log.DeliveryDone(rep.Copied, rep.Method, rep.Advice.String())
	return rep
}

// runChain evaluates steps in order and stops at the first success, or at a
// step that did not stop after its timeout (stuck is then true).
func runChain(ctx context.Context, steps []Step, in Input) (method string, attempts []Attempt, stuck bool) {
	for _, step := range steps {
		if step.When != nil && !step.When(in) {
			attempts = append(attempts, Attempt{Mechanism: step.Name, Outcome: Skipped})
			continue
		}
		start := time.Now()
		err := runStep(ctx, step, in)
		a := Attempt{Mechanism: step.Name, Outcome: Success, Err: err, Elapsed: time.Since(start)}
		if err != nil {
			a.Outcome = Failed
		}
		attempts = append(attempts, a)
		log.DeliveryAttempt(a.Mechanism, a.Outcome.String(), a.Elapsed, a.Err)
		switch {
		case err == nil:
			return step.Name, attempts, false
		case errors.Is(err, ErrStuck):
			return "", attempts, true
		}
	}
	return "", attempts, false
}

// stopGrace bounds how long a step that overran its timeout may take to
// return before the chain gives up on it.
var stopGrace = 2 * time.Second

// runStep bounds a step by its timeout and turns a panic into a failure. A
// step that overruns is waited for, so no two steps ever run at once; if it
// has not returned within stopGrace, ErrStuck is returned.
func runStep(ctx context.Context, step Step, in Input) error {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s: panic: %v", step.Name, r)
			}
		}()
		done <- step.Run(ctx, in)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	grace := time.NewTimer(stopGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		if err == nil {
			return nil // finished its work just as the deadline hit
		}
	case <-grace.C:
		return fmt.Errorf("%s: %w", step.Name, ErrStuck)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", step.Name, ErrTimeout, step.Timeout)
	}
	return fmt.Errorf("%s: %w", step.Name, ctx.Err())
}

// Printer writes the transcript to W instead of injecting it.
type Printer struct {
	W io.Writer
}

func (p Printer) Deliver(_ context.Context, text string) Report {
	if strings.TrimSpace(text) == "" {
		return Report{Skipped: true}
	}
	_, err := fmt.Fprintln(p.W, text)
	a := Attempt{Mechanism: "stdout", Outcome: Success, Err: err}
	if err != nil {
		a.Outcome = Failed
		return Report{Attempts: []Attempt{a}}
	}
	return Report{Method: "stdout", Attempts: []Attempt{a}}
}
