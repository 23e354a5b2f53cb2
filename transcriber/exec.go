package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"dictate/config"
)

// Exec runs a local speech-to-text command such as whisper-cli. The
// command template may use {file}, {model} and {language}; the recording
// path is appended when {file} does not appear.
type Exec struct {
	args    []string
	model   string
	lang    string
	timeout time.Duration
}

type execOutput struct {
	Text string `json:"text"`
}

func NewExec(cfg config.TranscriberConfig) (*Exec, error) {
	command := cfg.Command
	if command == "" {
		command = config.DefaultWhisperCommand
	}
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcriber command is empty")
	}
	return &Exec{args: args, model: cfg.Model, lang: cfg.Language, timeout: cfg.Timeout}, nil
}

func (e *Exec) Name() string { return "exec:" + e.args[0] }

// Args expands the command template for one recording.
func (e *Exec) Args(wavPath string) []string {
	r := strings.NewReplacer("{file}", wavPath, "{model}", e.model, "{language}", e.lang)
	out := make([]string, 0, len(e.args)+1)
	hasFile := false
	for _, a := range e.args {
		if strings.Contains(a, "{file}") {
			hasFile = true
		}
		out = append(out, r.Replace(a))
	}
	if !hasFile {
		out = append(out, wavPath)
	}
	return out
}

func (e *Exec) Transcribe(ctx context.Context, wavPath string) (*Result, error) {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := e.Args(wavPath)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s", args[0], e.timeout)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return &Result{
		Text:  parseExecOutput(stdout.Bytes()),
		Total: time.Since(start),
	}, nil
}

// parseExecOutput accepts either {"text": ...} or plain text, one
// segment per line.
func parseExecOutput(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var o execOutput
		if err := json.Unmarshal(trimmed, &o); err == nil {
			return strings.TrimSpace(o.Text)
		}
	}
	return strings.Join(strings.Fields(string(trimmed)), " ")
}
