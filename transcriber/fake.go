package transcriber

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// FakeTranscriber returns canned text. It still checks that the
// recording exists so tests catch a missing file.
type FakeTranscriber struct {
	text string
	err  error

	mu    sync.Mutex
	paths []string
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) Transcribe(ctx context.Context, wavPath string) (*Result, error) {
	f.mu.Lock()
	f.paths = append(f.paths, wavPath)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, fmt.Errorf("fake transcriber error: %w", f.err)
	}
	if _, err := os.Stat(wavPath); err != nil {
		return nil, err
	}
	return &Result{Text: f.text}, nil
}

// Calls lists the paths passed to Transcribe.
func (f *FakeTranscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}
