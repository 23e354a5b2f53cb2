// Package transcriber turns a finished recording into text.
package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dictate/config"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// Result is the transcript plus whatever timing the engine could report.
// Metrics is nil for engines that do not go over HTTP.
type Result struct {
	Text            string
	Metrics         *NetworkMetrics
	RateLimit       string
	AudioLength     time.Duration
	RawBytes        int
	CompressedBytes int
	EncodeTime      time.Duration
	Total           time.Duration
}

type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, wavPath string) (*Result, error)
}

// Warmer is implemented by engines that benefit from opening their
// connection while the user is still talking.
type Warmer interface {
	Warm()
}

func New(cfg config.TranscriberConfig) (Transcriber, error) {
	switch cfg.Mode {
	case config.ModeExec, "":
		return NewExec(cfg)
	case config.ModeGroq:
		return NewGroq(cfg), nil
	case config.ModeOpenAI:
		return NewOpenAI(cfg), nil
	case config.ModeFake:
		return NewFake(cfg.FakeText, nil), nil
	}
	return nil, fmt.Errorf("unknown transcriber mode %q", cfg.Mode)
}
