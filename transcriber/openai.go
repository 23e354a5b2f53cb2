package transcriber

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"dictate/config"
)

// OpenAI sends the WAV file to the OpenAI transcription API through the
// go-openai SDK, on a TracedClient so it reports the same timings as Groq.
type OpenAI struct {
	client *openai.Client
	http   *TracedClient
	model  string
	lang   string
}

func NewOpenAI(cfg config.TranscriberConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = cfg.Endpoint
	}
	traced := NewTracedClient(strings.TrimSuffix(oc.BaseURL, "/")+"/models", cfg.Timeout)
	oc.HTTPClient = traced.HTTPClient()
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		http:   traced,
		model:  cloudModel(cfg.Model, openai.Whisper1),
		lang:   apiLanguage(cfg.Language),
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Warm() { o.http.Warm() }

func (o *OpenAI) Transcribe(ctx context.Context, wavPath string) (*Result, error) {
	start := time.Now()
	info, err := os.Stat(wavPath)
	if err != nil {
		return nil, err
	}
	metrics := &NetworkMetrics{}
	resp, err := o.client.CreateTranscription(WithMetrics(ctx, metrics), openai.AudioRequest{
		Model:    o.model,
		FilePath: wavPath,
		Language: o.lang,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}
	metrics.Total = time.Since(start)
	return &Result{
		Text:     resp.Text,
		Metrics:  metrics,
		RawBytes: int(info.Size()),
		Total:    metrics.Total,
	}, nil
}
