package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"dictate/config"
	"dictate/encoder"
)

const (
	groqURL   = "https://api.groq.com/openai/v1/audio/transcriptions"
	groqModel = "whisper-large-v3-turbo"
)

// Groq uploads FLAC-compressed audio to Groq's Whisper endpoint.
type Groq struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	lang   string
}

func NewGroq(cfg config.TranscriberConfig) *Groq {
	apiURL := groqURL
	if cfg.Endpoint != "" {
		apiURL = cfg.Endpoint
	}
	return &Groq{
		client: NewTracedClient(apiURL, cfg.Timeout),
		apiURL: apiURL,
		apiKey: cfg.APIKey,
		model:  cloudModel(cfg.Model, groqModel),
		lang:   apiLanguage(cfg.Language),
	}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) Warm() { g.client.Warm() }

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

func (g *Groq) Transcribe(ctx context.Context, wavPath string) (*Result, error) {
	start := time.Now()
	enc, err := encoder.FLACFromWAV(wavPath)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+enc.Format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(enc.Data); err != nil {
		return nil, err
	}

	writer.WriteField("model", g.model)
	writer.WriteField("response_format", "verbose_json")
	if g.lang != "" {
		writer.WriteField("language", g.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, &body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq API error %d: %s", resp.StatusCode, string(resp.Body))
	}

	var gResp groqResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, fmt.Errorf("groq response parse error: %w", err)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:            gResp.Text,
		Metrics:         resp.Metrics,
		RateLimit:       remaining + "/" + limit,
		AudioLength:     enc.AudioLength(),
		RawBytes:        enc.RawBytes,
		CompressedBytes: len(enc.Data),
		EncodeTime:      enc.EncodeTime,
		Total:           time.Since(start),
	}, nil
}

// apiLanguage maps the "auto" setting to an omitted language field.
func apiLanguage(lang string) string {
	if lang == "auto" {
		return ""
	}
	return lang
}

// cloudModel keeps the API's own default when the configured model is
// still the local whisper default.
func cloudModel(model, fallback string) string {
	if model == "" || model == config.Default().Transcriber.Model {
		return fallback
	}
	return model
}
