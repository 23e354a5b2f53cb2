package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dictate/config"
)

func writeWAV(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	data := make([]int, n)
	for i := range data {
		data[i] = (i % 400) - 200
	}
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestNewSelectsMode(t *testing.T) {
	for _, tt := range []struct {
		mode string
		want string
	}{
		{config.ModeExec, "exec:whisper-cli"},
		{config.ModeGroq, "groq"},
		{config.ModeOpenAI, "openai"},
		{config.ModeFake, "fake"},
	} {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := config.Default().Transcriber
			cfg.Mode = tt.mode
			tr, err := New(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Name())
		})
	}

	_, err := New(config.TranscriberConfig{Mode: "deepspeech"})
	assert.Error(t, err)
}

func TestExecArgs(t *testing.T) {
	e, err := NewExec(config.TranscriberConfig{
		Command:  "whisper -m models/{model}.bin -l {language} -f {file}",
		Model:    "small",
		Language: "en",
	})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"whisper", "-m", "models/small.bin", "-l", "en", "-f", "/tmp/a.wav"},
		e.Args("/tmp/a.wav"))

	e, err = NewExec(config.TranscriberConfig{Command: "stt --json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stt", "--json", "/tmp/a.wav"}, e.Args("/tmp/a.wav"))
}

func TestExecRejectsEmptyCommand(t *testing.T) {
	_, err := NewExec(config.TranscriberConfig{Command: "   "})
	assert.Error(t, err)
}

func TestParseExecOutput(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"", ""},
		{"  hello world \n", "hello world"},
		{" first line\n second line\n", "first line second line"},
		{`{"text": " from json "}`, "from json"},
		{"{not json", "{not json"},
	} {
		assert.Equal(t, tt.want, parseExecOutput([]byte(tt.in)), "input %q", tt.in)
	}
}

func TestExecTranscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"text":" hi there "}`), 0o600))

	e, err := NewExec(config.TranscriberConfig{Command: "cat {file}", Timeout: 5 * time.Second})
	require.NoError(t, err)
	res, err := e.Transcribe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Nil(t, res.Metrics)
}

func TestExecTranscribeFailure(t *testing.T) {
	e, err := NewExec(config.TranscriberConfig{Command: "sh -c 'echo boom >&2; exit 3'"})
	require.NoError(t, err)
	_, err = e.Transcribe(context.Background(), "/tmp/none.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestExecTranscribeTimeout(t *testing.T) {
	e, err := NewExec(config.TranscriberConfig{Command: "sh -c 'sleep 5'", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	start := time.Now()
	_, err = e.Transcribe(context.Background(), "/tmp/none.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestGroqTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3-turbo", r.FormValue("model"))
		assert.Equal(t, "de", r.FormValue("language"))
		_, fh, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "audio.flac", fh.Filename)

		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		json.NewEncoder(w).Encode(map[string]any{"text": " Hallo Welt", "duration": 0.1})
	}))
	defer srv.Close()

	cfg := config.Default().Transcriber
	cfg.Mode = config.ModeGroq
	cfg.APIKey = "secret"
	cfg.Endpoint = srv.URL
	cfg.Language = "de"
	g := NewGroq(cfg)

	res, err := g.Transcribe(context.Background(), writeWAV(t, 4410))
	require.NoError(t, err)
	assert.Equal(t, " Hallo Welt", res.Text)
	assert.Equal(t, "9/10", res.RateLimit)
	assert.Equal(t, 100*time.Millisecond, res.AudioLength)
	assert.Equal(t, 8820, res.RawBytes)
	assert.NotZero(t, res.CompressedBytes)
	require.NotNil(t, res.Metrics)
}

func TestGroqOmitsAutoLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, ok := r.MultipartForm.Value["language"]
		assert.False(t, ok)
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	cfg := config.Default().Transcriber
	cfg.Endpoint = srv.URL
	_, err := NewGroq(cfg).Transcribe(context.Background(), writeWAV(t, 100))
	require.NoError(t, err)
}

func TestGroqAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.Default().Transcriber
	cfg.Endpoint = srv.URL
	_, err := NewGroq(cfg).Transcribe(context.Background(), writeWAV(t, 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello from openai"}`))
	}))
	defer srv.Close()

	cfg := config.Default().Transcriber
	cfg.APIKey = "sk-test"
	cfg.Endpoint = srv.URL + "/v1"
	res, err := NewOpenAI(cfg).Transcribe(context.Background(), writeWAV(t, 100))
	require.NoError(t, err)
	assert.Equal(t, "hello from openai", res.Text)
	require.NotNil(t, res.Metrics)
	assert.Positive(t, res.Metrics.Total)
}

func TestTracedClientReusesConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c := NewTracedClient(srv.URL, 5*time.Second)
	c.Warm()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(resp.Body))
	assert.True(t, resp.Metrics.ConnReused, "Warm should leave an idle connection behind")
}

func TestTracedClientWithoutMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := NewTracedClient("", time.Second).HTTPClient().Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestFakeTranscriber(t *testing.T) {
	path := writeWAV(t, 10)
	f := NewFake("canned", nil)
	res, err := f.Transcribe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "canned", res.Text)
	assert.Equal(t, []string{path}, f.Calls())

	_, err = f.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = NewFake("", boom).Transcribe(context.Background(), path)
	assert.ErrorIs(t, err, boom)
}
