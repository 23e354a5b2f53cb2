package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	sessionID string
	dir       string
)

// Metrics describes one transcription request. Network timings are zero for
// local engines.
type Metrics struct {
	Engine           string
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	EncodeTimeMs     float64
	DNSTimeMs        float64
	TLSTimeMs        float64
	TTFBMs           float64
	TotalTimeMs      float64
	ConnReused       bool
	TextChars        int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: DICTATE_LOG_PATH environment variable
	if envPath := os.Getenv("DICTATE_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// SessionID identifies this run in the diagnostics log. Empty before Init.
func SessionID() string {
	return sessionID
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()
	sessionID = uuid.NewString()

	var err error
	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().
		Timestamp().
		Int("pid", pid).
		Str("session", sessionID[:8]).
		Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

// event starts a diagnostics entry, or returns nil before Init. zerolog
// treats a nil *Event as disabled, so callers chain on it unconditionally.
func event(level zerolog.Level) *zerolog.Event {
	if !logReady {
		return nil
	}
	return diagLog.WithLevel(level)
}

func Info(msg string)                   { event(zerolog.InfoLevel).Msg(msg) }
func Infof(format string, args ...any)  { event(zerolog.InfoLevel).Msgf(format, args...) }
func Warn(msg string)                   { event(zerolog.WarnLevel).Msg(msg) }
func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Error(msg string)                  { event(zerolog.ErrorLevel).Msg(msg) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

func SessionStart(engine, backend, display string, threshold int) {
	event(zerolog.InfoLevel).
		Str("engine", engine).
		Str("audio", backend).
		Str("display", display).
		Int("threshold", threshold).
		Msg("session_start")
}

func Calibrated(threshold, noiseFloor, samples, skipped int) {
	event(zerolog.InfoLevel).
		Int("threshold", threshold).
		Int("noise_floor", noiseFloor).
		Int("samples", samples).
		Int("skipped", skipped).
		Msg("calibrated")
}

func RecordingDone(reason string, frames, dropped int, d time.Duration, speech bool) {
	event(zerolog.InfoLevel).
		Str("reason", reason).
		Int("frames", frames).
		Int("dropped", dropped).
		Float64("duration_s", d.Seconds()).
		Bool("speech", speech).
		Msg("recording_done")
}

// Transcribed records request metrics. The transcript itself is never written.
func Transcribed(m Metrics) {
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	event(zerolog.InfoLevel).
		Str("engine", m.Engine).
		Str("conn", conn).
		Float64("audio_s", m.AudioLengthS).
		Float64("raw_kb", m.RawSizeKB).
		Float64("compressed_kb", m.CompressedSizeKB).
		Float64("encode_ms", m.EncodeTimeMs).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Int("chars", m.TextChars).
		Msg("transcription")
}

func DeliveryAttempt(mechanism, outcome string, elapsed time.Duration, err error) {
	level := zerolog.InfoLevel
	if err != nil {
		level = zerolog.WarnLevel
	}
	event(level).
		Err(err).
		Str("mechanism", mechanism).
		Str("outcome", outcome).
		Float64("elapsed_ms", float64(elapsed.Microseconds())/1000).
		Msg("delivery_attempt")
}

func DeliveryDone(copied bool, method, advice string) {
	event(zerolog.InfoLevel).
		Bool("copied", copied).
		Str("method", method).
		Str("advice", advice).
		Msg("delivery")
}

func SessionEnd(outcome string, total time.Duration) {
	event(zerolog.InfoLevel).
		Str("outcome", outcome).
		Float64("total_s", total.Seconds()).
		Msg("session_end")
}
