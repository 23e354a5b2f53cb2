package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Recording   RecordingConfig   `yaml:"recording"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Notify      NotifyConfig      `yaml:"notify"`
	Beep        bool              `yaml:"beep"`
	TUI         bool              `yaml:"tui"`
	LogDir      string            `yaml:"log_dir"`
}

type AudioConfig struct {
	Device     string `yaml:"device"` // empty for the system default
	SampleRate int    `yaml:"sample_rate"`
	FrameSize  int    `yaml:"frame_size"`
	QueueDepth int    `yaml:"queue_depth"`
}

type CalibrationConfig struct {
	Duration          time.Duration `yaml:"duration"`
	Percentile        float64       `yaml:"percentile"`
	Multiplier        float64       `yaml:"multiplier"`
	MinThreshold      int           `yaml:"min_threshold"`
	MaxThreshold      int           `yaml:"max_threshold"`
	FallbackThreshold int           `yaml:"fallback_threshold"`
}

type RecordingConfig struct {
	Threshold       int           `yaml:"threshold"` // 0 calibrates on every run
	SilenceDuration time.Duration `yaml:"silence_duration"`
	MaxDuration     time.Duration `yaml:"max_duration"`
	FlushInterval   int           `yaml:"flush_interval"`
	NoSpeechWarn    time.Duration `yaml:"no_speech_warn"`
	TempDir         string        `yaml:"temp_dir"`
	SkipSilent      bool          `yaml:"skip_silent"` // skip transcribing recordings that never crossed the threshold
}

type TranscriberConfig struct {
	Mode     string        `yaml:"mode"` // exec, groq, openai, fake
	Command  string        `yaml:"command"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	APIKey   string        `yaml:"-"`
	FakeText string        `yaml:"-"`
}

type DeliveryConfig struct {
	Display          string        `yaml:"display"` // auto, wayland, x11
	Clipboard        []string      `yaml:"clipboard"`
	Inject           []string      `yaml:"inject"`
	Print            bool          `yaml:"print"`
	PasteDelay       time.Duration `yaml:"paste_delay"`
	ClipboardTimeout time.Duration `yaml:"clipboard_timeout"`
	PasteTimeout     time.Duration `yaml:"paste_timeout"`
	TypeTimeout      time.Duration `yaml:"type_timeout"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
	IconDir string `yaml:"icon_dir"`
}

const (
	ModeExec   = "exec"
	ModeGroq   = "groq"
	ModeOpenAI = "openai"
	ModeFake   = "fake"
)

const DefaultWhisperCommand = "whisper-cli -m $HOME/.cache/whisper/ggml-{model}.bin -l {language} -nt -np -f {file}"

func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate: 44100,
			FrameSize:  1024,
			QueueDepth: 64,
		},
		Calibration: CalibrationConfig{
			Duration:          1500 * time.Millisecond,
			Percentile:        0.95,
			Multiplier:        5,
			MinThreshold:      300,
			MaxThreshold:      3000,
			FallbackThreshold: 500,
		},
		Recording: RecordingConfig{
			SilenceDuration: 5 * time.Second,
			MaxDuration:     600 * time.Second,
			FlushInterval:   100,
			NoSpeechWarn:    8 * time.Second,
		},
		Transcriber: TranscriberConfig{
			Mode:     ModeExec,
			Command:  DefaultWhisperCommand,
			Model:    "base",
			Language: "auto",
			Timeout:  2 * time.Minute,
		},
		Delivery: DeliveryConfig{
			Display:          "auto",
			Clipboard:        []string{"wl-copy", "xclip", "native"},
			Inject:           []string{"wtype-paste", "wtype", "xdotool", "ydotool", "keyboard"},
			PasteDelay:       50 * time.Millisecond,
			ClipboardTimeout: 5 * time.Second,
			PasteTimeout:     10 * time.Second,
			TypeTimeout:      30 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled: true,
			Title:   "Speech-to-Text",
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/dictate/config.yaml.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "dictate", "config.yaml")
}

// Load builds a Config from defaults, the YAML file at path and DICTATE_*
// environment overrides. An empty path reads DefaultPath when that file
// exists. The result is not validated; call Validate after applying flags.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		case os.IsNotExist(err):
			return cfg, fmt.Errorf("config file not found: %w", err)
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Audio.Device, "DICTATE_DEVICE")
	overrideInt(&cfg.Audio.SampleRate, "DICTATE_SAMPLE_RATE")
	overrideInt(&cfg.Recording.Threshold, "DICTATE_SILENCE_THRESHOLD")
	overrideDuration(&cfg.Recording.SilenceDuration, "DICTATE_SILENCE_DURATION")
	overrideDuration(&cfg.Recording.MaxDuration, "DICTATE_MAX_DURATION")
	overrideString(&cfg.Recording.TempDir, "DICTATE_TEMP_DIR")
	overrideBool(&cfg.Recording.SkipSilent, "DICTATE_SKIP_SILENT")
	overrideString(&cfg.Transcriber.Mode, "DICTATE_TRANSCRIBER")
	overrideString(&cfg.Transcriber.Command, "DICTATE_TRANSCRIBER_COMMAND")
	overrideString(&cfg.Transcriber.Model, "DICTATE_MODEL")
	overrideString(&cfg.Transcriber.Language, "DICTATE_LANGUAGE")
	overrideString(&cfg.Transcriber.Endpoint, "DICTATE_TRANSCRIBER_ENDPOINT")
	overrideString(&cfg.Transcriber.FakeText, "DICTATE_FAKE_TEXT")
	overrideString(&cfg.Delivery.Display, "DICTATE_DISPLAY")
	overrideStringSlice(&cfg.Delivery.Clipboard, "DICTATE_CLIPBOARD")
	overrideStringSlice(&cfg.Delivery.Inject, "DICTATE_INJECT")
	overrideBool(&cfg.Delivery.Print, "DICTATE_PRINT")
	overrideBool(&cfg.Notify.Enabled, "DICTATE_NOTIFY")
	overrideBool(&cfg.Beep, "DICTATE_BEEP")
	ResolveAPIKey(cfg)
}

// ResolveAPIKey picks the key for the configured transcriber mode. A generic
// DICTATE_API_KEY wins over the provider variable.
func ResolveAPIKey(cfg *Config) {
	switch cfg.Transcriber.Mode {
	case ModeGroq:
		overrideString(&cfg.Transcriber.APIKey, "GROQ_API_KEY")
	case ModeOpenAI:
		overrideString(&cfg.Transcriber.APIKey, "OPENAI_API_KEY")
	}
	overrideString(&cfg.Transcriber.APIKey, "DICTATE_API_KEY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

// overrideDuration accepts Go durations ("750ms") or plain seconds ("5").
func overrideDuration(target *time.Duration, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*target = d
		return
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		*target = time.Duration(secs * float64(time.Second))
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func Validate(cfg Config) error {
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.FrameSize <= 0 {
		return errors.New("audio.frame_size must be positive")
	}
	if cfg.Audio.QueueDepth <= 0 {
		return errors.New("audio.queue_depth must be positive")
	}

	c := cfg.Calibration
	if c.Duration <= 0 {
		return errors.New("calibration.duration must be positive")
	}
	if c.Percentile <= 0 || c.Percentile > 1 {
		return errors.New("calibration.percentile must be in (0, 1]")
	}
	if c.Multiplier <= 0 {
		return errors.New("calibration.multiplier must be positive")
	}
	if c.MinThreshold <= 0 || c.MinThreshold > c.MaxThreshold {
		return errors.New("calibration thresholds must satisfy 0 < min_threshold <= max_threshold")
	}
	if c.FallbackThreshold <= 0 {
		return errors.New("calibration.fallback_threshold must be positive")
	}

	r := cfg.Recording
	if r.Threshold < 0 {
		return errors.New("recording.threshold must not be negative (0 means auto)")
	}
	if r.SilenceDuration <= 0 {
		return errors.New("recording.silence_duration must be positive")
	}
	if r.MaxDuration <= 0 {
		return errors.New("recording.max_duration must be positive")
	}
	if r.FlushInterval <= 0 {
		return errors.New("recording.flush_interval must be positive")
	}
	if r.NoSpeechWarn < 0 {
		return errors.New("recording.no_speech_warn must not be negative")
	}

	t := cfg.Transcriber
	switch t.Mode {
	case ModeExec:
		if strings.TrimSpace(t.Command) == "" {
			return errors.New("transcriber.command must be set when mode is exec")
		}
	case ModeGroq, ModeOpenAI:
		if t.APIKey == "" {
			return fmt.Errorf("transcriber mode %s needs an API key (set %s or DICTATE_API_KEY)", t.Mode, apiKeyVar(t.Mode))
		}
	case ModeFake:
	default:
		return fmt.Errorf("unknown transcriber.mode %q (want exec, groq, openai or fake)", t.Mode)
	}
	if t.Timeout <= 0 {
		return errors.New("transcriber.timeout must be positive")
	}

	d := cfg.Delivery
	switch d.Display {
	case "auto", "wayland", "x11":
	default:
		return fmt.Errorf("unknown delivery.display %q (want auto, wayland or x11)", d.Display)
	}
	if d.PasteDelay < 0 {
		return errors.New("delivery.paste_delay must not be negative")
	}
	if d.ClipboardTimeout <= 0 || d.PasteTimeout <= 0 || d.TypeTimeout <= 0 {
		return errors.New("delivery timeouts must be positive")
	}
	return nil
}

func apiKeyVar(mode string) string {
	if mode == ModeGroq {
		return "GROQ_API_KEY"
	}
	return "OPENAI_API_KEY"
}
