package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"dictate/audio"
	"dictate/beep"
	"dictate/config"
	"dictate/console"
	"dictate/delivery"
	"dictate/doctor"
	"dictate/keyboard"
	"dictate/log"
	"dictate/notify"
	"dictate/recorder"
	"dictate/shutdown"
	"dictate/transcriber"
)

var version = "dev"

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type options struct {
	configPath       string
	silenceDuration  int
	silenceThreshold int
	maxDuration      int
	beep             bool
	logPath          string
	device           string
	listDevices      bool
	setup            bool
	replay           string
	realtime         bool
	tui              bool
	print            bool
	doctor           bool
	transcriber      string
	version          bool

	set map[string]bool // flags given on the command line
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: map[string]bool{}}
	flags := flag.NewFlagSet("dictate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&o.configPath, "config", "", "YAML config file (default: $XDG_CONFIG_HOME/dictate/config.yaml if present)")
	flags.IntVar(&o.silenceDuration, "silence_duration", 5, "Seconds of silence after speech that end the recording")
	flags.IntVar(&o.silenceThreshold, "silence_threshold", 0, "RMS level that counts as speech (0 = auto-calibrate)")
	flags.IntVar(&o.maxDuration, "max_duration", 600, "Maximum recording duration in seconds")
	flags.BoolVar(&o.beep, "beep", false, "Play a beep when recording starts and ends")
	flags.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flags.StringVar(&o.device, "device", "", "Use named microphone device")
	flags.BoolVar(&o.listDevices, "devices", false, "List capture devices and exit")
	flags.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	flags.StringVar(&o.replay, "replay", "", "Run the pipeline on a mono 16-bit WAV file instead of the microphone")
	flags.BoolVar(&o.realtime, "realtime", false, "Pace -replay in real time")
	flags.BoolVar(&o.tui, "tui", false, "Show a live recording status screen (Enter stops, Ctrl+C aborts)")
	flags.BoolVar(&o.print, "print", false, "Write the transcript to stdout instead of typing it")
	flags.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	flags.StringVar(&o.transcriber, "transcriber", "", "Transcriber mode: exec, groq, openai or fake")
	flags.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", flags.Args())
		return nil, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	flags.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply layers explicitly given flags over the loaded configuration.
func (o *options) apply(cfg *config.Config) {
	if o.set["silence_duration"] {
		cfg.Recording.SilenceDuration = time.Duration(o.silenceDuration) * time.Second
	}
	if o.set["silence_threshold"] {
		cfg.Recording.Threshold = o.silenceThreshold
	}
	if o.set["max_duration"] {
		cfg.Recording.MaxDuration = time.Duration(o.maxDuration) * time.Second
	}
	if o.set["beep"] {
		cfg.Beep = o.beep
	}
	if o.set["device"] {
		cfg.Audio.Device = o.device
	}
	if o.set["tui"] {
		cfg.TUI = o.tui
	}
	if o.set["print"] {
		cfg.Delivery.Print = o.print
	}
	if o.set["logpath"] {
		cfg.LogDir = o.logPath
	}
	if o.set["transcriber"] {
		cfg.Transcriber.Mode = o.transcriber
		config.ResolveAPIKey(cfg)
	}
}

func run(args []string) int {
	out := console.Stderr()

	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if opts.version {
		fmt.Printf("dictate %s\n", version)
		return exitOK
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		out.Warnf("Warning: could not read .env: %v", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		out.Errorf("Error: %v", err)
		return exitError
	}
	opts.apply(&cfg)

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.LogDir)
	if err != nil {
		out.Errorf("Error: failed to resolve log directory: %v", err)
		return exitError
	}
	log.SetDir(logPath)
	initCrashLog()
	if err := log.Init(); err != nil {
		out.Warnf("Warning: could not init logging: %v", err)
	}
	defer log.Close()

	if opts.listDevices {
		return listDevices(out)
	}

	format := audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   1,
		FrameSize:  cfg.Audio.FrameSize,
	}

	ctx, stopSignals := shutdown.Context(context.Background())
	defer stopSignals()

	if opts.doctor {
		return runDoctor(ctx, cfg, format)
	}

	if err := config.Validate(cfg); err != nil {
		out.Errorf("Error: %v", err)
		return exitError
	}

	if wantHints(cfg) {
		printHints(out, cfg)
	}

	display, err := delivery.ParseDisplay(cfg.Delivery.Display, os.Getenv)
	if err != nil {
		out.Errorf("Error: %v", err)
		return exitError
	}

	var (
		source audio.Source
		clock  recorder.Clock
	)
	if opts.replay != "" {
		source, clock, err = replaySource(opts.replay, opts.realtime, &format)
		if err != nil {
			out.Errorf("Error: %v", err)
			return exitError
		}
	} else {
		actx, err := audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			out.Errorf("Error initializing audio: %v", err)
			return exitError
		}
		defer actx.Close()
		dev, err := pickDevice(actx, cfg.Audio.Device, opts.setup)
		if err != nil {
			out.Errorf("Error: %v", err)
			return exitError
		}
		if dev != nil && audio.IsBluetooth(dev.Name) {
			out.Warnf("Warning: %s looks like a Bluetooth headset; its microphone may degrade playback quality", dev.Name)
		}
		source = &audio.Mic{Ctx: actx, Device: dev, Config: format, Depth: cfg.Audio.QueueDepth}
	}

	tr, err := transcriber.New(cfg.Transcriber)
	if err != nil {
		out.Errorf("Error: %v", err)
		return exitError
	}

	deliverer, closeDeliverer, err := newDeliverer(cfg, display, out)
	if err != nil {
		out.Errorf("Error: %v", err)
		return exitError
	}
	defer closeDeliverer()

	backend := audio.Backend
	if opts.replay != "" {
		backend = "replay"
	}
	log.SessionStart(tr.Name(), backend, display.String(), cfg.Recording.Threshold)

	var stopOnce sync.Once
	stop := make(chan struct{})
	stopRecording := func() { stopOnce.Do(func() { close(stop) }) }

	ctx, abort := context.WithCancel(ctx)
	defer abort()

	var sink EventSink = consoleSink{out: out}
	var screen *tuiSink
	if cfg.TUI {
		screen = startTUI(stopRecording, abort)
		sink = screen
	}

	beeper := beep.New(cfg.Beep)
	o := &Orchestrator{
		Config:      cfg,
		Source:      source,
		Format:      format,
		Calibration: calibrationFromConfig(cfg.Calibration),
		Clock:       clock,
		Transcriber: tr,
		Deliverer:   deliverer,
		Notifier:    notify.New(cfg.Notify),
		Beeper:      beeper,
		Sink:        sink,
	}

	start := time.Now()
	sum, err := o.Run(ctx, stop)
	if screen != nil {
		screen.Close()
	}
	if sum.Calibrated && screen != nil {
		out.Infof("Auto-calibrated silence threshold: %d", sum.Threshold)
	}
	defer beeper.Wait()

	if err != nil {
		if ctx.Err() != nil {
			log.SessionEnd("interrupted", time.Since(start))
			out.Warnf("Interrupted")
			return exitInterrupted
		}
		log.Errorf("session failed: %v", err)
		log.SessionEnd("error", time.Since(start))
		out.Errorf("Error: %v", err)
		return exitError
	}

	switch {
	case !sum.Transcribed:
		out.Warnf("No speech detected")
	case sum.Delivery.Skipped:
		out.Warnf("Transcription was empty")
	}
	log.SessionEnd("ok", time.Since(start))
	return exitOK
}

func initCrashLog() {
	if err := log.EnsureDir(); err != nil {
		return
	}
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// wantHints reports whether the silence duration is still the stock five
// seconds, however it was set.
func wantHints(cfg config.Config) bool {
	return cfg.Recording.SilenceDuration == 5*time.Second
}

func printHints(out *console.Console, cfg config.Config) {
	out.Warnf("No silence duration argument provided, using default value of %d seconds.", int(cfg.Recording.SilenceDuration.Seconds()))
	limit := int(cfg.Recording.MaxDuration.Seconds())
	out.Infof("Maximum recording duration: %d seconds (%d minutes)", limit, limit/60)
	out.Successf("Example usage: dictate -silence_duration 1 -max_duration 1200 -beep")
}

func listDevices(out *console.Console) int {
	actx, err := audio.NewContext()
	if err != nil {
		out.Errorf("Error initializing audio: %v", err)
		return exitError
	}
	defer actx.Close()
	devices, err := actx.Devices()
	if err != nil {
		out.Errorf("Error listing devices: %v", err)
		return exitError
	}
	for _, d := range devices {
		suffix := ""
		if audio.IsBluetooth(d.Name) {
			suffix = " (BT)"
		}
		fmt.Println(d.Name + suffix)
	}
	return exitOK
}

func pickDevice(actx audio.Context, name string, interactive bool) (*audio.DeviceInfo, error) {
	if interactive {
		dev, err := audio.SelectDevice(actx)
		if errors.Is(err, audio.ErrSelectionCanceled) {
			return nil, err
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			return nil, nil
		}
		return dev, nil
	}
	if name == "" {
		return nil, nil
	}
	return audio.FindDevice(actx, name)
}

func newDeliverer(cfg config.Config, display delivery.Display, out *console.Console) (Deliverer, func(), error) {
	if cfg.Delivery.Print {
		return delivery.Printer{W: os.Stdout}, func() {}, nil
	}

	kb := keyboard.New()
	tools := delivery.Tools{
		Runner:           delivery.ExecRunner{},
		Clipboard:        delivery.NativeClipboard{},
		Keyboard:         kb,
		PasteDelay:       cfg.Delivery.PasteDelay,
		ClipboardTimeout: cfg.Delivery.ClipboardTimeout,
		PasteTimeout:     cfg.Delivery.PasteTimeout,
		TypeTimeout:      cfg.Delivery.TypeTimeout,
	}
	copiers, err := tools.ClipboardSteps(cfg.Delivery.Clipboard)
	if err != nil {
		return nil, nil, err
	}
	injectors, err := tools.InjectSteps(cfg.Delivery.Inject)
	if err != nil {
		return nil, nil, err
	}
	advisor := delivery.AdvisorFunc(func(a delivery.Advice) {
		switch a {
		case delivery.AdviceManualPaste:
			out.Warnf("%s", a.Message())
		case delivery.AdviceInstallTool:
			out.Errorf("%s", a.Message())
		}
	})
	closeKeyboard := func() { kb.Close() }
	return delivery.New(display, copiers, injectors, advisor), closeKeyboard, nil
}

func runDoctor(ctx context.Context, cfg config.Config, format audio.CaptureConfig) int {
	kb := keyboard.New()
	defer kb.Close()
	env := doctor.Env{
		Config:      cfg,
		Runner:      delivery.ExecRunner{},
		Keyboard:    kb,
		Format:      format,
		Calibration: calibrationFromConfig(cfg.Calibration),
	}
	if actx, err := audio.NewContext(); err == nil {
		defer actx.Close()
		dev, err := pickDevice(actx, cfg.Audio.Device, false)
		if err == nil {
			env.Source = &audio.Mic{Ctx: actx, Device: dev, Config: format, Depth: cfg.Audio.QueueDepth}
		}
	}
	checks := doctor.Checks(env)
	if env.Source == nil {
		checks = append(checks, doctor.Check{
			Name: "Microphone",
			Run: func(context.Context) (doctor.Status, string) {
				return doctor.Fail, "no audio backend available"
			},
		})
	}
	return doctor.Run(ctx, os.Stdout, checks)
}
