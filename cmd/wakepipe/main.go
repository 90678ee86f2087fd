// Command wakepipe listens to a microphone, waits for a wake phrase and turns
// the following utterance into typed text or a bound command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/wakepipe/internal/app"
	"github.com/MrWong99/wakepipe/internal/config"
	"github.com/MrWong99/wakepipe/internal/observe"
	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/audio/pcm"
	"github.com/MrWong99/wakepipe/pkg/audio/wavfile"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
	"github.com/MrWong99/wakepipe/pkg/provider/stt/openai"
	"github.com/MrWong99/wakepipe/pkg/provider/stt/whisper"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
	"github.com/MrWong99/wakepipe/pkg/provider/vad/energy"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword/phonetic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	dryRun := flag.Bool("dry-run", false, "log injected text and commands instead of performing them")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("wakepipe", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	var loadOpts []config.LoadOption
	if *dryRun {
		loadOpts = append(loadOpts, config.ForceDryRun)
	}
	cfg, err := config.Load(*configPath, loadOpts...)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wakepipe: config file %q not found; copy configs/example.yaml there to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wakepipe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("wakepipe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"dry_run", cfg.Actions.DryRun,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(context.Background(), observe.Options{Version: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Audio.FrameMs)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithMetrics(tel.Metrics),
		app.WithMetricsHandler(tel.Handler),
		app.WithLogLevel(level),
		app.WithConfigFile(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		closeProviders(providers)
		return 1
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			switch err := application.Reload(); {
			case err == nil:
			case errors.Is(err, config.ErrUnchanged):
				slog.Info("SIGHUP: configuration unchanged")
			default:
				slog.Warn("SIGHUP: reload rejected", "err", err)
			}
		}
	}()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for range usr1 {
			if !application.Trigger("") {
				slog.Info("SIGUSR1: trigger ignored", "state", application.Pipeline().State().String())
			}
		}
	}()

	slog.Info("ready; press Ctrl+C to stop, send SIGHUP to reload, SIGUSR1 to listen without a wake phrase")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if audio.IsDeviceError(err) {
			slog.Error("audio device failed", "err", err)
		} else {
			slog.Error("run error", "err", err)
		}
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// frameMs is the audio frame cadence used to convert millisecond options into
// frame counts.
func registerBuiltinProviders(reg *config.Registry, frameMs int) {
	// ── Audio ─────────────────────────────────────────────────────────────────
	streamOpts := func(a config.AudioConfig) []pcm.Option {
		return []pcm.Option{
			pcm.WithSampleRate(config.PipelineSampleRate),
			pcm.WithFrameDuration(time.Duration(a.FrameMs) * time.Millisecond),
			pcm.WithRingSize(a.RingSize),
			pcm.WithRealtime(a.Realtime),
		}
	}
	rawOpts := func(a config.AudioConfig) []pcm.Option {
		format := audio.Format{SampleRate: a.SampleRate, Channels: a.Channels}
		return append([]pcm.Option{pcm.WithFormat(format)}, streamOpts(a)...)
	}

	reg.RegisterAudio("pcm", func(a config.AudioConfig) (audio.Source, error) {
		if a.Device == "-" {
			return pcm.Stdin(rawOpts(a)...), nil
		}
		return pcm.Open(a.Device, rawOpts(a)...), nil
	})
	reg.RegisterAudio("command", func(a config.AudioConfig) (audio.Source, error) {
		return pcm.Command(a.Command, rawOpts(a)...), nil
	})
	reg.RegisterAudio("wav", func(a config.AudioConfig) (audio.Source, error) {
		return wavfile.Open(a.Device, streamOpts(a)...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	// Thresholds travel with each session's vad.Config.
	reg.RegisterVAD("energy", func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Wake-word classifiers ─────────────────────────────────────────────────
	reg.RegisterClassifier("phonetic", func(w config.WakeConfig, engine stt.Engine) (wakeword.Classifier, error) {
		if engine == nil {
			return nil, errors.New("phonetic classifier requires a transcription engine")
		}
		o := w.Classifier.Options
		var opts []phonetic.Option
		if ms := optInt(o, "window_ms"); ms > 0 {
			opts = append(opts, phonetic.WithWindowFrames(ms/frameMs))
		}
		if ms := optInt(o, "hop_ms"); ms > 0 {
			opts = append(opts, phonetic.WithHopFrames(ms/frameMs))
		}
		if lvl, ok := optFloat(o, "min_level"); ok {
			opts = append(opts, phonetic.WithMinLevel(lvl))
		}
		if ms := optInt(o, "timeout_ms"); ms > 0 {
			opts = append(opts, phonetic.WithTimeout(time.Duration(ms)*time.Millisecond))
		}
		if lang := optString(o, "language"); lang != "" {
			opts = append(opts, phonetic.WithLanguage(lang))
		}
		return phonetic.New(engine, w.Phrases, opts...), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(t config.TranscriptionConfig) (stt.Engine, error) {
		var opts []whisper.Option
		if t.ModelID != "" {
			opts = append(opts, whisper.WithModel(t.ModelID))
		}
		if t.Language != "" {
			opts = append(opts, whisper.WithLanguage(t.Language))
		}
		if t.TimeoutMs > 0 {
			opts = append(opts, whisper.WithTimeout(time.Duration(t.TimeoutMs)*time.Millisecond))
		}
		for _, k := range sortedKeys(t.Headers) {
			opts = append(opts, whisper.WithHeader(k, t.Headers[k]))
		}
		for _, k := range sortedKeys(t.Body) {
			opts = append(opts, whisper.WithBodyField(k, t.Body[k]))
		}
		return whisper.New(t.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(t config.TranscriptionConfig) (stt.Engine, error) {
		var opts []whisper.NativeOption
		if t.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(t.Language))
		}
		if n := optInt(t.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(t.ModelID, opts...)
	})

	reg.RegisterSTT("openai", func(t config.TranscriptionConfig) (stt.Engine, error) {
		apiKey := t.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []openai.Option
		if t.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(t.BaseURL))
		}
		if t.Language != "" {
			opts = append(opts, openai.WithLanguage(t.Language))
		}
		if t.TimeoutMs > 0 {
			opts = append(opts, openai.WithTimeout(time.Duration(t.TimeoutMs)*time.Millisecond))
		}
		for _, k := range sortedKeys(t.Headers) {
			opts = append(opts, openai.WithHeader(k, t.Headers[k]))
		}
		return openai.New(apiKey, t.ModelID, opts...)
	})

	for _, kind := range []string{"audio", "vad", "classifier", "transcription"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
// On failure, providers created so far are closed.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fail := func(err error) (*app.Providers, error) {
		closeProviders(ps)
		return nil, err
	}

	engine, err := reg.CreateSTT(cfg.Transcription)
	if err != nil {
		return fail(fmt.Errorf("create transcription backend %q: %w", cfg.Transcription.Backend, err))
	}
	ps.STT = engine
	slog.Info("provider created", "kind", "transcription", "name", engine.Name())

	classifier, err := reg.CreateClassifier(cfg.Wake, engine)
	if err != nil {
		return fail(fmt.Errorf("create wake classifier %q: %w", cfg.Wake.Classifier.Name, err))
	}
	ps.Classifier = classifier
	slog.Info("provider created", "kind", "classifier", "name", cfg.Wake.Classifier.Name)

	v, err := reg.CreateVAD(cfg.Capture.VAD)
	if err != nil {
		return fail(fmt.Errorf("create vad %q: %w", cfg.Capture.VAD.Name, err))
	}
	ps.VAD = v
	slog.Info("provider created", "kind", "vad", "name", cfg.Capture.VAD.Name)

	src, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return fail(fmt.Errorf("create audio source %q: %w", cfg.Audio.Source, err))
	}
	ps.Audio = src
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Source)

	return ps, nil
}

// closeProviders releases providers that hold resources.
func closeProviders(ps *app.Providers) {
	for _, p := range []any{ps.Audio, ps.Classifier, ps.STT} {
		if c, ok := p.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        wakepipe: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Audio.Source+" / "+audioDevice(cfg.Audio))
	printRow("Wake", strings.Join(cfg.Wake.Phrases, ", "))
	printRow("Classifier", cfg.Wake.Classifier.Name)
	printRow("VAD", cfg.Capture.VAD.Name)
	printRow("Transcription", cfg.Transcription.Backend+" / "+cfg.Transcription.ModelID)
	printRow("Prefix", fmt.Sprintf("%q", cfg.Commands.Prefix))
	printRow("Bindings", fmt.Sprint(len(cfg.Commands.Bindings)))
	if cfg.Actions.DryRun {
		printRow("Actions", "dry run")
	} else {
		printRow("Actions", cfg.Actions.Inject.Argv[0])
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	fmt.Printf("║  %-13s : %-21s ║\n", kind, truncate(value, 21))
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func audioDevice(a config.AudioConfig) string {
	if a.Source == "command" && len(a.Command) > 0 {
		return a.Command[0]
	}
	return a.Device
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int, but
// float64 is accepted too.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optFloat extracts a numeric option and reports whether it was present.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
