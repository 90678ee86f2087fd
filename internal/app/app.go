// Package app wires the wakepipe subsystems into a running process.
//
// The App owns the full lifecycle: New connects the providers built by main
// to the pipeline, Run drives the pipeline, the HTTP listener and the config
// watcher as one group, and Shutdown releases the providers in order.
//
// For testing, inject doubles through [Providers] and the functional options
// ([WithInjector], [WithExecutor], [WithMetrics]). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wakepipe/internal/action"
	"github.com/MrWong99/wakepipe/internal/command"
	"github.com/MrWong99/wakepipe/internal/config"
	"github.com/MrWong99/wakepipe/internal/health"
	"github.com/MrWong99/wakepipe/internal/observe"
	"github.com/MrWong99/wakepipe/internal/pipeline"
	"github.com/MrWong99/wakepipe/internal/status"
	"github.com/MrWong99/wakepipe/internal/transcribe"
	"github.com/MrWong99/wakepipe/pkg/audio"
	"github.com/MrWong99/wakepipe/pkg/provider/stt"
	"github.com/MrWong99/wakepipe/pkg/provider/vad"
	"github.com/MrWong99/wakepipe/pkg/provider/wakeword"
)

// shutdownTimeout bounds the HTTP server drain once Run is stopping.
const shutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry. Every slot is required.
type Providers struct {
	Audio      audio.Source
	VAD        vad.Engine
	STT        stt.Engine
	Classifier wakeword.Classifier
}

// App owns all subsystem lifetimes.
type App struct {
	providers *Providers

	mu      sync.Mutex
	cfg     *config.Config
	running bool

	level          *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler
	injector       action.Injector
	executor       action.Executor
	configPath     string

	bus         *status.Bus
	transcriber *transcribe.Dispatcher
	orch        *pipeline.Orchestrator
	handler     http.Handler
	watcher     *config.Watcher

	// listener is set when Run binds the HTTP address.
	lnMu     sync.Mutex
	listener net.Listener
	bound    chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithInjector replaces the injector built from actions.inject.
func WithInjector(inj action.Injector) Option {
	return func(a *App) { a.injector = inj }
}

// WithExecutor replaces the executor built from actions.execute.
func WithExecutor(exec action.Executor) Option {
	return func(a *App) { a.executor = exec }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel hands the app the level variable behind the default logger so
// config reloads can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigFile watches path and applies changes while Run is active.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the providers built by main. It performs all
// initialisation synchronously; nothing is started until [App.Run].
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := checkProviders(providers); err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		bound:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.SlogLevel())
	}

	// ── 1. Actions ───────────────────────────────────────────────────────
	if err := a.initActions(); err != nil {
		return nil, fmt.Errorf("app: init actions: %w", err)
	}

	// ── 2. Pipeline ──────────────────────────────────────────────────────
	snap := config.Snapshot(cfg)
	a.bus = status.NewBus()
	a.transcriber = transcribe.New(providers.STT, snap.Transcribe, transcribe.WithMetrics(a.metrics))
	a.orch = pipeline.New(
		providers.Audio,
		providers.Classifier,
		providers.VAD,
		a.transcriber,
		command.NewDispatcher(a.injector, a.executor),
		snap,
		pipeline.WithStatus(a.bus),
		pipeline.WithMetrics(a.metrics),
	)

	a.closers = append(a.closers, providers.Audio.Close)
	if c, ok := providers.Classifier.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if c, ok := providers.STT.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	// ── 3. HTTP ──────────────────────────────────────────────────────────
	a.handler = a.buildHandler()

	// ── 4. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		var wopts []config.WatcherOption
		if cfg.Actions.DryRun {
			// Reloads never switch a dry run to real actions.
			wopts = append(wopts, config.WithLoadOptions(config.ForceDryRun))
		}
		w, err := config.NewWatcher(a.configPath, a.applyConfig, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

func checkProviders(p *Providers) error {
	if p == nil {
		return errors.New("app: providers are required")
	}
	var errs []error
	if p.Audio == nil {
		errs = append(errs, errors.New("app: audio source is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("app: vad engine is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("app: transcription engine is required"))
	}
	if p.Classifier == nil {
		errs = append(errs, errors.New("app: wake classifier is required"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initActions builds the injector and executor unless they were injected.
func (a *App) initActions() error {
	if a.cfg.Actions.DryRun {
		if a.injector == nil {
			a.injector = action.DryRun{}
		}
		if a.executor == nil {
			a.executor = action.DryRun{}
		}
		return nil
	}

	if a.injector == nil {
		inj, err := action.NewCommandInjector(a.cfg.Actions.Inject.Argv)
		if err != nil {
			return err
		}
		a.injector = inj
	}
	if a.executor == nil {
		exec, err := action.NewCommandExecutor(a.cfg.Actions.Execute.ArgvByAction)
		if err != nil {
			return err
		}
		a.executor = exec
	}
	return nil
}

// buildHandler mounts the status, trigger, metrics and health endpoints.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	status.Register(mux, a.bus)
	mux.HandleFunc("POST /trigger", a.serveTrigger)
	mux.Handle("GET /metrics", a.metricsHandler)

	hh := health.New(
		health.PipelineChecker(func() string { return a.orch.State().String() }),
		health.BreakerChecker("transcription", a.transcriber.Breaker()),
	)
	hh.Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// serveTrigger starts a capture without a wake phrase. It answers 202 when
// the pipeline accepted the trigger and 409 with the current state otherwise.
// The optional phrase query parameter labels the capture.
func (a *App) serveTrigger(w http.ResponseWriter, r *http.Request) {
	if a.orch.Trigger(r.URL.Query().Get("phrase")) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Error(w, "pipeline is "+a.orch.State().String(), http.StatusConflict)
}

// Trigger starts a capture as if a wake phrase had been heard. See
// [pipeline.Orchestrator.Trigger].
func (a *App) Trigger(phrase string) bool { return a.orch.Trigger(phrase) }

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler served on server.listen_addr.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the orchestrator.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.orch }

// Status returns the state signal bus.
func (a *App) Status() *status.Bus { return a.bus }

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Addr blocks until Run has bound the HTTP listener and returns its address.
// It returns "" when ctx ends first or the listener is disabled.
func (a *App) Addr(ctx context.Context) string {
	select {
	case <-a.bound:
	case <-ctx.Done():
		return ""
	}
	a.lnMu.Lock()
	defer a.lnMu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// ErrNoConfigFile is returned by [App.Reload] when the app was built without
// [WithConfigFile].
var ErrNoConfigFile = errors.New("app: no config file to reload")

// Reload re-reads the config file immediately and applies the result the way
// a polled change is applied. It returns [config.ErrUnchanged] when the file
// matches the active config.
func (a *App) Reload() error {
	if a.watcher == nil {
		return ErrNoConfigFile
	}
	return a.watcher.Reload()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run drives the pipeline, the HTTP listener and the config watcher until ctx
// is cancelled or the pipeline stops. It returns nil on a clean stop and the
// first error otherwise; a device failure surfaces as [*audio.DeviceError].
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return pipeline.ErrAlreadyRunning
	}
	a.running = true
	addr := a.cfg.Server.ListenAddr
	a.mu.Unlock()

	var ln net.Listener
	if addr != "" {
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			close(a.bound)
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.lnMu.Lock()
		a.listener = ln
		a.lnMu.Unlock()
	}
	close(a.bound)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// The pipeline ending for any reason ends the process.
	g.Go(func() error {
		defer cancel()
		return a.orch.Run(gctx)
	})

	if ln != nil {
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	return g.Wait()
}

// applyConfig reacts to a reloaded config file. Changes that only affect the
// pipeline settings are staged on the orchestrator; the rest need a restart.
func (a *App) applyConfig(_, next *config.Config) {
	a.mu.Lock()
	old := a.cfg
	d := config.Diff(old, next)
	if d.Changed() {
		a.cfg = next
	}
	a.mu.Unlock()

	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if d.PipelineChanged {
		a.orch.Reconfigure(config.Snapshot(next))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes take effect after restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the providers in order. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.watcher != nil {
			a.watcher.Stop()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
