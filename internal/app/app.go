// Package app wires all SpeakEz subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and sweeps idle sessions until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithProviders,
// WithHistoryStore, WithConverter, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakez/internal/config"
	"github.com/MrWong99/speakez/internal/health"
	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/history/postgres"
	"github.com/MrWong99/speakez/internal/history/sqlite"
	"github.com/MrWong99/speakez/internal/mcpserver"
	"github.com/MrWong99/speakez/internal/observe"
	"github.com/MrWong99/speakez/internal/practice"
	"github.com/MrWong99/speakez/internal/resilience"
	"github.com/MrWong99/speakez/internal/web"
	"github.com/MrWong99/speakez/internal/workspace"
	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/audio/ffmpeg"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 15 * time.Second

// sweepInterval is how often idle sessions are collected.
const sweepInterval = time.Minute

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	version string
	level   *slog.LevelVar

	providers *Providers
	converter audio.Converter
	recorder  audio.Recorder
	noCapture bool
	ws        *workspace.Workspace
	history   history.Store
	metrics   *observe.Metrics
	svc       *practice.Service
	health    *health.Handler

	handler  http.Handler
	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProviders injects speech providers instead of building them from config.
func WithProviders(p *Providers) Option {
	return func(a *App) { a.providers = p }
}

// WithHistoryStore injects a history store instead of opening one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithConverter injects an audio converter.
func WithConverter(c audio.Converter) Option {
	return func(a *App) { a.converter = c }
}

// WithRecorder injects a server-side recorder. A nil recorder disables
// capture regardless of config.
func WithRecorder(r audio.Recorder) Option {
	return func(a *App) {
		a.recorder = r
		a.noCapture = r == nil
	}
}

// WithMetrics injects metric instruments instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level of the caller's
// handler.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. On error, everything
// created so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(LogLevel(cfg.Server.LogLevel))
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Workspace ─────────────────────────────────────────────────────
	ws, err := workspace.Open(a.cfg.Practice.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.ws = ws
	a.closers = append(a.closers, ws.Close)
	if err := ws.Lock(); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	// ── 2. Providers ─────────────────────────────────────────────────────
	if a.providers == nil {
		reg := config.NewRegistry()
		RegisterBuiltins(reg)
		ps, err := BuildProviders(a.cfg, reg)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.providers = ps
	}
	a.closers = append(a.closers, a.providers.Close)

	// ── 3. Audio ─────────────────────────────────────────────────────────
	if a.converter == nil {
		a.converter = NewConverter(a.cfg.Converter)
	}
	if a.recorder == nil && !a.noCapture {
		a.recorder = NewRecorder(a.cfg.Capture)
	}

	// ── 4. History ───────────────────────────────────────────────────────
	if a.history == nil {
		store, err := OpenHistory(ctx, a.cfg.History)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.history = store
	}
	a.closers = append(a.closers, a.history.Close)

	// ── 5. Practice service ──────────────────────────────────────────────
	hints := hint.New()
	svc, err := practice.NewService(practice.Config{
		STT:       a.providers.STT,
		TTS:       a.providers.TTS,
		STTName:   a.providers.STTName,
		TTSName:   a.providers.TTSName,
		Converter: a.converter,
		Recorder:  a.recorder,
		Workspace: a.ws,
		History:   a.history,
		Hints:     hints,
		Metrics:   a.metrics,
		Defaults:  DefaultsFromConfig(a.cfg.Practice),
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.svc = svc

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.health = health.New(a.checkers()...)

	mux := http.NewServeMux()
	web.New(svc, web.WithHistory(a.history), web.WithHints(hints)).Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/providers", a.handleProviders)
	if a.cfg.MCP.Enabled {
		m := mcpserver.New(a.version, mcpserver.WithHints(hints), mcpserver.WithHistory(a.history))
		mux.Handle(a.cfg.MCP.Path, m.Handler())
		slog.Info("MCP endpoint enabled", "path", a.cfg.MCP.Path)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
	return nil
}

// checkers lists the readiness checks for the configured subsystems.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{
		health.Func("workspace", a.ws.CheckWritable),
		health.Ping("history", a.history),
	}
	if bin, ok := ffmpegBinary(a.cfg); ok {
		// ffmpeg is only mandatory when it was asked for explicitly.
		required := a.cfg.Converter.Name == "ffmpeg" || a.cfg.Capture.Name == "ffmpeg"
		checks = append(checks, health.Binary("ffmpeg", bin, !required))
	}
	if a.providers.STTStatus != nil {
		checks = append(checks, breakerCheck("stt", a.providers.STTStatus))
	}
	if a.providers.TTSStatus != nil {
		checks = append(checks, breakerCheck("tts", a.providers.TTSStatus))
	}
	return checks
}

// breakerCheck fails when every backend of a fallback group has an open
// circuit.
func breakerCheck(kind string, status func() []resilience.EntryStatus) health.Checker {
	return health.Checker{
		Name:     kind + "-providers",
		Optional: true,
		Check: func(context.Context) error {
			entries := status()
			for _, e := range entries {
				if e.State != resilience.StateOpen {
					return nil
				}
			}
			return fmt.Errorf("all %d %s backends have open circuits", len(entries), kind)
		},
	}
}

type providerStatus struct {
	STT      string                   `json:"stt"`
	TTS      string                   `json:"tts"`
	STTChain []resilience.EntryStatus `json:"stt_chain,omitempty"`
	TTSChain []resilience.EntryStatus `json:"tts_chain,omitempty"`
	Capture  bool                     `json:"capture"`
}

// handleProviders reports the configured backends and their circuit state.
func (a *App) handleProviders(w http.ResponseWriter, _ *http.Request) {
	st := providerStatus{STT: a.providers.STTName, TTS: a.providers.TTSName, Capture: a.svc.CanCapture()}
	if a.providers.STTStatus != nil {
		st.STTChain = a.providers.STTStatus()
	}
	if a.providers.TTSStatus != nil {
		st.TTSChain = a.providers.TTSStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		slog.Debug("app: encode provider status", "err", err)
	}
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Service returns the practice service.
func (a *App) Service() *practice.Service { return a.svc }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and sweeps idle sessions until ctx is cancelled, then
// drains in-flight requests for up to ShutdownTimeout. It returns nil after
// a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.svc.Run(gctx, sweepInterval)
	})

	g.Go(func() error {
		err := a.serve()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		slog.Info("stopping HTTP server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr, "capture", a.svc.CanCapture(), "mcp", a.cfg.MCP.Enabled)
	return g.Wait()
}

func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	l := a.listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return err
		}
	}
	if tls != nil {
		return a.server.ServeTLS(l, tls.CertFile, tls.KeyFile)
	}
	return a.server.Serve(l)
}

// ApplyConfig applies the hot-reloadable parts of a config change. It is the
// callback handed to config.NewWatcher.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(LogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PracticeChanged {
		a.svc.SetDefaults(DefaultsFromConfig(d.NewPractice))
		slog.Info("practice defaults reloaded",
			"language", d.NewPractice.Language,
			"record_seconds", d.NewPractice.RecordSeconds,
			"session_ttl", d.NewPractice.SessionTTL.Std(),
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// LogLevel converts a config.LogLevel to a slog.Level.
func LogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultsFromConfig converts the practice section to service defaults.
func DefaultsFromConfig(p config.PracticeConfig) practice.Defaults {
	d := practice.DefaultDefaults()
	if p.Language != "" {
		d.Language = p.Language
	}
	d.Voice = p.Voice
	if p.RecordSeconds > 0 {
		d.RecordDuration = time.Duration(p.RecordSeconds) * time.Second
	}
	if p.SampleRate > 0 {
		d.Format.SampleRate = p.SampleRate
	}
	if p.SessionTTL > 0 {
		d.SessionTTL = p.SessionTTL.Std()
	}
	return d
}

// NewConverter builds the configured converter. Without a name, ffmpeg is
// used when it is on PATH and the native WAV converter otherwise.
func NewConverter(cfg config.ConverterConfig) audio.Converter {
	bin := cfg.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	switch cfg.Name {
	case "native":
		return audio.NativeConverter{}
	case "ffmpeg":
		return audio.ChainConverter{Next: ffmpeg.NewConverter(ffmpeg.WithBinary(bin))}
	}
	if _, err := exec.LookPath(bin); err != nil {
		slog.Warn("ffmpeg not found; only WAV uploads are accepted", "binary", bin)
		return audio.NativeConverter{}
	}
	return audio.ChainConverter{Next: ffmpeg.NewConverter(ffmpeg.WithBinary(bin))}
}

// NewRecorder builds the configured server-side recorder, or nil when
// capture is disabled.
func NewRecorder(cfg config.CaptureConfig) audio.Recorder {
	if cfg.Name != "ffmpeg" {
		return nil
	}
	return ffmpeg.NewRecorder(
		ffmpeg.WithBinary(cfg.Binary),
		ffmpeg.WithDevice(cfg.Device),
		ffmpeg.WithInputFormat(cfg.InputFormat),
	)
}

// OpenHistory opens the configured history backend.
func OpenHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Driver {
	case config.HistoryMemory, "":
		return history.NewMemStore(), nil
	case config.HistoryJSONL:
		s, err := history.NewFileStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.HistorySQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.HistoryPostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
}

// ffmpegBinary returns the ffmpeg executable the config relies on, if any.
func ffmpegBinary(cfg *config.Config) (string, bool) {
	switch {
	case cfg.Capture.Name == "ffmpeg":
		if cfg.Capture.Binary != "" {
			return cfg.Capture.Binary, true
		}
		return "ffmpeg", true
	case cfg.Converter.Name != "native":
		if cfg.Converter.Binary != "" {
			return cfg.Converter.Binary, true
		}
		return "ffmpeg", true
	}
	return "", false
}
