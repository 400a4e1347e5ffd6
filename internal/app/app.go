// Package app wires the muaalem subsystems into a running service.
//
// The App struct owns the full lifecycle: New loads the vocabulary and
// builds the analyzer, HTTP server and telemetry, Run serves until the
// context is cancelled, Reload applies hot config changes and Shutdown
// tears everything down in order.
package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/muaalem/internal/analysis"
	"github.com/MrWong99/muaalem/internal/config"
	"github.com/MrWong99/muaalem/internal/health"
	"github.com/MrWong99/muaalem/internal/observe"
	"github.com/MrWong99/muaalem/internal/reportlog"
	"github.com/MrWong99/muaalem/internal/server"
	"github.com/MrWong99/muaalem/pkg/sifat"
	"github.com/MrWong99/muaalem/pkg/vocab"
)

// Version is reported as the service version in telemetry.
var Version = "dev"

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	levels   *slog.LevelVar
	provider *observe.Provider
	metrics  *observe.Metrics
	reports  *reportlog.FileStore
	health   *health.Handler
	server   *server.Server
	http     *http.Server

	// ownsProvider is set when New created the provider and must shut it down.
	ownsProvider bool

	// mu guards cfg and vocab during Reload.
	mu    sync.Mutex
	cfg   config.Config
	vocab vocabFile

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithProvider injects telemetry providers instead of calling
// [observe.InitProvider]. The caller keeps ownership.
func WithProvider(p *observe.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithLevelVar makes Reload update lv when the log level changes.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. Zero config values take their defaults.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg.WithDefaults()}
	for _, o := range opts {
		o(a)
	}
	if err := config.Validate(&a.cfg); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 1. Vocabulary ────────────────────────────────────────────────────
	vf, err := loadVocabFile(a.cfg.Engine.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.vocab = vf

	// ── 2. Telemetry ─────────────────────────────────────────────────────
	if a.provider == nil {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    a.cfg.Observe.ServiceName,
			ServiceVersion: Version,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.provider, a.ownsProvider = p, true
	}
	m, err := observe.NewMetrics(a.provider.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}
	a.metrics = m

	if p := a.cfg.Observe.ReportLogPath; p != "" {
		a.reports = reportlog.NewFileStore(p)
	}

	// ── 3. Health ────────────────────────────────────────────────────────
	a.health = health.New(health.Checker{Name: "vocabulary", Check: a.checkVocabulary})

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.server = server.New(a.buildAnalyzer(a.cfg, vf.v),
		server.WithHealth(a.health),
		server.WithMetrics(m),
		server.WithMetricsHandler(a.provider.MetricsHandler()),
		server.WithMaxRequestBytes(a.cfg.Server.MaxRequestBytes),
	)
	a.http = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.server,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return a, nil
}

// LoadVocabulary loads the vocabulary file at path, or returns the built-in
// vocabulary when path is empty.
func LoadVocabulary(path string) (*vocab.Vocabulary, error) {
	vf, err := loadVocabFile(path)
	if err != nil {
		return nil, err
	}
	return vf.v, nil
}

// vocabFile is a loaded vocabulary and the digest of the file it came from.
// The built-in vocabulary has a zero digest.
type vocabFile struct {
	v   *vocab.Vocabulary
	sum [sha256.Size]byte
}

func loadVocabFile(path string) (vocabFile, error) {
	if path == "" {
		return vocabFile{v: vocab.Default()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return vocabFile{}, fmt.Errorf("load vocabulary %q: %w", path, err)
	}
	v, err := vocab.LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return vocabFile{}, fmt.Errorf("load vocabulary %q: %w", path, err)
	}
	return vocabFile{v: v, sum: sha256.Sum256(data)}, nil
}

func (a *App) buildAnalyzer(cfg config.Config, v *vocab.Vocabulary) *analysis.Analyzer {
	opts := []analysis.Option{
		analysis.WithWorkers(cfg.Engine.Workers),
		analysis.WithMetrics(a.metrics),
		analysis.WithProjection(cfg.Explain.ContainmentTolerance, cfg.Explain.LowConfidenceSimilarity),
	}
	if a.reports != nil {
		opts = append(opts, analysis.WithSink(a.reports))
	}
	return analysis.New(v, opts...)
}

func (a *App) checkVocabulary(context.Context) error {
	if a.Analyzer().Vocabulary().Size(sifat.Phonemes) == 0 {
		return errors.New("no phoneme symbols")
	}
	return nil
}

// Analyzer returns the analyzer currently serving requests.
func (a *App) Analyzer() *analysis.Analyzer { return a.server.Analyzer() }

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler { return a.server }

// Config returns the config currently in effect.
func (a *App) Config() config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.http.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, returning ctx's error, or until
// the server fails. It does not shut the server down; call Shutdown for
// that.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("app running", "addr", ln.Addr().String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next: the log level, the
// projection tuning and the engine settings. A vocabulary file whose content
// changed since it was loaded is read again even when its path did not
// change. Other changes are logged and take effect after a restart. The
// running config is left untouched when the vocabulary cannot be loaded.
func (a *App) Reload(next *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := next.WithDefaults()
	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("app: reload: %w", err)
	}
	d := config.Diff(&a.cfg, &cfg)

	vf, vocabChanged := a.vocab, false
	if path := cfg.Engine.VocabularyPath; path != "" || path != a.cfg.Engine.VocabularyPath {
		loaded, err := loadVocabFile(path)
		if err != nil {
			return fmt.Errorf("app: reload: %w", err)
		}
		if path != a.cfg.Engine.VocabularyPath || loaded.sum != a.vocab.sum {
			vf, vocabChanged = loaded, true
		}
	}
	if !d.Changed() && !vocabChanged {
		return nil
	}

	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(observe.ParseLevel(string(d.NewLogLevel)))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EngineChanged || d.ExplainChanged || vocabChanged {
		a.server.SetAnalyzer(a.buildAnalyzer(cfg, vf.v))
		slog.Info("analyzer rebuilt",
			"engine_changed", d.EngineChanged,
			"explain_changed", d.ExplainChanged,
			"vocabulary_changed", vocabChanged,
			"workers", cfg.Engine.Workers,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "fields", d.RestartRequired)
	}

	// Restart-only fields keep their running values.
	cfg.Server.ListenAddr = a.cfg.Server.ListenAddr
	cfg.Server.LogFormat = a.cfg.Server.LogFormat
	cfg.Server.MaxRequestBytes = a.cfg.Server.MaxRequestBytes
	cfg.Server.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
	cfg.Observe = a.cfg.Observe
	a.cfg, a.vocab = cfg, vf
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown marks the service unready, waits for in-flight requests and
// flushes telemetry. It respects the context deadline and is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		a.health.Drain()

		var errs []error
		if err := a.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
		if a.ownsProvider {
			if err := a.provider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("telemetry: %w", err))
			}
		}
		shutdownErr = errors.Join(errs...)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
