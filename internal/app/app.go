// Package app wires all callsense subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the interactive operator loop plus the admin HTTP
// server, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithHost, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/evakess/callsense/internal/config"
	"github.com/evakess/callsense/internal/contextstore"
	"github.com/evakess/callsense/internal/engine"
	"github.com/evakess/callsense/internal/health"
	"github.com/evakess/callsense/internal/observe"
	"github.com/evakess/callsense/internal/toolhost"
	"github.com/evakess/callsense/internal/tools/crossmodal"
	"github.com/evakess/callsense/internal/tools/lexicon"
	"github.com/evakess/callsense/internal/tools/temporal"
	"github.com/evakess/callsense/pkg/provider/llm"
	"github.com/evakess/callsense/pkg/provider/stt"
)

// Providers holds one interface value per provider slot. Transcriber may be
// nil when transcription is not configured. Populated by main.go via the
// config registry.
type Providers struct {
	Oracle      llm.Provider
	Transcriber stt.Transcriber
}

// App owns all subsystem lifetimes and drives the assessment loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems initialised in New, torn down in Shutdown.
	store   contextstore.Store
	host    *toolhost.Host
	tracker *temporal.Tracker
	engine  *engine.Engine
	metrics *observe.Metrics
	admin   *http.Server

	// in and out are the operator terminal; overridable for tests.
	in  io.Reader
	out io.Writer

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a context store instead of creating one from config.
func WithStore(s contextstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithHost injects a tool host instead of creating one from config.
func WithHost(h *toolhost.Host) Option {
	return func(a *App) { a.host = h }
}

// WithMetrics injects an initialised metrics set. Without it the app runs
// uninstrumented.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithIO redirects the operator terminal, used by tests to script input and
// capture output.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) { a.in = in; a.out = out }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Oracle == nil {
		return nil, errors.New("app: an oracle provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init context store: %w", err)
	}
	if err := a.initHost(ctx); err != nil {
		return nil, fmt.Errorf("app: init tool host: %w", err)
	}
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}
	a.initAdmin()

	return a, nil
}

// initStore sets up the session context store or uses the injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	sessionID := "emergency_session_" + time.Now().Format("20060102150405")
	switch a.cfg.Context.Backend {
	case config.BackendPostgres:
		store, err := contextstore.NewPostgresStore(ctx, a.cfg.Context.PostgresDSN, sessionID)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	default:
		dir := a.cfg.Context.Dir
		if dir == "" {
			dir = "."
		}
		store, err := contextstore.NewFileStore(dir, sessionID)
		if err != nil {
			return err
		}
		a.store = store
	}
	slog.Info("context store ready", "session", sessionID, "backend", a.cfg.Context.Backend)
	return nil
}

// initHost sets up the tool host, registers the built-in analysis tools and
// any configured MCP servers.
func (a *App) initHost(ctx context.Context) error {
	a.tracker = temporal.NewTracker()

	if a.host == nil {
		a.host = toolhost.New()
		a.closers = append(a.closers, a.host.Close)
	}

	if err := a.host.RegisterBuiltins(lexicon.Tools()); err != nil {
		return err
	}
	if err := a.host.RegisterBuiltins(temporal.Tools(a.tracker)); err != nil {
		return err
	}
	if err := a.host.RegisterBuiltins(crossmodal.Tools()); err != nil {
		return err
	}

	for _, srv := range a.cfg.MCP.Servers {
		err := a.host.RegisterServer(ctx, toolhost.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		})
		if err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}
	return nil
}

// initEngine builds the assessment engine from config and providers.
func (a *App) initEngine() error {
	eng, err := engine.New(engine.Config{
		Oracle:        a.providers.Oracle,
		OracleName:    a.cfg.Oracle.Name,
		Host:          a.host,
		Store:         a.store,
		Transcriber:   a.providers.Transcriber,
		Metrics:       a.metrics,
		MaxIterations: a.cfg.Engine.MaxIterations,
		OracleTimeout: a.cfg.Engine.OracleTimeout.Std(),
		Temperature:   a.cfg.Engine.Temperature,
		SampleRate:    a.cfg.Audio.SampleRate,
	})
	if err != nil {
		return err
	}
	a.engine = eng
	return nil
}

// initAdmin builds the metrics and health HTTP server when configured.
func (a *App) initAdmin() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{health.OracleChecker(a.providers.Oracle)}
	if a.cfg.Context.Backend != config.BackendPostgres {
		dir := a.cfg.Context.Dir
		if dir == "" {
			dir = "."
		}
		checkers = append(checkers, health.StoreChecker(dir))
	}
	health.New(checkers...).Register(mux)

	a.admin = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the admin server and the interactive operator loop, blocking
// until the operator types "exit" or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.admin != nil {
		g.Go(func() error {
			slog.Info("admin server listening", "addr", a.admin.Addr)
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.admin.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer func() {
			// The operator loop ending stops the whole app.
			if a.admin != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.admin.Shutdown(shutdownCtx)
			}
		}()
		return a.operatorLoop(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown tears down all subsystems in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
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
