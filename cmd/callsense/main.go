// Command callsense is the main entry point for the caller emotion
// assessment service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/evakess/callsense/internal/app"
	"github.com/evakess/callsense/internal/config"
	"github.com/evakess/callsense/internal/observe"
	"github.com/evakess/callsense/pkg/provider/llm"
	"github.com/evakess/callsense/pkg/provider/llm/anyllm"
	"github.com/evakess/callsense/pkg/provider/llm/openai"
	"github.com/evakess/callsense/pkg/provider/stt"
	"github.com/evakess/callsense/pkg/provider/stt/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A local .env is optional; config values like ${OPENAI_API_KEY} expand
	// from whatever environment results.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "callsense: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callsense: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callsense: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("callsense starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "callsense",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to build metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// The "openai" oracle uses the official SDK; the remaining names go through
// any-llm-go, which shares one construction pattern.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterOracle("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterOracle(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterOracle("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("whisper-native", func(sttCfg config.STTConfig) (stt.Transcriber, error) {
		var opts []whisper.Option
		if sttCfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(sttCfg.Language))
		}
		return whisper.New(sttCfg.ModelPath, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	oracle, err := reg.CreateOracle(cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("create oracle provider %q: %w", cfg.Oracle.Name, err)
	}
	ps.Oracle = oracle
	slog.Info("provider created", "kind", "oracle", "name", cfg.Oracle.Name, "model", cfg.Oracle.Model)

	if cfg.STT.ModelPath != "" {
		tr, err := reg.CreateSTT("whisper-native", cfg.STT)
		if err != nil {
			return nil, fmt.Errorf("create transcriber: %w", err)
		}
		ps.Transcriber = tr
		slog.Info("provider created", "kind", "stt", "name", "whisper-native", "model_path", cfg.STT.ModelPath)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       callsense startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("Oracle", cfg.Oracle.Name+" / "+cfg.Oracle.Model)
	if cfg.STT.ModelPath != "" {
		printLine("Transcription", "whisper-native")
	} else {
		printLine("Transcription", "(disabled)")
	}
	backend := cfg.Context.Backend
	if backend == "" {
		backend = config.BackendFile
	}
	printLine("Context store", string(backend))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		printLine("Admin addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
