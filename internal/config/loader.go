package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/evakess/callsense/internal/toolhost"
)

// ValidOracleNames lists known oracle provider names. Used by [Validate] to
// warn about unrecognised names.
var ValidOracleNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Values like ${OPENAI_API_KEY} are expanded from the environment
// before decoding.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals. Unlike
// [Load] it performs no environment expansion.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Oracle
	if cfg.Oracle.Name == "" {
		errs = append(errs, errors.New("oracle.name is required"))
	} else if !slices.Contains(ValidOracleNames, cfg.Oracle.Name) {
		slog.Warn("unknown oracle provider name, may be a typo or third-party provider",
			"name", cfg.Oracle.Name,
			"known", ValidOracleNames,
		)
	}
	if cfg.Oracle.Name != "" && cfg.Oracle.Model == "" {
		errs = append(errs, errors.New("oracle.model is required"))
	}

	// Engine
	if cfg.Engine.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("engine.max_iterations %d must not be negative", cfg.Engine.MaxIterations))
	}
	if cfg.Engine.OracleTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.oracle_timeout %s must not be negative", cfg.Engine.OracleTimeout.Std()))
	}
	if cfg.Engine.Temperature < 0 || cfg.Engine.Temperature > 2 {
		errs = append(errs, fmt.Errorf("engine.temperature %.2f is out of range [0.0, 2.0]", cfg.Engine.Temperature))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}

	// Context store
	if cfg.Context.Backend != "" && !cfg.Context.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("context.backend %q is invalid; valid values: file, postgres", cfg.Context.Backend))
	}
	if cfg.Context.Backend == BackendPostgres && cfg.Context.PostgresDSN == "" {
		errs = append(errs, errors.New("context.postgres_dsn is required when context.backend is postgres"))
	}

	// STT
	if cfg.STT.ModelPath == "" && cfg.STT.Language != "" {
		slog.Warn("stt.language is set but stt.model_path is empty; transcription stays disabled")
	}

	// MCP servers
	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == toolhost.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == toolhost.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
