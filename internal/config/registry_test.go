package config_test

import (
	"errors"
	"testing"

	"github.com/evakess/callsense/internal/config"
	"github.com/evakess/callsense/pkg/provider/llm"
	llmmock "github.com/evakess/callsense/pkg/provider/llm/mock"
	"github.com/evakess/callsense/pkg/provider/stt"
	sttmock "github.com/evakess/callsense/pkg/provider/stt/mock"
)

func TestRegistryCreateOracle(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var seen config.ProviderEntry
	reg.RegisterOracle("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		seen = e
		return &llmmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "fake", APIKey: "k", Model: "m"}
	p, err := reg.CreateOracle(entry)
	if err != nil {
		t.Fatalf("CreateOracle: %v", err)
	}
	if p == nil {
		t.Fatal("CreateOracle returned a nil provider")
	}
	if seen.APIKey != "k" || seen.Model != "m" {
		t.Errorf("factory received %+v, want the full entry", seen)
	}
}

func TestRegistryCreateOracle_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateOracle(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryCreateSTT(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterSTT("fake", func(cfg config.STTConfig) (stt.Transcriber, error) {
		if cfg.ModelPath != "/models/ggml-base.bin" {
			t.Errorf("factory received %+v, want the model path", cfg)
		}
		return &sttmock.Transcriber{}, nil
	})

	tr, err := reg.CreateSTT("fake", config.STTConfig{ModelPath: "/models/ggml-base.bin"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if tr == nil {
		t.Fatal("CreateSTT returned a nil transcriber")
	}

	if _, err := reg.CreateSTT("nope", config.STTConfig{}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

// Later registrations replace earlier ones under the same name.
func TestRegistryOverwrite(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterOracle("fake", func(config.ProviderEntry) (llm.Provider, error) {
		t.Error("stale factory invoked")
		return nil, nil
	})
	want := &llmmock.Provider{}
	reg.RegisterOracle("fake", func(config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})

	p, err := reg.CreateOracle(config.ProviderEntry{Name: "fake"})
	if err != nil {
		t.Fatalf("CreateOracle: %v", err)
	}
	if p != want {
		t.Error("CreateOracle did not use the latest registration")
	}
}
