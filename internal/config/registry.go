package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/evakess/callsense/pkg/provider/llm"
	"github.com/evakess/callsense/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	oracle map[string]func(ProviderEntry) (llm.Provider, error)
	stt    map[string]func(STTConfig) (stt.Transcriber, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		oracle: make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:    make(map[string]func(STTConfig) (stt.Transcriber, error)),
	}
}

// RegisterOracle registers an oracle provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterOracle(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracle[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(STTConfig) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateOracle instantiates an oracle provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateOracle(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.oracle[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: oracle/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under name.
func (r *Registry) CreateSTT(name string, cfg STTConfig) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
