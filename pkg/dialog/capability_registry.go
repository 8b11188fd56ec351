package dialog

import (
	"fmt"
	"sync"
)

// ProviderConfig is the provider-specific configuration map passed to a
// factory, mirroring the `modules.<category>.config.<adapter_type>`
// section of the process configuration.
type ProviderConfig map[string]interface{}

// VADFactory, ASRFactory, LLMFactory and TTSFactory build one capability
// provider from its config. Kept as distinct function types (rather than
// one factory returning `interface{}`) so registration is caught at
// compile time per category.
type (
	VADFactory func(cfg ProviderConfig) (VADProvider, error)
	ASRFactory func(cfg ProviderConfig) (ASRProvider, error)
	LLMFactory func(cfg ProviderConfig) (LLMProvider, error)
	TTSFactory func(cfg ProviderConfig) (TTSProvider, error)
)

// CapabilityRegistry is the name-to-factory registry, used once at startup
// to instantiate each configured provider from an explicit registration
// table instead of a switch statement or dynamic plugin lookup.
type CapabilityRegistry struct {
	mu   sync.RWMutex
	vad  map[string]VADFactory
	asr  map[string]ASRFactory
	llm  map[string]LLMFactory
	tts  map[string]TTSFactory
}

// NewCapabilityRegistry builds an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		vad: make(map[string]VADFactory),
		asr: make(map[string]ASRFactory),
		llm: make(map[string]LLMFactory),
		tts: make(map[string]TTSFactory),
	}
}

func (r *CapabilityRegistry) RegisterVAD(name string, f VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = f
}
func (r *CapabilityRegistry) RegisterASR(name string, f ASRFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = f
}
func (r *CapabilityRegistry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}
func (r *CapabilityRegistry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateVAD, CreateASR, CreateLLM and CreateTTS instantiate a provider by
// its registered adapter_type name. An unknown name is fatal at startup —
// the caller is expected to abort the process on this error, not surface
// it per-session.
func (r *CapabilityRegistry) CreateVAD(name string, cfg ProviderConfig) (VADProvider, error) {
	r.mu.RLock()
	f, ok := r.vad[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad adapter %q", ErrUnknownProvider, name)
	}
	return f(cfg)
}
func (r *CapabilityRegistry) CreateASR(name string, cfg ProviderConfig) (ASRProvider, error) {
	r.mu.RLock()
	f, ok := r.asr[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr adapter %q", ErrUnknownProvider, name)
	}
	return f(cfg)
}
func (r *CapabilityRegistry) CreateLLM(name string, cfg ProviderConfig) (LLMProvider, error) {
	r.mu.RLock()
	f, ok := r.llm[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm adapter %q", ErrUnknownProvider, name)
	}
	return f(cfg)
}
func (r *CapabilityRegistry) CreateTTS(name string, cfg ProviderConfig) (TTSProvider, error) {
	r.mu.RLock()
	f, ok := r.tts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts adapter %q", ErrUnknownProvider, name)
	}
	return f(cfg)
}
