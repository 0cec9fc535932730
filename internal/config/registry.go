package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/llm"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one provider kind's name-to-factory table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   factories[stt.Provider]
	llm   factories[llm.Provider]
	tts   factories[tts.Provider]
	audio factories[audio.Platform]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   newFactories[stt.Provider]("stt"),
		llm:   newFactories[llm.Provider]("llm"),
		tts:   newFactories[tts.Provider]("tts"),
		audio: newFactories[audio.Platform]("audio"),
	}
}

// RegisterSTT registers an STT provider factory under name.
// A later registration under the same name replaces the earlier one.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory Factory[audio.Platform]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = factory
}

// CreateSTT instantiates the STT provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateTTS instantiates the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// CreateAudio instantiates the audio platform registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audio.create(entry)
}

// Names returns the registered provider names for kind ("stt", "llm", "tts"
// or "audio"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.stt.names()
	case "llm":
		return r.llm.names()
	case "tts":
		return r.tts.names()
	case "audio":
		return r.audio.names()
	}
	return nil
}
