// Package mock provides a recording test double for [tts.Provider].
//
//	p := &mock.Provider{SynthesizeResult: wav}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice tts.Voice
}

// Provider returns its configured results and records what it was asked to
// speak.
type Provider struct {
	SynthesizeResult []byte
	SynthesizeErr    error
	ListVoicesResult []tts.VoiceProfile
	ListVoicesErr    error

	mu    sync.Mutex
	calls []SynthesizeCall
}

func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return p.SynthesizeResult, nil
}

func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
