// Package mock provides a recording test double for [llm.Provider].
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hi"}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voiceturn/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers every request with CompleteResponse or CompleteErr. A
// nil response without an error yields an empty completion.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	mu    sync.Mutex
	calls []CompleteCall
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	switch {
	case p.CompleteErr != nil:
		return nil, p.CompleteErr
	case p.CompleteResponse == nil:
		return &llm.CompletionResponse{}, nil
	}
	resp := *p.CompleteResponse
	return &resp, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
