// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the engine sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{{Content: `{"primary_emotion": "fear"}`}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/evakess/callsense/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is the scripted sequence returned by successive Complete
	// calls. Each call consumes one entry; when the script is exhausted the
	// last entry is repeated. Nil or empty yields an empty response.
	Responses []*llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from every Complete call.
	CompleteErr error

	// CompleteFn, if non-nil, overrides Responses/CompleteErr entirely.
	CompleteFn func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// TokenCount is returned by CountTokens.
	TokenCount int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteFn != nil {
		fn := p.CompleteFn
		p.mu.Unlock()
		return fn(ctx, req)
	}
	if p.CompleteErr != nil {
		err := p.CompleteErr
		p.mu.Unlock()
		return nil, err
	}
	if len(p.Responses) == 0 {
		p.mu.Unlock()
		return &llm.CompletionResponse{}, nil
	}

	idx := p.next
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	p.next++
	resp := p.Responses[idx]
	p.mu.Unlock()

	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	return resp, nil
}

// CountTokens returns the configured TokenCount.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	if p.CountTokensErr != nil {
		return 0, p.CountTokensErr
	}
	return p.TokenCount, nil
}

// Capabilities returns the configured ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}
