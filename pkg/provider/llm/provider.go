// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o, Anthropic
// Claude, or a local Ollama instance) and exposes a uniform interface for the
// assessment engine to perform tool-calling completions, count tokens, and inspect
// model capabilities without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Provided as a convenience;
	// some providers return it directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Tools is the set of function/tool definitions offered to the model. The model
	// may choose to call one or more of them in its response. Providers that do not
	// support tool calling should return an error; callers should check
	// Capabilities().SupportsToolCalling first.
	Tools []ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower values
	// produce more deterministic outputs. A value of 0.0 typically requests greedy
	// (argmax) decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history. If the provider does not natively support a dedicated
	// system prompt, implementors should prepend it as a "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model. The caller is
	// responsible for executing them and appending the results to the conversation.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines. Each
// method should propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before the
	// response arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the token footprint of messages for this provider's
	// tokenizer. Estimates may be approximate; callers use them for context-window
	// budgeting, not billing.
	CountTokens(messages []Message) (int, error)

	// Capabilities reports the static capabilities of the configured model.
	Capabilities() ModelCapabilities
}
