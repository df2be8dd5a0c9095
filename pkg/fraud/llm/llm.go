// Package llm is the collaborator adapter for the planner and reasoning LLM.
// The provider itself is out of scope; this package only defines the narrow
// interface the planner and ReasoningTool call through and a concrete
// anthropic-sdk-go-backed implementation.
package llm

import (
	"context"
)

// Message roles, mirrored from the conversational shape the rest of the
// pack's agent framework uses.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a prompt sent to the LLM.
type Message struct {
	Role    string
	Content string
}

// Request is a single, non-streaming completion request. Investigation
// prompts are short and structured (tool selection, risk synthesis); nothing
// in this runtime needs token-by-token streaming.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the result of a completion request.
type Response struct {
	Content string
	Usage   Usage
}

// Client is the narrow interface the planner and reasoning tool depend on.
// Implementations must respect ctx's deadline — the planner and
// per-tool timeout budgets are enforced by the caller via context, not here.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
