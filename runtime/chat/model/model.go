// Package model defines a provider-agnostic abstraction over chat completion
// APIs (Anthropic, OpenAI) so the generation driver can invoke models without
// coupling to specific SDKs. Implementations translate these normalized types
// into provider-specific formats.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

type (
	// Client is the contract the generation driver uses to invoke LLM calls.
	// Implementations wrap provider SDKs and translate Request/Response to
	// provider-specific formats. Clients must be thread-safe and reusable
	// across runs.
	Client interface {
		// Complete sends a chat completion request to the provider and
		// returns the generated response. Returns an error if the model is
		// unavailable, quota is exceeded, or the request is malformed.
		Complete(ctx context.Context, req Request) (Response, error)
	}

	// Request captures the normalized parameters for a model invocation.
	Request struct {
		// Model identifies the target model using the provider-specific
		// identifier (e.g., "claude-sonnet-4-5", "gpt-4o").
		Model string

		// System is the system prompt, separate from the conversation turns.
		System string

		// Messages is the ordered conversation provided to the model,
		// including prior assistant turns and tool results.
		Messages []*Message

		// Tools describes the tool schemas exposed to the model for function
		// calling. Empty if the model should not invoke tools.
		Tools []*ToolDefinition

		// Temperature controls sampling temperature. Zero means provider
		// default.
		Temperature float32

		// MaxTokens caps the number of completion tokens. Zero means
		// provider default.
		MaxTokens int

		// Thinking configures provider-specific extended thinking. Nil
		// disables thinking.
		Thinking *ThinkingOptions
	}

	// Response wraps the generated content and any tool call requests.
	Response struct {
		// Content contains the assistant messages returned by the model.
		// Empty if the model only requested tool calls.
		Content []Message

		// ToolCalls lists tool invocations requested by the model. The
		// driver executes these and feeds results back in subsequent steps.
		ToolCalls []ToolCall

		// Usage reports token usage when the provider supplies it.
		Usage TokenUsage

		// StopReason explains why the model stopped generating, normalized
		// to the StopReason* constants when recognized.
		StopReason string
	}

	// Message is one conversation turn sent to or received from the model.
	Message struct {
		// Role is "user" or "assistant".
		Role string

		// Parts is the ordered content of the turn.
		Parts []Part
	}

	// Part is one content variant of a model message. Concrete types are
	// TextPart, ToolCallPart, and ToolResultPart.
	Part interface {
		isPart()
	}

	// TextPart carries plain text content.
	TextPart struct {
		Text string
	}

	// ToolCallPart records a tool invocation in an assistant turn.
	ToolCallPart struct {
		ID      string
		Name    string
		Payload json.RawMessage
	}

	// ToolResultPart carries a tool result back to the model in a user turn.
	ToolResultPart struct {
		ToolCallID string
		Result     json.RawMessage
		IsError    bool
	}

	// ToolDefinition describes a tool schema passed to the provider for
	// function calling.
	ToolDefinition struct {
		// Name is the identifier presented to the model.
		Name string

		// Description documents the tool for prompting purposes.
		Description string

		// InputSchema is the JSON Schema object describing the tool's input
		// parameters, typically a map[string]any.
		InputSchema any
	}

	// ToolCall captures a tool invocation requested by the model.
	ToolCall struct {
		// ID is the provider-assigned tool call identifier, used to correlate
		// the result part with the call.
		ID string

		// Name is the tool identifier as advertised in the request.
		Name string

		// Payload is the raw JSON arguments generated by the model.
		Payload json.RawMessage
	}

	// ThinkingOptions toggles provider extended thinking.
	ThinkingOptions struct {
		// Enable turns extended thinking on.
		Enable bool
		// BudgetTokens caps the tokens allocated to thinking output. Zero
		// means provider default.
		BudgetTokens int
	}

	// TokenUsage records prompt/completion token counts when reported.
	TokenUsage struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		TotalTokens  int `json:"totalTokens"`
	}
)

// Roles used in model messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Normalized stop reasons. Adapters map provider-specific values onto these;
// unrecognized values pass through verbatim.
const (
	StopReasonStop      = "stop"
	StopReasonToolCalls = "tool_calls"
	StopReasonMaxTokens = "max_tokens"
)

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Adapters wrap provider errors with this sentinel when they can
// tell.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()       {}
func (ToolCallPart) isPart()   {}
func (ToolResultPart) isPart() {}
