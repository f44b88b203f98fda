// Package driver runs one chat generation: it loops the model engine with
// tool execution, streams thinking updates through the run's emitter, and
// persists the reconstructed assistant message exactly once.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/korefocus/diligence/runtime/chat"
	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/stream"
	"github.com/korefocus/diligence/runtime/chat/tools"
)

// Fixed user-facing copy. Clients pattern-match on these strings; changing
// them is a breaking change.
const (
	copyAnalyzing   = "Analyzing your request..."
	copyScanning    = "Scanning your document..."
	copyRetrieving  = "Getting relevant information from your document..."
	copyComplete    = "Analysis complete"
	copyFinalizing  = "Finalizing response..."
	copyProcessing  = "Processing tool results..."
	copyGenerating  = "Generating response..."
	copyFatal       = "Oops, an error occurred while processing your request!"
	copySaveFailure = "Failed to save conversation"
)

// Thinking-update step classifiers.
const (
	stepTypeCompletion = "completion"
	stepTypeProcessing = "processing"
	stepTypeGenerate   = "generate"
	stepTypeToolCall   = "tool-call"
)

// toolCopy returns the status line announcing a requested tool call.
func toolCopy(name string) string {
	switch name {
	case "createSwot":
		return "Preparing SWOT analysis..."
	case "generateQuestions":
		return "Preparing due diligence questions..."
	default:
		return "Initializing tool..."
	}
}

// DefaultMaxSteps bounds the engine loop when Options.MaxSteps is zero.
const DefaultMaxSteps = 5

// ErrNoAssistantMessage is returned by Run when the engine produced no
// assistant content to persist.
var ErrNoAssistantMessage = errors.New("no assistant message generated")

type (
	// Options configures a Driver. Store, Client, and Tools are required.
	Options struct {
		// Store persists the reconstructed assistant message.
		Store chat.Store
		// Client is the model engine.
		Client model.Client
		// Tools scopes the capabilities available to runs.
		Tools *tools.Registry
		// SystemPrompt is prepended to every engine request.
		SystemPrompt string
		// MaxSteps bounds the engine loop. Zero means DefaultMaxSteps.
		MaxSteps int
		// Temperature is forwarded to the engine. Zero means provider
		// default.
		Temperature float32
		// MaxTokens caps completion tokens per step. Zero means provider
		// default.
		MaxTokens int
		// TitleModel identifies the engine model used by GenerateTitle.
		// Empty falls back to the run model of the triggering request.
		TitleModel string
	}

	// Driver executes generation runs. Safe for concurrent use; each Run
	// owns its emitter and transcript.
	Driver struct {
		store        chat.Store
		client       model.Client
		tools        *tools.Registry
		systemPrompt string
		maxSteps     int
		temperature  float32
		maxTokens    int
		titleModel   string
	}

	// Run describes one generation to execute.
	Run struct {
		// ID is the run identifier, shared by every emitted event.
		ID string
		// ChatID is the owning chat.
		ChatID string
		// Model is the provider-specific model identifier.
		Model string
		// Thinking enables provider extended thinking for reasoning runs.
		Thinking *model.ThinkingOptions
		// History is the persisted conversation, oldest first, including the
		// user message that triggered this run.
		History []*chat.Message
		// HasAttachment reports whether the chat currently has documents
		// attached. Combined with FirstTurn it selects the opening copy.
		HasAttachment bool
		// FirstTurn reports whether the triggering message opened the chat.
		FirstTurn bool
		// Emitter receives the run's stream events. The driver closes it.
		Emitter *stream.Emitter
	}

	// summary is the completion-meta content.
	summary struct {
		Usage        model.TokenUsage `json:"usage"`
		FinishReason string           `json:"finishReason"`
		StepCount    int              `json:"stepCount"`
	}
)

// New builds a Driver from the provided options.
func New(opts Options) (*Driver, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Driver{
		store:        opts.Store,
		client:       opts.Client,
		tools:        opts.Tools,
		systemPrompt: opts.SystemPrompt,
		maxSteps:     maxSteps,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		titleModel:   opts.TitleModel,
	}, nil
}

// Run executes one generation to completion. It always drives the emitter to
// its terminal state: completion-meta on success, an error frame otherwise.
// Returned errors are for the caller's logs; everything user-visible has
// already been streamed.
func (d *Driver) Run(ctx context.Context, run Run) error {
	if run.Emitter == nil {
		return errors.New("emitter is required")
	}
	em := run.Emitter
	if err := em.Emit(ctx, stream.NewThinkingStart(run.ID, run.ChatID, openingCopy(run))); err != nil {
		return fmt.Errorf("emit thinking-start: %w", err)
	}

	transcript := encodeHistory(run.History)
	var (
		usage     model.TokenUsage
		finish    string
		steps     int
		assistant chat.Parts
	)
	for steps < d.maxSteps {
		steps++
		resp, err := d.client.Complete(ctx, model.Request{
			Model:       run.Model,
			System:      d.systemPrompt,
			Messages:    transcript,
			Tools:       d.tools.Definitions(),
			Temperature: d.temperature,
			MaxTokens:   d.maxTokens,
			Thinking:    run.Thinking,
		})
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "engine step failed"}, log.KV{K: "run_id", V: run.ID}, log.KV{K: "step", V: steps})
			em.CloseWithError(ctx, copyFatal)
			return fmt.Errorf("engine step %d: %w", steps, err)
		}
		usage = addUsage(usage, resp.Usage)
		finish = resp.StopReason

		assistantTurn := &model.Message{Role: model.RoleAssistant}
		for _, m := range resp.Content {
			for _, p := range m.Parts {
				if tp, ok := p.(model.TextPart); ok && tp.Text != "" {
					assistantTurn.Parts = append(assistantTurn.Parts, tp)
					assistant = append(assistant, chat.TextPart{Text: tp.Text})
				}
			}
		}
		for _, call := range resp.ToolCalls {
			assistantTurn.Parts = append(assistantTurn.Parts, model.ToolCallPart{ID: call.ID, Name: call.Name, Payload: call.Payload})
			assistant = append(assistant, chat.ToolCallPart{ToolCallID: call.ID, ToolName: call.Name, Payload: call.Payload})
		}
		if len(assistantTurn.Parts) > 0 {
			transcript = append(transcript, assistantTurn)
		}

		if len(resp.ToolCalls) == 0 {
			if err := em.Emit(ctx, stream.NewThinkingUpdate(run.ID, run.ChatID, stepCopy(finish), stepType(finish), "")); err != nil {
				return fmt.Errorf("emit thinking-update: %w", err)
			}
			break
		}

		resultTurn := &model.Message{Role: model.RoleUser}
		for _, call := range resp.ToolCalls {
			if err := em.Emit(ctx, stream.NewThinkingUpdate(run.ID, run.ChatID, toolCopy(call.Name), stepTypeToolCall, call.Name)); err != nil {
				return fmt.Errorf("emit thinking-update: %w", err)
			}
			result, isErr := d.invokeTool(ctx, run, call, em)
			assistant = append(assistant, chat.ToolResultPart{ToolCallID: call.ID, ToolName: call.Name, Result: result, IsError: isErr})
			resultTurn.Parts = append(resultTurn.Parts, model.ToolResultPart{ToolCallID: call.ID, Result: result, IsError: isErr})
		}
		transcript = append(transcript, resultTurn)
		if err := em.Emit(ctx, stream.NewThinkingUpdate(run.ID, run.ChatID, copyProcessing, stepTypeProcessing, "")); err != nil {
			return fmt.Errorf("emit thinking-update: %w", err)
		}
	}

	if err := em.Emit(ctx, stream.NewThinkingEnd(run.ID, run.ChatID, copyComplete)); err != nil {
		return fmt.Errorf("emit thinking-end: %w", err)
	}

	if !hasAssistantContent(assistant) {
		log.Error(ctx, ErrNoAssistantMessage, log.KV{K: "msg", V: "run produced no assistant message"}, log.KV{K: "run_id", V: run.ID})
		em.CloseWithError(ctx, copySaveFailure)
		return ErrNoAssistantMessage
	}

	msg := &chat.Message{
		ID:        uuid.NewString(),
		ChatID:    run.ChatID,
		Role:      chat.RoleAssistant,
		Parts:     assistant,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.SaveMessage(ctx, msg); err != nil && !errors.Is(err, chat.ErrMessageExists) {
		log.Error(ctx, err, log.KV{K: "msg", V: "save assistant message"}, log.KV{K: "run_id", V: run.ID}, log.KV{K: "chat_id", V: run.ChatID})
		em.CloseWithError(ctx, copySaveFailure)
		return fmt.Errorf("save assistant message: %w", err)
	}

	meta, err := json.Marshal(summary{Usage: usage, FinishReason: finish, StepCount: steps})
	if err != nil {
		em.CloseWithError(ctx, copyFatal)
		return fmt.Errorf("marshal completion meta: %w", err)
	}
	if err := em.Emit(ctx, stream.NewCompletionMeta(run.ID, run.ChatID, string(meta))); err != nil {
		return fmt.Errorf("emit completion-meta: %w", err)
	}
	em.Close(ctx)
	return nil
}

// invokeTool executes one model-requested tool call and encodes the result
// for the transcript. Failures become error results fed back to the model;
// they never abort the run.
func (d *Driver) invokeTool(ctx context.Context, run Run, call model.ToolCall, em *stream.Emitter) (json.RawMessage, bool) {
	out, err := d.tools.Invoke(ctx, tools.Ident(call.Name), call.Payload, em)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "tool invocation failed"}, log.KV{K: "run_id", V: run.ID}, log.KV{K: "tool", V: call.Name})
		raw, _ := json.Marshal(map[string]string{"error": err.Error()})
		return raw, true
	}
	raw, err := json.Marshal(out)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "tool result not serializable"}, log.KV{K: "run_id", V: run.ID}, log.KV{K: "tool", V: call.Name})
		raw, _ = json.Marshal(map[string]string{"error": "tool result not serializable"})
		return raw, true
	}
	return raw, false
}

// GenerateTitle summarizes the first user message into a short chat title.
// Callers typically invoke it fire-and-forget; failures surface as errors and
// leave the chat untitled.
func (d *Driver) GenerateTitle(ctx context.Context, modelID, userText string) (string, error) {
	if d.titleModel != "" {
		modelID = d.titleModel
	}
	resp, err := d.client.Complete(ctx, model.Request{
		Model:  modelID,
		System: "Generate a short title summarizing the user's first message. At most 80 characters. Plain text, no quotes, no colons.",
		Messages: []*model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: userText}}},
		},
		MaxTokens: 64,
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	var title string
	for _, m := range resp.Content {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				title += tp.Text
			}
		}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("generate title: empty response")
	}
	return title, nil
}

// openingCopy selects the thinking-start line from the request shape.
func openingCopy(run Run) string {
	switch {
	case run.HasAttachment && run.FirstTurn:
		return copyScanning
	case run.HasAttachment:
		return copyRetrieving
	default:
		return copyAnalyzing
	}
}

// stepCopy maps a normalized stop reason to the thinking-update line.
func stepCopy(stopReason string) string {
	switch stopReason {
	case model.StopReasonStop:
		return copyFinalizing
	case model.StopReasonToolCalls:
		return copyProcessing
	default:
		return copyGenerating
	}
}

func stepType(stopReason string) string {
	switch stopReason {
	case model.StopReasonStop:
		return stepTypeCompletion
	case model.StopReasonToolCalls:
		return stepTypeProcessing
	default:
		return stepTypeGenerate
	}
}

// encodeHistory converts persisted messages into model turns. Reasoning
// parts are omitted; tool call and result parts are forwarded verbatim.
func encodeHistory(history []*chat.Message) []*model.Message {
	out := make([]*model.Message, 0, len(history))
	for _, m := range history {
		turn := &model.Message{Role: string(m.Role)}
		for _, p := range m.Parts {
			switch part := p.(type) {
			case chat.TextPart:
				if part.Text != "" {
					turn.Parts = append(turn.Parts, model.TextPart{Text: part.Text})
				}
			case chat.ToolCallPart:
				turn.Parts = append(turn.Parts, model.ToolCallPart{ID: part.ToolCallID, Name: part.ToolName, Payload: part.Payload})
			case chat.ToolResultPart:
				turn.Parts = append(turn.Parts, model.ToolResultPart{ToolCallID: part.ToolCallID, Result: part.Result, IsError: part.IsError})
			}
		}
		if len(turn.Parts) > 0 {
			out = append(out, turn)
		}
	}
	return out
}

// hasAssistantContent reports whether the run produced anything worth
// persisting as an assistant turn.
func hasAssistantContent(parts chat.Parts) bool {
	for _, p := range parts {
		if tp, ok := p.(chat.TextPart); ok && tp.Text != "" {
			return true
		}
		if _, ok := p.(chat.ToolResultPart); ok {
			return true
		}
	}
	return false
}

func addUsage(a, b model.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
		TotalTokens:  a.TotalTokens + b.TotalTokens,
	}
}
