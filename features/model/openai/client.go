// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates normalized requests into ChatCompletion
// calls using github.com/sashabaranov/go-openai and maps responses back to
// the generic driver structures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/korefocus/diligence/runtime/chat/model"
)

// ChatClient captures the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Client, model: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), DefaultModel: defaultModel})
}

// Complete renders a chat completion using the configured OpenAI client.
// Extended thinking requests are accepted but have no OpenAI equivalent; the
// Thinking options are ignored.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if len(req.Messages) == 0 {
		return model.Response{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		messages = append(messages, encodeMessage(m)...)
	}
	toolList, err := encodeTools(req.Tools)
	if err != nil {
		return model.Response{}, err
	}
	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       toolList,
	}
	response, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		var apierr *openai.APIError
		if errors.As(err, &apierr) && apierr.HTTPStatusCode == 429 {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return model.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(response), nil
}

// encodeMessage flattens one normalized turn into Chat Completions messages.
// Tool results become dedicated "tool" role messages as the API requires.
func encodeMessage(m *model.Message) []openai.ChatCompletionMessage {
	var (
		out       []openai.ChatCompletionMessage
		text      string
		toolCalls []openai.ToolCall
	)
	for _, p := range m.Parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolCallPart:
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   v.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      v.Name,
					Arguments: string(v.Payload),
				},
			})
		case model.ToolResultPart:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(v.Result),
				ToolCallID: v.ToolCallID,
			})
		}
	}
	if text != "" || len(toolCalls) > 0 {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: text, ToolCalls: toolCalls}
		out = append([]openai.ChatCompletionMessage{msg}, out...)
	}
	return out
}

func encodeTools(defs []*model.ToolDefinition) ([]openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	toolList := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		toolList = append(toolList, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return toolList, nil
}

func translateResponse(resp openai.ChatCompletionResponse) model.Response {
	var out model.Response
	for _, choice := range resp.Choices {
		msg := choice.Message
		if msg.Content != "" {
			out.Content = append(out.Content, model.Message{
				Role:  model.RoleAssistant,
				Parts: []model.Part{model.TextPart{Text: msg.Content}},
			})
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:      call.ID,
				Name:    call.Function.Name,
				Payload: json.RawMessage(call.Function.Arguments),
			})
		}
	}
	out.Usage = model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if len(resp.Choices) > 0 {
		out.StopReason = normalizeFinishReason(resp.Choices[0].FinishReason)
	}
	return out
}

// normalizeFinishReason maps OpenAI finish reasons onto the driver's
// vocabulary. Unrecognized values pass through verbatim.
func normalizeFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonStop:
		return model.StopReasonStop
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return model.StopReasonToolCalls
	case openai.FinishReasonLength:
		return model.StopReasonMaxTokens
	default:
		return string(reason)
	}
}
