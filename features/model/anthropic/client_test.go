package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/korefocus/diligence/runtime/chat/model"
)

type fakeMessages struct {
	resp   *sdk.Message
	err    error
	params []sdk.MessageNewParams
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.params = append(f.params, body)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func textMessage(text, stopReason string) *sdk.Message {
	return &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: text}},
		StopReason: sdk.StopReason(stopReason),
		Usage:      sdk.Usage{InputTokens: 12, OutputTokens: 7},
	}
}

func userRequest(text string) model.Request {
	return model.Request{
		Model:  "claude-sonnet-4-5",
		System: "sys prompt",
		Messages: []*model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
		},
	}
}

func newClient(t *testing.T, msg MessagesClient) *Client {
	t.Helper()
	c, err := New(msg, Options{DefaultModel: "claude-sonnet-4-5"})
	require.NoError(t, err)
	return c
}

func TestCompleteTranslatesTextResponse(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("Revenue is concentrated.", "end_turn")}
	c := newClient(t, fake)

	resp, err := c.Complete(context.Background(), userRequest("how diversified?"))
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, model.TextPart{Text: "Revenue is concentrated."}, resp.Content[0].Parts[0])
	require.Equal(t, model.StopReasonStop, resp.StopReason)
	require.Equal(t, model.TokenUsage{InputTokens: 12, OutputTokens: 7, TotalTokens: 19}, resp.Usage)

	sent := fake.params[0]
	require.Equal(t, sdk.Model("claude-sonnet-4-5"), sent.Model)
	require.Equal(t, int64(4096), sent.MaxTokens)
	require.Len(t, sent.System, 1)
	require.Equal(t, "sys prompt", sent.System[0].Text)
}

func TestCompleteTranslatesToolUse(t *testing.T) {
	fake := &fakeMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "toolu_1", Name: "createSwot", Input: json.RawMessage(`{"title":"Acme"}`)},
		},
		StopReason: "tool_use",
	}}
	c := newClient(t, fake)

	resp, err := c.Complete(context.Background(), userRequest("export"))
	require.NoError(t, err)
	require.Empty(t, resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	require.Equal(t, "createSwot", resp.ToolCalls[0].Name)
	require.JSONEq(t, `{"title":"Acme"}`, string(resp.ToolCalls[0].Payload))
	require.Equal(t, model.StopReasonToolCalls, resp.StopReason)
}

func TestCompleteEncodesToolDefinitions(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("ok", "end_turn")}
	c := newClient(t, fake)

	req := userRequest("hello")
	req.Tools = []*model.ToolDefinition{{
		Name:        "createSwot",
		Description: "Exports a SWOT deck",
		InputSchema: map[string]any{"type": "object"},
	}}
	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)

	sent := fake.params[0]
	require.Len(t, sent.Tools, 1)
	require.NotNil(t, sent.Tools[0].OfTool)
	require.Equal(t, "createSwot", sent.Tools[0].OfTool.Name)
}

func TestCompleteThinkingValidation(t *testing.T) {
	fake := &fakeMessages{resp: textMessage("ok", "end_turn")}
	c := newClient(t, fake)

	req := userRequest("hello")
	req.Thinking = &model.ThinkingOptions{Enable: true, BudgetTokens: 512}
	_, err := c.Complete(context.Background(), req)
	require.ErrorContains(t, err, "must be >= 1024")

	req.Thinking = &model.ThinkingOptions{Enable: true, BudgetTokens: 2048}
	req.MaxTokens = 2048
	_, err = c.Complete(context.Background(), req)
	require.ErrorContains(t, err, "must be less than max_tokens")

	req.MaxTokens = 8192
	_, err = c.Complete(context.Background(), req)
	require.NoError(t, err)
	sent := fake.params[len(fake.params)-1]
	require.NotNil(t, sent.Thinking.OfEnabled)
	require.Equal(t, int64(2048), sent.Thinking.OfEnabled.BudgetTokens)
}

func TestCompleteRateLimited(t *testing.T) {
	fake := &fakeMessages{err: &sdk.Error{StatusCode: 429}}
	c := newClient(t, fake)

	_, err := c.Complete(context.Background(), userRequest("hello"))
	require.ErrorIs(t, err, model.ErrRateLimited)
}

func TestCompleteRequiresMessages(t *testing.T) {
	c := newClient(t, &fakeMessages{resp: textMessage("ok", "end_turn")})
	_, err := c.Complete(context.Background(), model.Request{Model: "claude-sonnet-4-5"})
	require.ErrorContains(t, err, "messages are required")
}

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]string{
		"end_turn":      model.StopReasonStop,
		"stop_sequence": model.StopReasonStop,
		"tool_use":      model.StopReasonToolCalls,
		"max_tokens":    model.StopReasonMaxTokens,
		"pause_turn":    "pause_turn",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeStopReason(in))
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "m"})
	require.ErrorContains(t, err, "anthropic client is required")

	_, err = New(&fakeMessages{}, Options{})
	require.ErrorContains(t, err, "default model identifier is required")
}
