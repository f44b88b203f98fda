package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/korefocus/diligence/runtime/chat/model"
	"github.com/korefocus/diligence/runtime/chat/stream"
)

type fakeTool struct {
	name   Ident
	result any
	err    error

	invoked bool
	payload json.RawMessage
}

func (f *fakeTool) Name() Ident { return f.name }

func (f *fakeTool) Definition() *model.ToolDefinition {
	return &model.ToolDefinition{Name: string(f.name), Description: "fake"}
}

func (f *fakeTool) Invoke(_ context.Context, payload json.RawMessage, _ *stream.Emitter) (any, error) {
	f.invoked = true
	f.payload = payload
	return f.result, f.err
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&fakeTool{name: "createSwot"}, &fakeTool{name: "createSwot"})
	require.ErrorContains(t, err, `duplicate tool "createSwot"`)
}

func TestDefinitionsSortedByName(t *testing.T) {
	r, err := NewRegistry(
		&fakeTool{name: "generateQuestions"},
		&fakeTool{name: "createSwot"},
		&fakeTool{name: "formatMemo"},
	)
	require.NoError(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 3)
	require.Equal(t, "createSwot", defs[0].Name)
	require.Equal(t, "formatMemo", defs[1].Name)
	require.Equal(t, "generateQuestions", defs[2].Name)
}

func TestInvokeDispatchesByName(t *testing.T) {
	tool := &fakeTool{name: "createSwot", result: map[string]string{"id": "a1"}}
	r, err := NewRegistry(tool)
	require.NoError(t, err)

	out, err := r.Invoke(context.Background(), "createSwot", json.RawMessage(`{"title":"Acme"}`), stream.NewEmitter("r", "c"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"id": "a1"}, out)
	require.True(t, tool.invoked)
	require.JSONEq(t, `{"title":"Acme"}`, string(tool.payload))
}

func TestInvokeUnknownTool(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "missing", nil, stream.NewEmitter("r", "c"))
	require.ErrorIs(t, err, ErrUnknownTool)
}
