package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartsMarshalTaggedUnion(t *testing.T) {
	parts := Parts{
		TextPart{Text: "Here is the analysis."},
		ToolCallPart{ToolCallID: "call-1", ToolName: "createSwot", Payload: json.RawMessage(`{"title":"Acme"}`)},
		ToolResultPart{ToolCallID: "call-1", ToolName: "createSwot", Result: json.RawMessage(`{"url":"/files/a"}`)},
	}
	raw, err := json.Marshal(parts)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 3)
	require.Equal(t, "text", decoded[0]["type"])
	require.Equal(t, "tool-call", decoded[1]["type"])
	require.Equal(t, "tool-result", decoded[2]["type"])
	require.Equal(t, "createSwot", decoded[1]["toolName"])
}

func TestPartsRoundTripPreservesOrder(t *testing.T) {
	in := Parts{
		ReasoningPart{Reasoning: "compare revenue concentration"},
		TextPart{Text: "first"},
		ToolCallPart{ToolCallID: "c1", ToolName: "formatMemo"},
		ToolResultPart{ToolCallID: "c1", ToolName: "formatMemo", Result: json.RawMessage(`"## Initial due-diligence request"`), IsError: false},
		TextPart{Text: "second"},
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Parts
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestPartsUnmarshalRejectsUnknownType(t *testing.T) {
	var out Parts
	err := json.Unmarshal([]byte(`[{"type":"video","url":"x"}]`), &out)
	require.ErrorContains(t, err, `unknown message part type "video"`)
}

func TestMessageText(t *testing.T) {
	m := &Message{Parts: Parts{
		TextPart{Text: "What are "},
		ReasoningPart{Reasoning: "ignored"},
		TextPart{Text: "the risks?"},
	}}
	require.Equal(t, "What are the risks?", m.Text())

	empty := &Message{Parts: Parts{ReasoningPart{Reasoning: "only"}}}
	require.Equal(t, "", empty.Text())
}
