// Package chat defines the persistent conversation model: chats, messages
// with their ordered part variants, attachments, and the Store interface that
// persistence backends implement.
package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

type (
	// Chat is one conversation owned by a user. Attachments carry the
	// document metadata the conversation is grounded on; the run list records
	// every generation run launched for the chat in order.
	Chat struct {
		// ID is the chat UUID.
		ID string `json:"id"`
		// UserID identifies the owner. Only the owner may post, patch, or
		// delete; public chats are readable by anyone.
		UserID string `json:"userId"`
		// Title is a short human-readable summary of the first user message.
		Title string `json:"title"`
		// Visibility is "public" or "private".
		Visibility Visibility `json:"visibility"`
		// Attachments is the current document set. Replaced wholesale by
		// attachment updates, last write wins.
		Attachments []Attachment `json:"attachments,omitempty"`
		// CreatedAt is the creation timestamp.
		CreatedAt time.Time `json:"createdAt"`
	}

	// Message is one conversation turn. Parts preserve the order in which
	// content variants were produced.
	Message struct {
		// ID is the message UUID. Saving two messages with the same ID is
		// rejected with ErrMessageExists; the first writer wins.
		ID string `json:"id"`
		// ChatID is the owning chat.
		ChatID string `json:"chatId"`
		// Role is "user" or "assistant".
		Role Role `json:"role"`
		// Parts is the ordered content of the turn.
		Parts Parts `json:"parts"`
		// Attachments carries documents attached to this specific turn.
		Attachments []Attachment `json:"attachments,omitempty"`
		// CreatedAt is the persistence timestamp.
		CreatedAt time.Time `json:"createdAt"`
	}

	// Attachment describes an uploaded document by reference.
	Attachment struct {
		URL         string `json:"url"`
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}

	// Part is one content variant of a message. Concrete types are TextPart,
	// ReasoningPart, ToolCallPart, and ToolResultPart. Parts serialize as a
	// tagged union with a "type" discriminator.
	Part interface {
		partType() string
	}

	// Parts is an ordered list of message parts with tagged-union JSON
	// encoding.
	Parts []Part

	// TextPart carries assistant or user text.
	TextPart struct {
		Text string `json:"text"`
	}

	// ReasoningPart carries model reasoning text surfaced to the client.
	ReasoningPart struct {
		Reasoning string `json:"reasoning"`
	}

	// ToolCallPart records a tool invocation requested by the model.
	ToolCallPart struct {
		ToolCallID string          `json:"toolCallId"`
		ToolName   string          `json:"toolName"`
		Payload    json.RawMessage `json:"payload,omitempty"`
	}

	// ToolResultPart records the verbatim result of a tool invocation.
	ToolResultPart struct {
		ToolCallID string          `json:"toolCallId"`
		ToolName   string          `json:"toolName"`
		Result     json.RawMessage `json:"result,omitempty"`
		IsError    bool            `json:"isError,omitempty"`
	}
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a turn authored by the chat owner.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the model.
	RoleAssistant Role = "assistant"
)

// Visibility controls who may read a chat.
type Visibility string

const (
	// VisibilityPrivate restricts reads to the owner.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic allows any authenticated caller to read.
	VisibilityPublic Visibility = "public"
)

const (
	partTypeText       = "text"
	partTypeReasoning  = "reasoning"
	partTypeToolCall   = "tool-call"
	partTypeToolResult = "tool-result"
)

func (TextPart) partType() string       { return partTypeText }
func (ReasoningPart) partType() string  { return partTypeReasoning }
func (ToolCallPart) partType() string   { return partTypeToolCall }
func (ToolResultPart) partType() string { return partTypeToolResult }

// MarshalJSON encodes each part as its payload object with a "type"
// discriminator added.
func (ps Parts) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ps))
	for _, p := range ps {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("part %T is not an object: %w", p, err)
		}
		t, _ := json.Marshal(p.partType())
		fields["type"] = t
		enc, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged union. Unknown part types are an error:
// the part vocabulary is closed at the persistence layer.
func (ps *Parts) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	parts := make(Parts, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return err
		}
		switch head.Type {
		case partTypeText:
			var p TextPart
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			parts = append(parts, p)
		case partTypeReasoning:
			var p ReasoningPart
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			parts = append(parts, p)
		case partTypeToolCall:
			var p ToolCallPart
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			parts = append(parts, p)
		case partTypeToolResult:
			var p ToolResultPart
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			parts = append(parts, p)
		default:
			return fmt.Errorf("unknown message part type %q", head.Type)
		}
	}
	*ps = parts
	return nil
}

// Text concatenates the text parts of the message in order.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}
