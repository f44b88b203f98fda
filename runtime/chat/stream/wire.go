package stream

import (
	"encoding/json"
	"fmt"
)

// EncodeFrame marshals an event into its canonical wire frame: the payload
// object with a "type" discriminator added. Frames contain no run or chat
// identifiers; transports carry those out of band (stream name, URL).
func EncodeFrame(event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("encode frame: event is nil")
	}
	fields := make(map[string]json.RawMessage)
	if p := event.Payload(); p != nil {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode frame %s: %w", event.Type(), err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encode frame %s: payload is not an object: %w", event.Type(), err)
		}
	}
	t, err := json.Marshal(string(event.Type()))
	if err != nil {
		return nil, fmt.Errorf("encode frame %s: %w", event.Type(), err)
	}
	fields["type"] = t
	return json.Marshal(fields)
}

// DecodeFrame parses a wire frame back into a typed event. Frames with an
// unknown "type" decode into an Opaque event rather than an error so readers
// survive vocabulary growth. The decoded event carries empty run and chat
// identifiers; those travel out of band.
func DecodeFrame(frame []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	switch head.Type {
	case EventThinkingStart:
		var d ThinkingPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &ThinkingStart{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventThinkingUpdate:
		var d ThinkingUpdatePayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &ThinkingUpdate{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventThinkingEnd:
		var d ThinkingPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &ThinkingEnd{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventToolProgress:
		var d ToolProgressPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &ToolProgress{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventQuestionGenerated:
		var d QuestionGeneratedPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &QuestionGenerated{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventCompletionMeta:
		var d ContentPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &CompletionMeta{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventError:
		var d ErrorPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &Error{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventAppendMessage:
		var d AppendMessagePayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &AppendMessage{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventArtifactID:
		var d ContentPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &ArtifactID{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventArtifactTitle:
		var d ContentPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &ArtifactTitle{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventClear:
		var d ContentPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &Clear{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventFinish:
		var d ContentPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &Finish{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	case EventQuestionsMeta:
		var d ContentPayload
		if err := json.Unmarshal(frame, &d); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", head.Type, err)
		}
		return &QuestionsMeta{Base: NewBase(head.Type, "", "", d), Data: d}, nil
	default:
		raw := make(json.RawMessage, len(frame))
		copy(raw, frame)
		return &Opaque{Base: NewBase(head.Type, "", "", raw), Raw: raw}, nil
	}
}

// IsTerminal reports whether the event type ends its run's stream. At most
// one terminal frame is emitted per run.
func IsTerminal(t EventType) bool {
	return t == EventCompletionMeta || t == EventError
}
