// Package stream defines the client-facing event vocabulary for chat runs and
// the emitter that fans events out to transports. Events are "thinking" UI
// updates, tool progress, generated questions, and run bookkeeping frames;
// they are not an internal observability channel.
//
// All event types implement the Event interface and can be sent concurrently
// through a Sink implementation. Sinks are responsible for marshaling events
// into their wire format; EncodeFrame/DecodeFrame implement the canonical
// newline-delimited JSON framing.
package stream

import (
	"context"
	"encoding/json"
)

type (
	// Sink delivers stream events to clients over a transport (chunked HTTP,
	// Pulse, test capture). Implementations must be thread-safe: the emitter
	// may call Send from the generation goroutine while Subscribe runs on a
	// request goroutine.
	Sink interface {
		// Send publishes an event to the sink's underlying transport. Send
		// returns an error if delivery fails (connection closed, serialization
		// error, transport unavailable). The emitter drops a failing sink and
		// keeps the run alive.
		Send(ctx context.Context, event Event) error

		// Close releases resources owned by the sink. After Close returns,
		// subsequent Send calls must return errors. Close is idempotent.
		Close(ctx context.Context) error
	}

	// Event describes a stream event delivered to clients through a Sink. All
	// concrete event types embed Base to provide standard metadata (type, run
	// ID, chat ID, payload). Sinks use the Event interface to marshal events
	// generically; consumers can type-assert to concrete types when they need
	// structured field access.
	//
	// Implementations are immutable after construction and safe to send
	// concurrently.
	Event interface {
		// Type returns the event type constant (e.g., EventToolProgress).
		Type() EventType

		// RunID returns the generation run that produced this event. All
		// events within a single run share the same run ID.
		RunID() string

		// ChatID returns the chat the run belongs to. All events for a given
		// run share the same chat ID, providing a stable join key across
		// processes and transports.
		ChatID() string

		// Payload returns the event-specific data in a JSON-serializable
		// form. Sinks marshal this value when publishing events; the wire
		// frame is the payload object with a "type" discriminator added.
		Payload() any
	}

	// ThinkingStart opens the thinking indicator for a run. The content is one
	// of the fixed opening lines chosen by the driver from the request shape.
	ThinkingStart struct {
		Base
		Data ThinkingPayload
	}

	// ThinkingUpdate reports an intermediate generation step. StepType
	// classifies the step so clients can pick an icon; ToolName is set when
	// the step relates to a specific tool.
	ThinkingUpdate struct {
		Base
		Data ThinkingUpdatePayload
	}

	// ThinkingEnd closes the thinking indicator.
	ThinkingEnd struct {
		Base
		Data ThinkingPayload
	}

	// ToolProgress reports tool completion percentage. For a given tool call
	// the progress values are monotone non-decreasing and the final event
	// carries 100.
	ToolProgress struct {
		Base
		Data ToolProgressPayload
	}

	// QuestionGenerated streams one due-diligence question as the questions
	// tool produces it. Across a run the QuestionIndex values form a gap-free
	// permutation of [0, total).
	QuestionGenerated struct {
		Base
		Data QuestionGeneratedPayload
	}

	// CompletionMeta is the terminal frame of a successful run. Content is a
	// JSON-encoded summary (usage, finish reason, step count).
	CompletionMeta struct {
		Base
		Data ContentPayload
	}

	// Error is the terminal frame of a failed run. It carries a user-facing
	// message only; internal causes are logged, never forwarded.
	Error struct {
		Base
		Data ErrorPayload
	}

	// AppendMessage replays a fully persisted message as a single frame. It is
	// used when a client reconnects after the live stream has ended.
	AppendMessage struct {
		Base
		Data AppendMessagePayload
	}

	// ArtifactID announces the identifier of an artifact under construction.
	ArtifactID struct {
		Base
		Data ContentPayload
	}

	// ArtifactTitle announces the title of an artifact under construction.
	ArtifactTitle struct {
		Base
		Data ContentPayload
	}

	// Clear resets the client's artifact work area.
	Clear struct {
		Base
		Data ContentPayload
	}

	// Finish marks an artifact as complete.
	Finish struct {
		Base
		Data ContentPayload
	}

	// QuestionsMeta announces the total number of questions a run will stream.
	QuestionsMeta struct {
		Base
		Data ContentPayload
	}

	// Opaque carries a frame whose type is not part of the known vocabulary.
	// Decoders produce it instead of failing so older readers survive newer
	// writers.
	Opaque struct {
		Base
		Raw json.RawMessage
	}

	// ThinkingPayload is the wire payload for thinking-start and thinking-end.
	ThinkingPayload struct {
		Content string `json:"content"`
	}

	// ThinkingUpdatePayload is the wire payload for thinking-update events.
	ThinkingUpdatePayload struct {
		Content  string `json:"content"`
		StepType string `json:"stepType,omitempty"`
		ToolName string `json:"toolName,omitempty"`
	}

	// ToolProgressPayload is the wire payload for tool-progress events.
	ToolProgressPayload struct {
		Content  string `json:"content"`
		ToolName string `json:"toolName"`
		// Progress is a percentage in [0, 100].
		Progress int `json:"progress"`
	}

	// QuestionGeneratedPayload is the wire payload for question-generated
	// events. Content is either a plain string or a structured question
	// object ({question, category, reasoning}).
	QuestionGeneratedPayload struct {
		Content       any    `json:"content"`
		QuestionIndex int    `json:"questionIndex"`
		QuestionType  string `json:"questionType"`
	}

	// Question is the structured Content variant of QuestionGeneratedPayload.
	Question struct {
		Question  string `json:"question"`
		Category  string `json:"category"`
		Reasoning string `json:"reasoning,omitempty"`
	}

	// ContentPayload is the wire payload shared by the single-field
	// bookkeeping events (id, title, clear, finish, questions-meta,
	// completion-meta).
	ContentPayload struct {
		Content any `json:"content"`
	}

	// ErrorPayload is the wire payload for error frames.
	ErrorPayload struct {
		Data ErrorData `json:"data"`
	}

	// ErrorData carries the user-facing failure message.
	ErrorData struct {
		Message string `json:"message"`
	}

	// AppendMessagePayload is the wire payload for append-message frames.
	// Message is the JSON encoding of a chat.Message.
	AppendMessagePayload struct {
		Message json.RawMessage `json:"message"`
	}

	// Base provides a default implementation of Event. Embed this struct in
	// concrete event types to inherit the Type(), RunID(), ChatID(), and
	// Payload() methods.
	//
	// Field names are abbreviated to minimize visual clutter when constructing
	// events, since Base fields are rarely accessed directly.
	Base struct {
		// t is the event type constant.
		t EventType
		// r is the generation run identifier that produced this event.
		r string
		// c is the chat identifier for the run that produced this event.
		c string
		// p is the JSON-serializable payload returned by Payload().
		p any
	}
)

// EventType enumerates stream frame flavors. The constant values are the wire
// "type" discriminators.
type EventType string

const (
	// EventThinkingStart opens the thinking indicator for a run.
	EventThinkingStart EventType = "thinking-start"

	// EventThinkingUpdate reports an intermediate generation step.
	EventThinkingUpdate EventType = "thinking-update"

	// EventThinkingEnd closes the thinking indicator.
	EventThinkingEnd EventType = "thinking-end"

	// EventToolProgress reports tool completion percentage.
	EventToolProgress EventType = "tool-progress"

	// EventQuestionGenerated streams one generated due-diligence question.
	EventQuestionGenerated EventType = "question-generated"

	// EventCompletionMeta is the terminal frame of a successful run.
	EventCompletionMeta EventType = "completion-meta"

	// EventError is the terminal frame of a failed run.
	EventError EventType = "error"

	// EventAppendMessage replays a persisted message as a single frame.
	EventAppendMessage EventType = "append-message"

	// EventArtifactID announces an artifact identifier.
	EventArtifactID EventType = "id"

	// EventArtifactTitle announces an artifact title.
	EventArtifactTitle EventType = "title"

	// EventClear resets the client's artifact work area.
	EventClear EventType = "clear"

	// EventFinish marks an artifact as complete.
	EventFinish EventType = "finish"

	// EventQuestionsMeta announces the total question count for a run.
	EventQuestionsMeta EventType = "questions-meta"
)

// NewBase constructs a Base event with the given type, run ID, chat ID, and
// payload.
func NewBase(t EventType, runID, chatID string, payload any) Base {
	return Base{t: t, r: runID, c: chatID, p: payload}
}

// Type implements Event.Type.
func (e Base) Type() EventType { return e.t }

// RunID implements Event.RunID.
func (e Base) RunID() string { return e.r }

// ChatID implements Event.ChatID.
func (e Base) ChatID() string { return e.c }

// Payload implements Event.Payload.
func (e Base) Payload() any { return e.p }

// NewThinkingStart builds a thinking-start event.
func NewThinkingStart(runID, chatID, content string) *ThinkingStart {
	d := ThinkingPayload{Content: content}
	return &ThinkingStart{Base: NewBase(EventThinkingStart, runID, chatID, d), Data: d}
}

// NewThinkingUpdate builds a thinking-update event. stepType and toolName may
// be empty.
func NewThinkingUpdate(runID, chatID, content, stepType, toolName string) *ThinkingUpdate {
	d := ThinkingUpdatePayload{Content: content, StepType: stepType, ToolName: toolName}
	return &ThinkingUpdate{Base: NewBase(EventThinkingUpdate, runID, chatID, d), Data: d}
}

// NewThinkingEnd builds a thinking-end event.
func NewThinkingEnd(runID, chatID, content string) *ThinkingEnd {
	d := ThinkingPayload{Content: content}
	return &ThinkingEnd{Base: NewBase(EventThinkingEnd, runID, chatID, d), Data: d}
}

// NewToolProgress builds a tool-progress event.
func NewToolProgress(runID, chatID, toolName, content string, progress int) *ToolProgress {
	d := ToolProgressPayload{Content: content, ToolName: toolName, Progress: progress}
	return &ToolProgress{Base: NewBase(EventToolProgress, runID, chatID, d), Data: d}
}

// NewQuestionGenerated builds a question-generated event. content is either a
// string or a Question; questionType is "custom" or "template".
func NewQuestionGenerated(runID, chatID string, content any, index int, questionType string) *QuestionGenerated {
	d := QuestionGeneratedPayload{Content: content, QuestionIndex: index, QuestionType: questionType}
	return &QuestionGenerated{Base: NewBase(EventQuestionGenerated, runID, chatID, d), Data: d}
}

// NewCompletionMeta builds the terminal completion-meta frame. content is the
// JSON-encoded run summary.
func NewCompletionMeta(runID, chatID, content string) *CompletionMeta {
	d := ContentPayload{Content: content}
	return &CompletionMeta{Base: NewBase(EventCompletionMeta, runID, chatID, d), Data: d}
}

// NewError builds a terminal error frame carrying the user-facing message.
func NewError(runID, chatID, message string) *Error {
	d := ErrorPayload{Data: ErrorData{Message: message}}
	return &Error{Base: NewBase(EventError, runID, chatID, d), Data: d}
}

// NewAppendMessage builds an append-message frame from a JSON-encoded message.
func NewAppendMessage(runID, chatID string, message json.RawMessage) *AppendMessage {
	d := AppendMessagePayload{Message: message}
	return &AppendMessage{Base: NewBase(EventAppendMessage, runID, chatID, d), Data: d}
}

// NewArtifactID builds an id bookkeeping event.
func NewArtifactID(runID, chatID string, content any) *ArtifactID {
	d := ContentPayload{Content: content}
	return &ArtifactID{Base: NewBase(EventArtifactID, runID, chatID, d), Data: d}
}

// NewArtifactTitle builds a title bookkeeping event.
func NewArtifactTitle(runID, chatID string, content any) *ArtifactTitle {
	d := ContentPayload{Content: content}
	return &ArtifactTitle{Base: NewBase(EventArtifactTitle, runID, chatID, d), Data: d}
}

// NewClear builds a clear bookkeeping event.
func NewClear(runID, chatID string) *Clear {
	d := ContentPayload{Content: ""}
	return &Clear{Base: NewBase(EventClear, runID, chatID, d), Data: d}
}

// NewFinish builds a finish bookkeeping event.
func NewFinish(runID, chatID string) *Finish {
	d := ContentPayload{Content: ""}
	return &Finish{Base: NewBase(EventFinish, runID, chatID, d), Data: d}
}

// NewQuestionsMeta builds a questions-meta event announcing the total count.
func NewQuestionsMeta(runID, chatID string, total int) *QuestionsMeta {
	d := ContentPayload{Content: total}
	return &QuestionsMeta{Base: NewBase(EventQuestionsMeta, runID, chatID, d), Data: d}
}
