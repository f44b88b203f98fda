package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []Event
	closed bool

	sendErr error
}

func (s *captureSink) Send(_ context.Context, event Event) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.closed = true
	return nil
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type()
	}
	return out
}

func TestEmitterDeliversInOrderToAllSinks(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter("run-1", "chat-1")
	a, b := &captureSink{}, &captureSink{}
	require.NoError(t, em.Subscribe(a))
	require.NoError(t, em.Subscribe(b))

	require.NoError(t, em.Emit(ctx, NewThinkingStart("run-1", "chat-1", "Analyzing your request...")))
	require.NoError(t, em.Emit(ctx, NewThinkingEnd("run-1", "chat-1", "Analysis complete")))
	require.NoError(t, em.Emit(ctx, NewCompletionMeta("run-1", "chat-1", "{}")))
	em.Close(ctx)

	want := []EventType{EventThinkingStart, EventThinkingEnd, EventCompletionMeta}
	require.Equal(t, want, types(a.events))
	require.Equal(t, want, types(b.events))
	require.True(t, a.closed)
	require.True(t, b.closed)
}

func TestEmitterRejectsEmitAfterClose(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter("run-1", "chat-1")
	em.Close(ctx)

	err := em.Emit(ctx, NewFinish("run-1", "chat-1"))
	require.ErrorIs(t, err, ErrEmitterClosed)
	require.ErrorIs(t, em.Subscribe(&captureSink{}), ErrEmitterClosed)
}

func TestEmitterCloseWithErrorEmitsSingleTerminalFrame(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter("run-1", "chat-1")
	sink := &captureSink{}
	require.NoError(t, em.Subscribe(sink))

	em.CloseWithError(ctx, "Oops, an error occurred while processing your request!")
	em.CloseWithError(ctx, "second close must not emit")
	em.Close(ctx)

	require.Len(t, sink.events, 1)
	frame, ok := sink.events[0].(*Error)
	require.True(t, ok)
	require.Equal(t, "Oops, an error occurred while processing your request!", frame.Data.Data.Message)
	require.True(t, sink.closed)
}

func TestEmitterDropsFailingSinkAndContinues(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter("run-1", "chat-1")
	broken := &captureSink{sendErr: errors.New("client went away")}
	healthy := &captureSink{}
	require.NoError(t, em.Subscribe(broken))
	require.NoError(t, em.Subscribe(healthy))

	require.NoError(t, em.Emit(ctx, NewThinkingStart("run-1", "chat-1", "Analyzing your request...")))
	require.True(t, broken.closed)

	// The run keeps streaming to the remaining sink.
	require.NoError(t, em.Emit(ctx, NewThinkingEnd("run-1", "chat-1", "Analysis complete")))
	require.Equal(t, []EventType{EventThinkingStart, EventThinkingEnd}, types(healthy.events))
	require.Empty(t, broken.events)
}

func TestEmitterSubscribeMidRun(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter("run-1", "chat-1")
	early := &captureSink{}
	require.NoError(t, em.Subscribe(early))
	require.NoError(t, em.Emit(ctx, NewThinkingStart("run-1", "chat-1", "Analyzing your request...")))

	late := &captureSink{}
	require.NoError(t, em.Subscribe(late))
	require.NoError(t, em.Emit(ctx, NewThinkingEnd("run-1", "chat-1", "Analysis complete")))

	require.Equal(t, []EventType{EventThinkingStart, EventThinkingEnd}, types(early.events))
	require.Equal(t, []EventType{EventThinkingEnd}, types(late.events))
}
