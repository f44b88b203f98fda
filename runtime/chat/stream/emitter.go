package stream

import (
	"context"
	"errors"
	"sync"

	"goa.design/clue/log"
)

// ErrEmitterClosed is returned by Emit once the emitter has gone terminal.
var ErrEmitterClosed = errors.New("emitter is closed")

// Emitter fans stream events for a single run out to registered sinks. Events
// are delivered synchronously in the emitting goroutine, in emission order,
// so every sink observes the same sequence. A sink whose Send fails is
// dropped and closed; the run continues for the remaining sinks.
//
// The emitter goes terminal exactly once, either through Close (the caller
// already emitted the terminal frame) or CloseWithError (the emitter sends a
// final error frame first). After that, Emit returns ErrEmitterClosed.
type Emitter struct {
	runID  string
	chatID string

	mu     sync.Mutex
	sinks  []Sink
	closed bool
}

// NewEmitter constructs an emitter for the given run.
func NewEmitter(runID, chatID string) *Emitter {
	return &Emitter{runID: runID, chatID: chatID}
}

// RunID returns the run this emitter belongs to.
func (e *Emitter) RunID() string { return e.runID }

// ChatID returns the chat the run belongs to.
func (e *Emitter) ChatID() string { return e.chatID }

// Subscribe registers an additional sink. Safe to call concurrently with
// Emit; a sink added mid-run receives events from that point on. Subscribing
// after the emitter closed returns ErrEmitterClosed and the sink is not
// retained.
func (e *Emitter) Subscribe(sink Sink) error {
	if sink == nil {
		return errors.New("sink is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEmitterClosed
	}
	e.sinks = append(e.sinks, sink)
	return nil
}

// Emit delivers the event to every registered sink in order. Returns
// ErrEmitterClosed once the emitter has gone terminal; sink delivery failures
// are logged and never returned.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if event == nil {
		return errors.New("event is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEmitterClosed
	}
	e.send(ctx, event)
	return nil
}

// CloseWithError emits a final error frame carrying the given user-facing
// message, then marks the emitter terminal and closes all sinks. Idempotent:
// only the first terminal transition emits a frame.
func (e *Emitter) CloseWithError(ctx context.Context, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.send(ctx, NewError(e.runID, e.chatID, message))
	e.finish(ctx)
}

// Close marks the emitter terminal without emitting a frame and closes all
// sinks. Used after the caller has emitted the terminal frame itself.
// Idempotent.
func (e *Emitter) Close(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.finish(ctx)
}

// send delivers to all sinks, dropping any that fail. Callers hold e.mu.
func (e *Emitter) send(ctx context.Context, event Event) {
	kept := e.sinks[:0]
	for _, s := range e.sinks {
		if err := s.Send(ctx, event); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "drop stream sink"}, log.KV{K: "run_id", V: e.runID}, log.KV{K: "event", V: string(event.Type())})
			if cerr := s.Close(ctx); cerr != nil {
				log.Error(ctx, cerr, log.KV{K: "msg", V: "close dropped sink"}, log.KV{K: "run_id", V: e.runID})
			}
			continue
		}
		kept = append(kept, s)
	}
	e.sinks = kept
}

// finish closes and releases all sinks. Callers hold e.mu.
func (e *Emitter) finish(ctx context.Context) {
	e.closed = true
	for _, s := range e.sinks {
		if err := s.Close(ctx); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "close stream sink"}, log.KV{K: "run_id", V: e.runID})
		}
	}
	e.sinks = nil
}
