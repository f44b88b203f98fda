// Package resume defines the optional resumable-stream capability: a
// registry that mirrors run streams into durable storage so clients can
// reattach after a disconnect.
//
// A nil Registry means resumability is disabled. Callers decide once at
// process start and pass nil when no backing store is configured; every
// registry operation must then be skipped.
package resume

import (
	"context"

	"github.com/korefocus/diligence/runtime/chat/stream"
)

type (
	// Registry mirrors live run streams into durable per-run storage and
	// hands out attachments that replay them. Implementations must not lose
	// events when Register and Attach race for the same run ID.
	Registry interface {
		// Register attaches a publishing sink to the emitter that mirrors
		// every emitted frame into the run's durable stream, and marks the
		// run open. The sink follows the emitter's lifecycle: when the
		// emitter closes, the run is marked closed.
		Register(ctx context.Context, runID string, em *stream.Emitter) error

		// Attach returns an attachment replaying the run's stream from its
		// beginning and then following the live tail, gap-free and in order.
		// Returns nil when the run has closed or was never registered.
		Attach(ctx context.Context, runID string) (*Attachment, error)
	}

	// Attachment is one reader of a resumed run stream.
	Attachment struct {
		// Frames delivers the stored frames in order, live tail included.
		// The channel closes when the run ends or Cancel is called.
		Frames <-chan []byte
		// Errs reports a consumption failure. At most one error is sent; a
		// close without a send is not a failure.
		Errs <-chan error
		// Cancel stops consumption and releases the attachment's resources.
		// Idempotent.
		Cancel func()
	}
)
