// Package pulse implements the resumable-run registry on goa.design/pulse
// streams over Redis. Every frame emitted for a registered run is mirrored
// into a durable per-run stream (`run/<id>`); clients that reconnect attach
// to the stream and replay it from the beginning before following the live
// tail. An open-run marker key in Redis distinguishes live runs from closed
// ones.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "github.com/korefocus/diligence/features/stream/pulse/clients/pulse"
	"github.com/korefocus/diligence/runtime/chat/resume"
	"github.com/korefocus/diligence/runtime/chat/stream"
)

// DefaultOpenTTL bounds how long a run stays marked open when its process
// dies without closing the emitter. Attachments to such runs end when Redis
// expires the marker.
const DefaultOpenTTL = 10 * time.Minute

type (
	// RegistryOptions configures a Registry.
	RegistryOptions struct {
		// Client is the Pulse client used to publish and consume run
		// streams. Required.
		Client clientspulse.Client
		// Redis is the connection used for open-run marker keys. Required.
		Redis *redis.Client
		// OpenTTL is the safety bound on the open-run marker. Zero means
		// DefaultOpenTTL.
		OpenTTL time.Duration
		// Buffer is the attachment frame channel capacity. Defaults to 64.
		Buffer int
	}

	// Registry implements resume.Registry on Pulse streams.
	Registry struct {
		client  clientspulse.Client
		redis   *redis.Client
		openTTL time.Duration
		buffer  int
	}

	// publisher is the emitter sink that mirrors frames into the run stream.
	publisher struct {
		registry *Registry
		runID    string
		handle   clientspulse.Stream
		once     sync.Once
	}
)

// NewRegistry constructs a Pulse-backed registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	openTTL := opts.OpenTTL
	if openTTL <= 0 {
		openTTL = DefaultOpenTTL
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Registry{
		client:  opts.Client,
		redis:   opts.Redis,
		openTTL: openTTL,
		buffer:  buffer,
	}, nil
}

// Register implements resume.Registry. It marks the run open before attaching
// the publishing sink so a concurrent Attach never misses the run.
func (r *Registry) Register(ctx context.Context, runID string, em *stream.Emitter) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if em == nil {
		return errors.New("emitter is required")
	}
	handle, err := r.client.Stream(streamName(runID))
	if err != nil {
		return fmt.Errorf("register run %s: %w", runID, err)
	}
	if err := r.redis.Set(ctx, openKey(runID), "1", r.openTTL).Err(); err != nil {
		return fmt.Errorf("register run %s: mark open: %w", runID, err)
	}
	return em.Subscribe(&publisher{registry: r, runID: runID, handle: handle})
}

// Attach implements resume.Registry. Returns nil when the run has closed or
// was never registered.
func (r *Registry) Attach(ctx context.Context, runID string) (*resume.Attachment, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	open, err := r.redis.Exists(ctx, openKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("attach run %s: %w", runID, err)
	}
	if open == 0 {
		return nil, nil
	}
	handle, err := r.client.Stream(streamName(runID))
	if err != nil {
		return nil, fmt.Errorf("attach run %s: %w", runID, err)
	}
	// One consumer group per attachment so each reader replays from the
	// stream start independently.
	sink, err := handle.NewSink(ctx, "attach-"+uuid.NewString(), streamopts.WithSinkStartAtOldest())
	if err != nil {
		return nil, fmt.Errorf("attach run %s: %w", runID, err)
	}
	frames := make(chan []byte, r.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go consume(runCtx, sink, frames, errs)
	var once sync.Once
	cancelFunc := func() {
		once.Do(func() {
			cancel()
			sink.Close(context.Background())
		})
	}
	return &resume.Attachment{Frames: frames, Errs: errs, Cancel: cancelFunc}, nil
}

// consume reads frames from the Pulse sink, delivers them in order, and acks
// each one. It returns after delivering a terminal frame, when ctx is
// canceled, or when the sink channel closes. Only out is closed on return:
// errs stays open so readers draining buffered frames never mistake a closed
// error channel for a failure.
func consume(ctx context.Context, sink clientspulse.Sink, out chan<- []byte, errs chan<- error) {
	defer close(out)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			frame := evt.Payload
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
			if err := sink.Ack(ctx, evt); err != nil {
				errs <- fmt.Errorf("pulse ack: %w", err)
				return
			}
			if decoded, err := stream.DecodeFrame(frame); err == nil && stream.IsTerminal(decoded.Type()) {
				return
			}
		}
	}
}

// Send implements stream.Sink by mirroring the frame into the run stream.
func (p *publisher) Send(ctx context.Context, event stream.Event) error {
	frame, err := stream.EncodeFrame(event)
	if err != nil {
		return err
	}
	if _, err := p.handle.Add(ctx, string(event.Type()), frame); err != nil {
		return err
	}
	return nil
}

// Close implements stream.Sink by marking the run closed. Idempotent.
func (p *publisher) Close(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if derr := p.registry.redis.Del(ctx, openKey(p.runID)).Err(); derr != nil {
			log.Error(ctx, derr, log.KV{K: "msg", V: "clear open-run marker"}, log.KV{K: "run_id", V: p.runID})
			err = derr
		}
	})
	return err
}

func streamName(runID string) string { return "run/" + runID }

func openKey(runID string) string { return "run:" + runID + ":open" }
