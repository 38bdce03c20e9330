// Package router turns intents from any UI surface into daemon calls and
// hands exactly one Result back to the caller.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/logctx"
	"github.com/netdout/relay/internal/telemetry"
)

// ErrAbandoned is returned by Await when the caller stops waiting before the
// reply arrives. The daemon call itself keeps running.
var ErrAbandoned = errors.New("caller stopped waiting for reply")

// JobClient is the daemon side of the router.
type JobClient interface {
	Submit(ctx context.Context, req daemon.JobRequest) (json.RawMessage, error)
	QueryStatus(ctx context.Context, handle daemon.JobHandle) (json.RawMessage, error)
}

// Dispatcher is anything that can claim and answer intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent Intent) (<-chan Result, bool)
}

// Observer is told about every settled intent, after its reply has been delivered.
type Observer interface {
	IntentSettled(ctx context.Context, intent Intent, result Result)
}

// Option configures a Router.
type Option func(*Router)

// WithTelemetry records intent metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Router) {
		r.telemetry = tel
	}
}

// WithObserver registers an observer of settled intents.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// Router dispatches Queue and Status intents to a JobClient. Each intent runs
// in its own goroutine; concurrent intents share nothing and settle in
// whatever order the daemon answers them.
type Router struct {
	client    JobClient
	telemetry *telemetry.Telemetry
	observers []Observer
}

func New(client JobClient, opts ...Option) *Router {
	r := &Router{client: client}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

var _ Dispatcher = (*Router)(nil)

// Dispatch claims Queue and Status intents and returns a channel that
// receives exactly one Result and is then closed. Anything else is left
// unclaimed (nil, false).
//
// The daemon call is detached from ctx cancellation: a caller that goes
// away does not abort it. ctx still provides the logger and request id.
func (r *Router) Dispatch(ctx context.Context, intent Intent) (<-chan Result, bool) {
	switch intent.(type) {
	case QueueIntent, StatusIntent:
	default:
		return nil, false
	}

	intentID := uuid.New().String()
	ctx = logctx.With(context.WithoutCancel(ctx), "intent_id", intentID, "intent_type", intent.Type())
	logger := logctx.LoggerFromContext(ctx)

	logger.DebugContext(ctx, "intent received", "state", "received")

	reply := make(chan Result, 1)

	go func() {
		defer close(reply)

		start := time.Now()

		r.telemetry.IncrementIntentsInFlight(ctx)
		logger.DebugContext(ctx, "intent in flight", "state", "in_flight")

		result := r.run(ctx, intent)

		r.telemetry.DecrementIntentsInFlight(ctx)

		outcome := "succeeded"
		if !result.OK {
			outcome = "failed"

			logger.WarnContext(ctx, "intent failed", "state", outcome, "err", result.Error)
		} else {
			logger.DebugContext(ctx, "intent succeeded", "state", outcome)
		}

		r.telemetry.RecordIntent(ctx, string(intent.Type()), outcome, time.Since(start))

		reply <- result

		for _, o := range r.observers {
			r.notify(ctx, o, intent, result)
		}
	}()

	return reply, true
}

// DispatchMessage decodes a wire message and dispatches it.
func (r *Router) DispatchMessage(ctx context.Context, m Message) (<-chan Result, bool) {
	intent, ok := m.Intent()
	if !ok {
		return nil, false
	}

	return r.Dispatch(ctx, intent)
}

// run performs the daemon call. A panic becomes a failed Result so the
// caller still gets its single reply.
func (r *Router) run(ctx context.Context, intent Intent) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "intent panic",
				"panic", p,
				"stack", string(debug.Stack()))

			result = Err(fmt.Errorf("internal error: %v", p))
		}
	}()

	var (
		payload json.RawMessage
		err     error
	)

	switch in := intent.(type) {
	case QueueIntent:
		payload, err = r.client.Submit(ctx, in.Request)
	case StatusIntent:
		payload, err = r.client.QueryStatus(ctx, in.ID)
	}

	if err != nil {
		return Err(err)
	}

	return Ok(payload)
}

func (r *Router) notify(ctx context.Context, o Observer, intent Intent, result Result) {
	defer func() {
		if p := recover(); p != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "observer panic", "panic", p)
		}
	}()

	o.IntentSettled(ctx, intent, result)
}

// Chain offers an intent to each dispatcher in turn and returns the first claim.
type Chain []Dispatcher

func (c Chain) Dispatch(ctx context.Context, intent Intent) (<-chan Result, bool) {
	for _, d := range c {
		if reply, ok := d.Dispatch(ctx, intent); ok {
			return reply, true
		}
	}

	return nil, false
}

// Await blocks until the reply arrives or ctx is done.
func Await(ctx context.Context, reply <-chan Result) (Result, error) {
	select {
	case result, ok := <-reply:
		if !ok {
			return Result{}, errors.New("reply channel closed without a result")
		}

		return result, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
	}
}
