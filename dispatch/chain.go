package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/policypal-ai/voicegraph/observability"
)

// Backend is one implementation of a degradable capability. A backend either
// succeeds or is charged one failed attempt; the chain never retries it.
type Backend[Req, Resp any] interface {
	Name() string
	Call(ctx context.Context, req Req) (Resp, error)
}

// Annotator fills kind-specific accounting fields on a record after a
// successful call (segment count for transcription, output size for
// synthesis). The request is available for input-side accounting.
type Annotator[Req, Resp any] func(rec *CallRecord, req Req, resp Resp)

// Result is the accepted outcome of a dispatch. FallbackTriggered is true
// only when a backend after the first produced the accepted value.
type Result[Resp any] struct {
	Value             Resp
	Backend           string
	Latency           time.Duration
	FallbackTriggered bool
}

// Chain dispatches a request across an ordered list of backends. The backend
// order is fixed configuration; construction happens once at startup and the
// chain is safe for concurrent use by independent sessions.
type Chain[Req, Resp any] struct {
	kind     Kind
	backends []Backend[Req, Resp]
	timeout  time.Duration
	annotate Annotator[Req, Resp]
	observer observability.Observer
}

// Option configures a Chain.
type Option[Req, Resp any] func(*Chain[Req, Resp])

// WithTimeout bounds each individual backend attempt. A timed-out attempt is
// recorded as a failure and the chain moves on to the next backend.
func WithTimeout[Req, Resp any](d time.Duration) Option[Req, Resp] {
	return func(c *Chain[Req, Resp]) { c.timeout = d }
}

// WithAnnotator sets the kind-specific accounting hook.
func WithAnnotator[Req, Resp any](a Annotator[Req, Resp]) Option[Req, Resp] {
	return func(c *Chain[Req, Resp]) { c.annotate = a }
}

// WithObserver sets the chain's event observer.
func WithObserver[Req, Resp any](o observability.Observer) Option[Req, Resp] {
	return func(c *Chain[Req, Resp]) { c.observer = o }
}

// NewChain creates a Chain for the given capability kind with backends in
// fallback order.
func NewChain[Req, Resp any](kind Kind, backends []Backend[Req, Resp], opts ...Option[Req, Resp]) *Chain[Req, Resp] {
	c := &Chain[Req, Resp]{
		kind:     kind,
		backends: backends,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind returns the capability kind this chain serves.
func (c *Chain[Req, Resp]) Kind() Kind {
	return c.kind
}

// Dispatch invokes backends in order until one succeeds, recording every
// attempt into sink. The first success short-circuits the chain; at most one
// result is accepted per dispatch and attempts before it stay recorded.
//
// When every backend fails, Dispatch returns ErrExhausted (wrapped with the
// kind) and emits an error-level event; the caller decides how to degrade.
func (c *Chain[Req, Resp]) Dispatch(ctx context.Context, req Req, turn int, sink Sink) (Result[Resp], error) {
	if len(c.backends) == 0 {
		return Result[Resp]{}, fmt.Errorf("%s dispatch: no backends configured: %w", c.kind, ErrExhausted)
	}

	for i, backend := range c.backends {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if c.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}

		start := time.Now()
		resp, err := backend.Call(attemptCtx, req)
		latency := time.Since(start)
		cancel()

		rec := CallRecord{
			Backend: backend.Name(),
			Kind:    c.kind,
			Turn:    turn,
			Latency: latency,
		}

		if err != nil {
			rec.Status = StatusFailed
			rec.ErrorKind = errorKind(err)
			sink.Record(rec)

			c.observer.OnEvent(ctx, observability.Event{
				Type:      EventAttemptFailed,
				Level:     observability.LevelWarning,
				Timestamp: time.Now(),
				Source:    "dispatch." + string(c.kind),
				Data: map[string]any{
					"backend":    backend.Name(),
					"turn":       turn,
					"latency_ms": latency.Milliseconds(),
					"error_kind": rec.ErrorKind,
					"error":      err.Error(),
				},
			})
			continue
		}

		rec.Status = StatusSuccess
		rec.FallbackTriggered = i > 0
		if c.annotate != nil {
			c.annotate(&rec, req, resp)
		}
		sink.Record(rec)

		if i > 0 {
			c.observer.OnEvent(ctx, observability.Event{
				Type:      EventFallback,
				Level:     observability.LevelWarning,
				Timestamp: time.Now(),
				Source:    "dispatch." + string(c.kind),
				Data: map[string]any{
					"backend": backend.Name(),
					"turn":    turn,
					"skipped": i,
				},
			})
		}

		return Result[Resp]{
			Value:             resp,
			Backend:           backend.Name(),
			Latency:           latency,
			FallbackTriggered: i > 0,
		}, nil
	}

	// Every backend in the chain failed; nothing can serve this capability.
	c.observer.OnEvent(ctx, observability.Event{
		Type:      EventExhausted,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    "dispatch." + string(c.kind),
		Data: map[string]any{
			"turn":     turn,
			"backends": len(c.backends),
		},
	})

	return Result[Resp]{Backend: "all"}, fmt.Errorf("%s dispatch: %w", c.kind, ErrExhausted)
}
