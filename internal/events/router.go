package events

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"odinbook/internal/models"
	"odinbook/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrRouterClosed is returned by Publish after Close.
var ErrRouterClosed = errors.New("event router closed")

// Handler processes one event. It must be idempotent: the router redelivers
// an event whose previous attempt failed.
type Handler func(ctx context.Context, e Event) error

// DeadLetterSink stores events the router gave up on.
type DeadLetterSink interface {
	Save(ctx context.Context, dl *models.DeadLetter) error
}

// Options configures a Router.
type Options struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryInitial   time.Duration
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 100 * time.Millisecond
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = observability.Logger
	}
}

// Router dispatches events on a fixed set of shards. Every key maps to one
// shard, so events with the same key are handled one at a time in publish
// order while other shards proceed in parallel.
type Router struct {
	opts    Options
	handler Handler
	sinks   []DeadLetterSink
	shards  []chan Event
	workers sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	pendingMu sync.Mutex
	pending   int
	idle      chan struct{}
}

// NewRouter starts the shard workers. The first sink is the primary
// dead-letter store; the rest are mirrors.
func NewRouter(handler Handler, opts Options, sinks ...DeadLetterSink) *Router {
	opts.withDefaults()
	r := &Router{
		opts:    opts,
		handler: handler,
		sinks:   sinks,
		shards:  make([]chan Event, opts.Workers),
	}
	for i := range r.shards {
		r.shards[i] = make(chan Event, opts.QueueSize)
		r.workers.Add(1)
		go r.run(r.shards[i])
	}
	return r
}

func (r *Router) shardFor(key string) chan Event {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Publish enqueues e behind every earlier event with the same key. It blocks
// while the shard queue is full. An event that cannot be enqueued is
// dead-lettered rather than lost; the error is returned only when that fails
// too.
func (r *Router) Publish(ctx context.Context, e Event) error {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()

	if r.closed {
		return r.deadLetterUnpublished(ctx, e, ErrRouterClosed)
	}

	r.track(1)
	select {
	case r.shardFor(e.Key()) <- e:
		observability.EventQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		r.track(-1)
		return r.deadLetterUnpublished(ctx, e, ctx.Err())
	}
}

func (r *Router) deadLetterUnpublished(ctx context.Context, e Event, cause error) error {
	err := r.deadLetter(context.WithoutCancel(ctx), e, 0, fmt.Errorf("publish: %w", cause))
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, errors.Join(cause, err))
	}
	return nil
}

// Replay republishes a dead-lettered event under its original id, so
// notifications that were already materialized are not duplicated.
func (r *Router) Replay(ctx context.Context, dl *models.DeadLetter) error {
	e, err := Decode(dl.Payload)
	if err != nil {
		return err
	}
	return r.Publish(ctx, e)
}

// Flush blocks until every published event has been handled or ctx ends.
func (r *Router) Flush(ctx context.Context) error {
	r.pendingMu.Lock()
	idle := r.idle
	r.pendingMu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, drains the queues and waits for the workers.
func (r *Router) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	for _, shard := range r.shards {
		close(shard)
	}
	r.closeMu.Unlock()
	r.workers.Wait()
}

func (r *Router) track(delta int) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending += delta
	switch {
	case r.pending == 0 && r.idle != nil:
		close(r.idle)
		r.idle = nil
	case r.pending > 0 && r.idle == nil:
		r.idle = make(chan struct{})
	}
}

func (r *Router) run(shard chan Event) {
	defer r.workers.Done()
	for e := range shard {
		observability.EventQueueDepth.Dec()
		r.dispatch(e)
		r.track(-1)
	}
}

// dispatch runs the handler with a per-attempt timeout, retrying transient
// failures with exponential backoff. Permanent failures and exhausted
// retries end in the dead-letter sinks.
func (r *Router) dispatch(e Event) {
	start := time.Now()
	ctx := observability.WithEventID(context.Background(), e.ID)
	span, ctx := observability.NewSpan(ctx, "events."+string(e.Type), trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.AddAttributes(
		attribute.String("event.id", e.ID),
		attribute.String("event.type", string(e.Type)),
		attribute.String("event.key", e.Key()),
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.RetryInitial
	b.MaxInterval = 10 * r.opts.RetryInitial

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := r.attempt(ctx, e)
		if err != nil && !isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.EventRetries.WithLabelValues(string(e.Type)).Inc()
			r.opts.Logger.WarnContext(ctx, "retrying event",
				slog.String("event_type", string(e.Type)),
				slog.Int("attempt", attempts),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	observability.EventDispatchLatency.WithLabelValues(string(e.Type)).Observe(time.Since(start).Seconds())

	if err == nil {
		observability.EventsDispatched.WithLabelValues(string(e.Type), "ok").Inc()
		return
	}

	span.SetError(err)
	observability.EventsDispatched.WithLabelValues(string(e.Type), "dead_letter").Inc()
	if dlErr := r.deadLetter(ctx, e, attempts, err); dlErr != nil {
		r.opts.Logger.ErrorContext(ctx, "dead letter sink failed", slog.String("error", dlErr.Error()))
	}
}

func (r *Router) attempt(ctx context.Context, e Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.ErrorContext(ctx, "event handler panic",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = models.NewInternalError(fmt.Errorf("handler panic: %v", rec))
		}
	}()
	return r.handler(ctx, e)
}

// isRetryable treats typed application errors as final unless they are
// transient; untyped errors and attempt timeouts are retried.
func isRetryable(err error) bool {
	if models.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var appErr *models.AppError
	return !errors.As(err, &appErr)
}

// deadLetter records e in every sink. The error log line alone keeps the
// event visible when all sinks fail.
func (r *Router) deadLetter(ctx context.Context, e Event, attempts int, cause error) error {
	observability.DeadLetters.WithLabelValues(string(e.Type)).Inc()
	payload, encErr := e.Encode()
	if encErr != nil {
		payload = fmt.Sprintf("%+v", e)
	}
	r.opts.Logger.ErrorContext(ctx, "event dead-lettered",
		slog.String("event_id", e.ID),
		slog.String("event_type", string(e.Type)),
		slog.String("key", e.Key()),
		slog.Int("attempts", attempts),
		slog.String("payload", payload),
		slog.String("error", cause.Error()),
	)

	dl := &models.DeadLetter{
		EventID:   e.ID,
		EventType: string(e.Type),
		Key:       e.Key(),
		Payload:   payload,
		Error:     cause.Error(),
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	var errs []error
	for _, sink := range r.sinks {
		copyDL := *dl
		if err := sink.Save(ctx, &copyDL); err != nil {
			errs = append(errs, err)
		}
	}
	if len(r.sinks) > 0 && len(errs) == len(r.sinks) {
		return errors.Join(errs...)
	}
	return nil
}
