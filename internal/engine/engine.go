// Package engine applies the turn lifecycle, allocation and occupancy rules
// on top of a store, bounding every operation in time and announcing
// committed changes through a notifier.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qms/turn-service/internal/metrics"
	"qms/turn-service/internal/notify"
	"qms/turn-service/internal/store"
	"qms/turn-service/internal/telemetry"
)

const (
	defaultOperationTimeout = 10 * time.Second
	defaultNotifyTimeout    = 2 * time.Second
)

type Options struct {
	Notifier         notify.Notifier
	Logger           zerolog.Logger
	Tracer           trace.Tracer
	OperationTimeout time.Duration
	NotifyTimeout    time.Duration
	Now              func() time.Time
}

type Engine struct {
	store         store.Store
	notifier      notify.Notifier
	logger        zerolog.Logger
	tracer        trace.Tracer
	opTimeout     time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

func New(st store.Store, opts Options) *Engine {
	e := &Engine{
		store:         st,
		notifier:      opts.Notifier,
		logger:        opts.Logger.With().Str("component", "engine").Logger(),
		tracer:        opts.Tracer,
		opTimeout:     opts.OperationTimeout,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer()
	}
	if e.opTimeout <= 0 {
		e.opTimeout = defaultOperationTimeout
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = defaultNotifyTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) Ping(ctx context.Context) error {
	return e.run(ctx, "ping", func(ctx context.Context) error {
		return e.store.Ping(ctx)
	})
}

// retryable reports failures worth one more attempt: transient storage
// errors and lost races on the code or request id indexes.
func retryable(err error) bool {
	return errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, store.ErrCodeTaken) ||
		errors.Is(err, store.ErrDuplicateRequest)
}

// run executes fn under the operation deadline inside a span, retrying
// once when the failure is retryable and the caller is still waiting.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "engine."+op)
	defer span.End()
	started := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}()

	err := e.attempt(ctx, fn)
	if err != nil && retryable(err) && ctx.Err() == nil {
		metrics.Retries.WithLabelValues(op).Inc()
		e.logger.Debug().Err(err).Str("operation", op).Msg("retrying operation")
		span.AddEvent("retry")
		err = e.attempt(ctx, fn)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", string(store.KindOf(err))))
	}
	return err
}

func (e *Engine) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && store.KindOf(err) == "" && errors.Is(err, context.DeadlineExceeded) {
		return store.Unavailable(err)
	}
	return err
}

// emit delivers events after commit. The caller's cancellation does not
// abort delivery; the notify timeout bounds it instead.
func (e *Engine) emit(ctx context.Context, events ...notify.Event) {
	base := context.WithoutCancel(ctx)
	for _, event := range events {
		nctx, cancel := context.WithTimeout(base, e.notifyTimeout)
		err := e.notifier.Notify(nctx, event)
		cancel()
		if err != nil {
			metrics.NotificationFailures.WithLabelValues(string(event.Kind)).Inc()
			log := e.logger.Warn().Err(err).Str("event", string(event.Kind))
			if event.Turn != nil {
				log = log.Str("turn_id", event.Turn.TurnID)
			}
			log.Msg("notification failed")
		}
	}
}

func resultOf(err error) string {
	if err == nil {
		return metrics.Result("")
	}
	if kind := store.KindOf(err); kind != "" {
		return metrics.Result(string(kind))
	}
	return "error"
}
