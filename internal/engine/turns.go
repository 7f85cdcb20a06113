package engine

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"qms/turn-service/internal/metrics"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/notify"
	"qms/turn-service/internal/store"
)

// Action identifies a turn operation and who performs it. DoctorID is only
// read by Call.
type Action struct {
	TurnID   string
	Actor    string
	Notes    string
	DoctorID string
}

// CreateTurn issues a code and puts the new turn in the queue. The bool is
// false when RequestID matched an earlier creation.
func (e *Engine) CreateTurn(ctx context.Context, input store.CreateTurnInput) (models.Turn, bool, error) {
	input.PatientName = strings.TrimSpace(input.PatientName)
	if err := store.ValidateCreate(input); err != nil {
		metrics.Allocations.WithLabelValues(resultOf(err)).Inc()
		return models.Turn{}, false, err
	}

	var turn models.Turn
	var created bool
	err := e.run(ctx, "create_turn", func(ctx context.Context) error {
		var err error
		turn, created, err = e.store.CreateTurn(ctx, input)
		return err
	})
	metrics.Allocations.WithLabelValues(resultOf(err)).Inc()
	if err != nil {
		return models.Turn{}, false, err
	}
	if !created {
		return turn, false, nil
	}

	e.logger.Debug().Str("turn_id", turn.TurnID).Str("code", turn.Code).Str("actor", input.Actor).Msg("turn created")
	at := e.now()
	e.emit(ctx, notify.ForTurn(notify.TurnCreated, turn, at), notify.ForTurn(notify.QueueUpdate, turn, at))
	return turn, true, nil
}

// SetWaiting queues a turn that was created without entering the queue.
func (e *Engine) SetWaiting(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, models.StatusCreated, models.StatusWaiting)
}

// Call summons a waiting turn, optionally assigning the doctor.
func (e *Engine) Call(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, "", models.StatusCalled)
}

func (e *Engine) Start(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, "", models.StatusInService)
}

func (e *Engine) Finish(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, "", models.StatusDone)
}

func (e *Engine) NoShow(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, "", models.StatusNoShow)
}

func (e *Engine) Cancel(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, "", models.StatusCancelled)
}

// Recall puts a called turn back in the queue under the same code.
func (e *Engine) Recall(ctx context.Context, a Action) (models.Turn, bool, error) {
	return e.transition(ctx, a, models.StatusCalled, models.StatusWaiting)
}

func (e *Engine) transition(ctx context.Context, a Action, from, to models.Status) (models.Turn, bool, error) {
	if strings.TrimSpace(a.TurnID) == "" {
		return models.Turn{}, false, store.Validation("turn_id is required")
	}
	if strings.TrimSpace(a.Actor) == "" {
		return models.Turn{}, false, store.Validation("actor is required", "turn_id", a.TurnID)
	}
	input := store.TransitionInput{
		TurnID: a.TurnID,
		From:   from,
		To:     to,
		Actor:  a.Actor,
		Notes:  strings.TrimSpace(a.Notes),
	}
	if to == models.StatusCalled {
		input.DoctorID = a.DoctorID
	}

	var turn models.Turn
	var changed bool
	err := e.run(ctx, "transition", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("turn.id", a.TurnID),
			attribute.String("turn.to", string(to)),
		)
		var err error
		turn, changed, err = e.store.TransitionTurn(ctx, input)
		return err
	})
	metrics.Transitions.WithLabelValues(string(to), resultOf(err)).Inc()
	if err != nil {
		return models.Turn{}, false, err
	}
	if !changed {
		return turn, false, nil
	}

	e.logger.Debug().
		Str("turn_id", turn.TurnID).
		Str("code", turn.Code).
		Str("to", string(to)).
		Str("actor", a.Actor).
		Msg("turn transitioned")
	e.emit(ctx, eventsFor(to, turn, e.now())...)
	return turn, true, nil
}

// eventsFor lists what a committed move into status announces: its own
// event when it has one, a display refresh on calls, and always a queue
// update.
func eventsFor(status models.Status, turn models.Turn, at time.Time) []notify.Event {
	var events []notify.Event
	switch status {
	case models.StatusCalled:
		events = append(events, notify.ForTurn(notify.TurnCalled, turn, at), notify.ForTurn(notify.DisplayUpdate, turn, at))
	case models.StatusInService:
		events = append(events, notify.ForTurn(notify.TurnStarted, turn, at))
	case models.StatusDone:
		events = append(events, notify.ForTurn(notify.TurnFinished, turn, at))
	case models.StatusNoShow:
		events = append(events, notify.ForTurn(notify.TurnNoShow, turn, at))
	case models.StatusCancelled:
		events = append(events, notify.ForTurn(notify.TurnCancelled, turn, at))
	}
	return append(events, notify.ForTurn(notify.QueueUpdate, turn, at))
}

// SweepStale cancels turns left over from previous days.
func (e *Engine) SweepStale(ctx context.Context) (int, error) {
	var count int
	err := e.run(ctx, "sweep_stale", func(ctx context.Context) error {
		var err error
		count, err = e.store.CancelStaleTurns(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.StaleCancelled.Add(float64(count))
		e.logger.Info().Int("cancelled", count).Msg("stale turns cancelled")
		e.emit(ctx, notify.Event{Kind: notify.QueueUpdate, Timestamp: e.now().UTC()})
	}
	return count, nil
}
