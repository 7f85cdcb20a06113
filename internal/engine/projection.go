package engine

import (
	"context"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

func (e *Engine) Turn(ctx context.Context, turnID string) (models.Turn, error) {
	var turn models.Turn
	err := e.run(ctx, "get_turn", func(ctx context.Context) error {
		var err error
		turn, err = e.store.GetTurn(ctx, turnID)
		return err
	})
	return turn, err
}

// TurnHistory returns the turn's audit trail and whether it replays
// cleanly to the turn's current status.
func (e *Engine) TurnHistory(ctx context.Context, turnID string) (models.TurnAudit, error) {
	var turn models.Turn
	var entries []models.TurnHistory
	err := e.run(ctx, "turn_history", func(ctx context.Context) error {
		var err error
		if turn, err = e.store.GetTurn(ctx, turnID); err != nil {
			return err
		}
		entries, err = e.store.ListTurnHistory(ctx, turnID)
		return err
	})
	if err != nil {
		return models.TurnAudit{}, err
	}

	audit := models.TurnAudit{TurnID: turnID, Status: turn.Status, Entries: entries}
	if audit.Entries == nil {
		audit.Entries = []models.TurnHistory{}
	}
	replayed, err := store.ReplayStatus(entries)
	switch {
	case err != nil:
		audit.Problem = err.Error()
	case replayed != turn.Status:
		audit.Problem = "history ends in " + string(replayed) + " but turn is " + string(turn.Status)
	default:
		audit.Verified = true
	}
	if !audit.Verified {
		e.logger.Warn().Str("turn_id", turnID).Str("problem", audit.Problem).Msg("turn history failed verification")
	}
	return audit, nil
}

func (e *Engine) ListTurns(ctx context.Context, filter store.TurnFilter) ([]models.Turn, error) {
	var turns []models.Turn
	err := e.run(ctx, "list_turns", func(ctx context.Context) error {
		var err error
		turns, err = e.store.ListTurns(ctx, filter)
		return err
	})
	return turns, err
}

// Queue lists today's waiting and called turns in serving order.
func (e *Engine) Queue(ctx context.Context, filter store.QueueFilter) ([]models.Turn, error) {
	var turns []models.Turn
	err := e.run(ctx, "queue", func(ctx context.Context) error {
		var err error
		turns, err = e.store.ListQueue(ctx, filter)
		return err
	})
	return turns, err
}

// Display composes the public board: turns being called or served, the
// head of the waiting line and today's counts.
func (e *Engine) Display(ctx context.Context) (models.Display, error) {
	var display models.Display
	err := e.run(ctx, "display", func(ctx context.Context) error {
		var err error
		if display.Called, err = e.store.ListQueue(ctx, store.QueueFilter{Statuses: []models.Status{models.StatusCalled}}); err != nil {
			return err
		}
		if display.InService, err = e.store.ListQueue(ctx, store.QueueFilter{Statuses: []models.Status{models.StatusInService}}); err != nil {
			return err
		}
		if display.Waiting, err = e.store.ListQueue(ctx, store.QueueFilter{
			Statuses: []models.Status{models.StatusWaiting},
			Limit:    models.DisplayWaitingLimit,
		}); err != nil {
			return err
		}
		display.Stats, err = e.store.DailyStats(ctx, "")
		return err
	})
	if err != nil {
		return models.Display{}, err
	}
	if len(display.Waiting) > models.DisplayWaitingLimit {
		display.Waiting = display.Waiting[:models.DisplayWaitingLimit]
	}
	display.Called = orEmpty(display.Called)
	display.InService = orEmpty(display.InService)
	display.Waiting = orEmpty(display.Waiting)
	return display, nil
}

// DoctorWorklist lists the doctor's pending turns for today and the one
// currently in service, if any.
func (e *Engine) DoctorWorklist(ctx context.Context, doctorID string) (models.Worklist, error) {
	worklist := models.Worklist{DoctorID: doctorID}
	err := e.run(ctx, "doctor_worklist", func(ctx context.Context) error {
		if _, err := e.store.GetDoctor(ctx, doctorID); err != nil {
			return err
		}
		turns, err := e.store.ListQueue(ctx, store.QueueFilter{
			DoctorID: doctorID,
			Statuses: []models.Status{models.StatusWaiting, models.StatusCalled},
		})
		if err != nil {
			return err
		}
		worklist.Turns = orEmpty(turns)
		current, found, err := e.store.InServiceForDoctor(ctx, doctorID)
		if err != nil {
			return err
		}
		if found {
			worklist.Current = &current
		}
		return nil
	})
	if err != nil {
		return models.Worklist{}, err
	}
	return worklist, nil
}

func (e *Engine) Stats(ctx context.Context, day string) (models.DailyStats, error) {
	var stats models.DailyStats
	err := e.run(ctx, "stats", func(ctx context.Context) error {
		var err error
		stats, err = e.store.DailyStats(ctx, day)
		return err
	})
	return stats, err
}

func (e *Engine) Occupancies(ctx context.Context, filter store.OccupancyFilter) ([]models.Occupancy, error) {
	var occupancies []models.Occupancy
	err := e.run(ctx, "occupancies", func(ctx context.Context) error {
		var err error
		occupancies, err = e.store.ListOccupancies(ctx, filter)
		return err
	})
	return occupancies, err
}

func (e *Engine) Occupancy(ctx context.Context, resourceID string) (models.Occupancy, bool, error) {
	var occ models.Occupancy
	var found bool
	err := e.run(ctx, "occupancy", func(ctx context.Context) error {
		var err error
		occ, found, err = e.store.GetOccupancy(ctx, resourceID)
		return err
	})
	return occ, found, err
}

func (e *Engine) ResourceHistory(ctx context.Context, filter store.HistoryFilter) ([]models.ResourceHistory, error) {
	var entries []models.ResourceHistory
	err := e.run(ctx, "resource_history", func(ctx context.Context) error {
		var err error
		entries, err = e.store.ListResourceHistory(ctx, filter)
		return err
	})
	return entries, err
}

func orEmpty(turns []models.Turn) []models.Turn {
	if turns == nil {
		return []models.Turn{}
	}
	return turns
}
