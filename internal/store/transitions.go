package store

import "qms/turn-service/internal/models"

var transitionTable = map[models.Status][]models.Status{
	models.StatusCreated:   {models.StatusWaiting, models.StatusCancelled},
	models.StatusWaiting:   {models.StatusCalled, models.StatusCancelled},
	models.StatusCalled:    {models.StatusInService, models.StatusNoShow, models.StatusWaiting, models.StatusCancelled},
	models.StatusInService: {models.StatusDone, models.StatusCancelled},
	models.StatusDone:      {},
	models.StatusNoShow:    {},
	models.StatusCancelled: {},
}

func ValidTransition(from, to models.Status) bool {
	for _, status := range transitionTable[from] {
		if status == to {
			return true
		}
	}
	return false
}

func AllowedTransitions(from models.Status) []models.Status {
	allowed := transitionTable[from]
	out := make([]models.Status, len(allowed))
	copy(out, allowed)
	return out
}

func CheckTransition(turnID string, from, to models.Status) error {
	if !ValidTransition(from, to) {
		return InvalidTransition(turnID, string(from), string(to))
	}
	return nil
}

// TimestampColumn names the turns column stamped when entering status.
func TimestampColumn(status models.Status) string {
	switch status {
	case models.StatusWaiting:
		return "waiting_at"
	case models.StatusCalled:
		return "called_at"
	case models.StatusInService:
		return "service_started_at"
	case models.StatusDone, models.StatusNoShow, models.StatusCancelled:
		return "finished_at"
	}
	return ""
}
