package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qms/turn-service/internal/models"
)

func chain(turnID string, steps ...[2]models.Status) []models.TurnHistory {
	var out []models.TurnHistory
	prev := ""
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, step := range steps {
		entry := models.TurnHistory{
			TurnID:         turnID,
			Seq:            i + 1,
			PreviousStatus: step[0],
			NewStatus:      step[1],
			ChangedBy:      "clerk",
			CreatedAt:      at.Add(time.Duration(i) * time.Minute),
			PrevHash:       prev,
		}
		entry.Hash = ComputeHistoryHash(prev, turnID, entry.Seq, entry.PreviousStatus, entry.NewStatus, entry.ChangedBy, entry.Notes, entry.CreatedAt)
		prev = entry.Hash
		out = append(out, entry)
	}
	return out
}

func TestReplayStatus(t *testing.T) {
	entries := chain("t1",
		[2]models.Status{"", models.StatusCreated},
		[2]models.Status{models.StatusCreated, models.StatusWaiting},
		[2]models.Status{models.StatusWaiting, models.StatusCalled},
		[2]models.Status{models.StatusCalled, models.StatusWaiting},
		[2]models.Status{models.StatusWaiting, models.StatusCalled},
		[2]models.Status{models.StatusCalled, models.StatusInService},
		[2]models.Status{models.StatusInService, models.StatusDone},
	)
	status, err := ReplayStatus(entries)
	require.NoError(t, err)
	require.Equal(t, models.StatusDone, status)
}

func TestReplayStatusDetectsTampering(t *testing.T) {
	entries := chain("t1",
		[2]models.Status{"", models.StatusCreated},
		[2]models.Status{models.StatusCreated, models.StatusWaiting},
	)
	entries[1].ChangedBy = "someone-else"
	_, err := ReplayStatus(entries)
	require.Error(t, err)
}

func TestReplayStatusRejectsIllegalStep(t *testing.T) {
	entries := chain("t1",
		[2]models.Status{"", models.StatusCreated},
		[2]models.Status{models.StatusCreated, models.StatusDone},
	)
	_, err := ReplayStatus(entries)
	require.Error(t, err)
}

func TestReplayStatusRequiresCreation(t *testing.T) {
	entries := chain("t1", [2]models.Status{models.StatusCreated, models.StatusWaiting})
	_, err := ReplayStatus(entries)
	require.Error(t, err)
}
