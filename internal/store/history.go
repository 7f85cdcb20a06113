package store

import (
	"crypto/sha256"
	"fmt"
	"time"

	"qms/turn-service/internal/models"
)

func ComputeHistoryHash(prevHash, turnID string, seq int, previous, next models.Status, changedBy, notes string, createdAt time.Time) string {
	raw := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s", prevHash, turnID, seq, previous, next, changedBy, createdAt.UTC().Format(time.RFC3339Nano), notes)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// ReplayStatus walks a turn's history in seq order, checking the hash chain
// and that every recorded step is a legal transition, and returns the
// status the turn must currently be in.
func ReplayStatus(entries []models.TurnHistory) (models.Status, error) {
	var status models.Status
	prevHash := ""
	for i, entry := range entries {
		if entry.Seq != i+1 {
			return "", fmt.Errorf("turn %s: history seq %d out of order at position %d", entry.TurnID, entry.Seq, i+1)
		}
		if entry.PrevHash != prevHash {
			return "", fmt.Errorf("turn %s: history seq %d breaks the hash chain", entry.TurnID, entry.Seq)
		}
		want := ComputeHistoryHash(entry.PrevHash, entry.TurnID, entry.Seq, entry.PreviousStatus, entry.NewStatus, entry.ChangedBy, entry.Notes, entry.CreatedAt)
		if entry.Hash != want {
			return "", fmt.Errorf("turn %s: history seq %d hash mismatch", entry.TurnID, entry.Seq)
		}
		if i == 0 {
			if entry.PreviousStatus != "" || entry.NewStatus != models.StatusCreated {
				return "", fmt.Errorf("turn %s: history must start with creation", entry.TurnID)
			}
		} else if entry.PreviousStatus != status || !ValidTransition(status, entry.NewStatus) {
			return "", fmt.Errorf("turn %s: history seq %d records illegal step %s -> %s", entry.TurnID, entry.Seq, entry.PreviousStatus, entry.NewStatus)
		}
		status = entry.NewStatus
		prevHash = entry.Hash
	}
	return status, nil
}
