package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/jackc/pgx/v5"
)

type historyEntry struct {
	turnID   string
	previous models.Status
	next     models.Status
	actor    string
	notes    string
	at       time.Time
}

// appendHistory extends the turn's hash chain. Callers hold the turn row
// lock, which orders writers for the same turn.
func appendHistory(ctx context.Context, tx pgx.Tx, entry historyEntry) error {
	var lastSeq int
	var prevHash string
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM turn_history
		WHERE turn_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, entry.turnID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	seq := lastSeq + 1
	hash := store.ComputeHistoryHash(prevHash, entry.turnID, seq, entry.previous, entry.next, entry.actor, entry.notes, entry.at)

	_, err := tx.Exec(ctx, `
		INSERT INTO turn_history (turn_id, seq, previous_status, new_status, changed_by, notes, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.turnID, seq, nullIfEmpty(string(entry.previous)), entry.next, entry.actor, nullIfEmpty(entry.notes), entry.at, prevHash, hash)
	return err
}

func (s *Store) ListTurnHistory(ctx context.Context, turnID string) ([]models.TurnHistory, error) {
	if err := checkID("turn", turnID); err != nil {
		return nil, err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM turns WHERE turn_id = $1)`, turnID).Scan(&exists); err != nil {
		return nil, translate(err)
	}
	if !exists {
		return nil, store.NotFound("turn", turnID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT turn_id, seq, previous_status, new_status, changed_by, notes, created_at, prev_hash, hash
		FROM turn_history
		WHERE turn_id = $1
		ORDER BY seq ASC
	`, turnID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var entries []models.TurnHistory
	for rows.Next() {
		var entry models.TurnHistory
		var previous, notes sql.NullString
		if err := rows.Scan(&entry.TurnID, &entry.Seq, &previous, &entry.NewStatus, &entry.ChangedBy, &notes, &entry.CreatedAt, &entry.PrevHash, &entry.Hash); err != nil {
			return nil, translate(err)
		}
		entry.PreviousStatus = models.Status(previous.String)
		entry.Notes = notes.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return entries, nil
}
