package postgres

import (
	"context"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/jackc/pgx/v5"
)

// allocateCode picks the code for a new turn of service. It must run in the
// create transaction: the sequence row lock taken by the upsert serializes
// creates for the same service and day until commit.
func allocateCode(ctx context.Context, tx pgx.Tx, service models.Service, c clock) (string, error) {
	prefix := store.NormalizePrefix(service.Prefix)

	candidate, err := nextSequence(ctx, tx, service.ServiceID, c)
	if err != nil {
		return "", err
	}

	codes, err := activeCodes(ctx, tx, prefix)
	if err != nil {
		return "", err
	}
	ordinal := store.ChooseOrdinal(candidate, store.HeldOrdinals(prefix, codes))
	return store.FormatCode(prefix, ordinal), nil
}

func nextSequence(ctx context.Context, tx pgx.Tx, serviceID string, c clock) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO turn_sequences (service_id, day, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_id, day)
		DO UPDATE SET last_number = turn_sequences.last_number + 1
		RETURNING last_number
	`, serviceID, c.day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// activeCodes lists codes under prefix held by turns still in play, across
// every service, since codes are unique regardless of service.
func activeCodes(ctx context.Context, tx pgx.Tx, prefix string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT code
		FROM turns
		WHERE status = ANY($1) AND starts_with(code, $2)
	`, statusStrings(models.ActiveStatuses), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// cancelStale moves every turn still in play from a previous day to
// CANCELLED and records the change. Rows locked by a concurrent sweep are
// skipped; that sweep handles them.
func cancelStale(ctx context.Context, tx pgx.Tx, c clock) (int, error) {
	rows, err := tx.Query(ctx, `
		WITH stale AS (
			SELECT turn_id, status
			FROM turns
			WHERE status = ANY($1) AND created_at < $2::date
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
		)
		UPDATE turns t
		SET status = $3, finished_at = $4
		FROM stale
		WHERE t.turn_id = stale.turn_id
		RETURNING t.turn_id, stale.status
	`, statusStrings(models.ActiveStatuses), c.day, models.StatusCancelled, c.now)
	if err != nil {
		return 0, err
	}

	type staleTurn struct {
		id     string
		status models.Status
	}
	var cancelled []staleTurn
	for rows.Next() {
		var item staleTurn
		if err := rows.Scan(&item.id, &item.status); err != nil {
			rows.Close()
			return 0, err
		}
		cancelled = append(cancelled, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, item := range cancelled {
		if err := appendHistory(ctx, tx, historyEntry{
			turnID:   item.id,
			previous: item.status,
			next:     models.StatusCancelled,
			actor:    store.SystemActor,
			notes:    staleNote,
			at:       c.now,
		}); err != nil {
			return 0, err
		}
	}
	return len(cancelled), nil
}
