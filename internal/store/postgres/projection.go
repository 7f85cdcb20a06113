package postgres

import (
	"context"
	"errors"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/jackc/pgx/v5"
)

const queueOrder = ` ORDER BY t.priority DESC, t.waiting_at ASC NULLS LAST, t.created_at ASC`

// dayBounds restricts t.created_at to one calendar day, today when day is
// empty.
func dayBounds(a *args, day string) error {
	if day == "" {
		a.where("t.created_at >= CURRENT_DATE AND t.created_at < CURRENT_DATE + 1")
		return nil
	}
	parsed, err := time.Parse("2006-01-02", day)
	if err != nil {
		return store.Validation("day must be YYYY-MM-DD", "day", day)
	}
	p := a.add(parsed)
	a.where("t.created_at >= " + p + "::date AND t.created_at < " + p + "::date + 1")
	return nil
}

func turnFilters(a *args, statuses []models.Status, serviceID, doctorID string) error {
	if len(statuses) > 0 {
		for _, status := range statuses {
			if !status.Valid() {
				return store.Validation("unknown status", "status", string(status))
			}
		}
		a.where("t.status = ANY(" + a.add(statusStrings(statuses)) + ")")
	}
	if serviceID != "" {
		if err := checkID("service", serviceID); err != nil {
			return err
		}
		a.where("t.service_id = " + a.add(serviceID))
	}
	if doctorID != "" {
		if err := checkID("doctor", doctorID); err != nil {
			return err
		}
		a.where("t.doctor_id = " + a.add(doctorID))
	}
	return nil
}

func (s *Store) ListTurns(ctx context.Context, filter store.TurnFilter) ([]models.Turn, error) {
	var a args
	if err := dayBounds(&a, filter.Day); err != nil {
		return nil, err
	}
	if err := turnFilters(&a, filter.Statuses, filter.ServiceID, filter.DoctorID); err != nil {
		return nil, err
	}
	limit := a.add(clampLimit(filter.Limit, s.listLimit))
	rows, err := s.pool.Query(ctx, `SELECT `+turnColumns+turnJoins+a.clause()+` ORDER BY t.created_at ASC LIMIT `+limit, a.values...)
	if err != nil {
		return nil, translate(err)
	}
	turns, err := collectTurns(rows)
	return turns, translate(err)
}

// ListQueue returns today's turns in serving order. Without statuses it
// lists WAITING and CALLED.
func (s *Store) ListQueue(ctx context.Context, filter store.QueueFilter) ([]models.Turn, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []models.Status{models.StatusWaiting, models.StatusCalled}
	}
	var a args
	if err := dayBounds(&a, ""); err != nil {
		return nil, err
	}
	if err := turnFilters(&a, statuses, filter.ServiceID, filter.DoctorID); err != nil {
		return nil, err
	}
	limit := a.add(clampLimit(filter.Limit, s.listLimit))
	rows, err := s.pool.Query(ctx, `SELECT `+turnColumns+turnJoins+a.clause()+queueOrder+` LIMIT `+limit, a.values...)
	if err != nil {
		return nil, translate(err)
	}
	turns, err := collectTurns(rows)
	return turns, translate(err)
}

func (s *Store) InServiceForDoctor(ctx context.Context, doctorID string) (models.Turn, bool, error) {
	if err := checkID("doctor", doctorID); err != nil {
		return models.Turn{}, false, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+turnColumns+turnJoins+`
		WHERE t.doctor_id = $1 AND t.status = $2
			AND t.created_at >= CURRENT_DATE AND t.created_at < CURRENT_DATE + 1
		ORDER BY t.service_started_at DESC NULLS LAST
		LIMIT 1`, doctorID, models.StatusInService)
	turn, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turn{}, false, nil
		}
		return models.Turn{}, false, translate(err)
	}
	return turn, true, nil
}

func (s *Store) DailyStats(ctx context.Context, day string) (models.DailyStats, error) {
	var a args
	if err := dayBounds(&a, day); err != nil {
		return models.DailyStats{}, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT t.status, COUNT(*), to_char(CURRENT_DATE, 'YYYY-MM-DD')
		FROM turns t
		`+a.clause()+`
		GROUP BY t.status
	`, a.values...)
	if err != nil {
		return models.DailyStats{}, translate(err)
	}
	defer rows.Close()

	stats := models.DailyStats{Day: day, ByStatus: map[models.Status]int{}}
	for rows.Next() {
		var status models.Status
		var count int
		var today string
		if err := rows.Scan(&status, &count, &today); err != nil {
			return models.DailyStats{}, translate(err)
		}
		if stats.Day == "" {
			stats.Day = today
		}
		stats.ByStatus[status] = count
		stats.Total += count
		if !status.Terminal() {
			stats.Active += count
		}
	}
	if err := rows.Err(); err != nil {
		return models.DailyStats{}, translate(err)
	}
	if stats.Day == "" {
		if err := s.pool.QueryRow(ctx, `SELECT to_char(CURRENT_DATE, 'YYYY-MM-DD')`).Scan(&stats.Day); err != nil {
			return models.DailyStats{}, translate(err)
		}
	}
	return stats, nil
}
