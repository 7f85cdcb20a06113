package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const occupancyColumns = `
	o.occupancy_id, o.resource_id, o.patient_name, o.patient_surname, COALESCE(o.phone, ''),
	o.doctor_id, o.started_at, o.status, COALESCE(o.notes, ''), o.assigned_by, o.updated_at,
	r.name, r.code, r.type, COALESCE(d.full_name, ''), COALESCE(d.specialty, '')
`

const occupancyJoins = `
	FROM occupancy o
	JOIN resources r ON r.resource_id = o.resource_id
	LEFT JOIN doctors d ON d.doctor_id = o.doctor_id
`

func scanOccupancy(row pgx.Row) (models.Occupancy, error) {
	var occ models.Occupancy
	var doctorID sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(
		&occ.OccupancyID, &occ.ResourceID, &occ.PatientName, &occ.PatientSurname, &occ.Phone,
		&doctorID, &occ.StartedAt, &occ.Status, &occ.Notes, &occ.AssignedBy, &updatedAt,
		&occ.ResourceName, &occ.ResourceCode, &occ.ResourceType, &occ.DoctorName, &occ.Specialty,
	)
	if err != nil {
		return models.Occupancy{}, err
	}
	occ.DoctorID = nullStringPtr(doctorID)
	occ.StartedAt = occ.StartedAt.UTC()
	occ.UpdatedAt = nullTimePtr(updatedAt)
	return occ, nil
}

func loadOccupancy(ctx context.Context, q querier, resourceID string, forUpdate bool) (models.Occupancy, bool, error) {
	query := `SELECT ` + occupancyColumns + occupancyJoins + ` WHERE o.resource_id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF o`
	}
	occ, err := scanOccupancy(q.QueryRow(ctx, query, resourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Occupancy{}, false, nil
		}
		return models.Occupancy{}, false, err
	}
	return occ, true, nil
}

func occupiedConflict(resource models.Resource) error {
	return store.Conflict(fmt.Sprintf("resource %s already occupied", resource.Name), "resource_id", resource.ResourceID)
}

// AssignResource opens an occupancy window. UNIQUE(resource_id) guarantees
// a single holder even when two assigns pass the pre-check together.
func (s *Store) AssignResource(ctx context.Context, input store.AssignInput) (models.Occupancy, error) {
	if err := store.ValidateAssign(input); err != nil {
		return models.Occupancy{}, err
	}
	status := input.Status
	if status == "" {
		status = models.OccupancyOccupied
	}

	var occ models.Occupancy
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		resource, err := getResource(ctx, tx, input.ResourceID, false)
		if err != nil {
			return err
		}
		if !resource.Active {
			return store.Conflict(fmt.Sprintf("resource %s is inactive", resource.Name), "resource_id", resource.ResourceID)
		}
		if input.DoctorID != "" {
			if _, err := getDoctor(ctx, tx, input.DoctorID); err != nil {
				return err
			}
		}
		if _, found, err := loadOccupancy(ctx, tx, resource.ResourceID, false); err != nil {
			return err
		} else if found {
			return occupiedConflict(resource)
		}

		c, err := txNow(ctx, tx)
		if err != nil {
			return err
		}
		startedAt := c.now
		if input.StartedAt != nil {
			startedAt = input.StartedAt.UTC()
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO occupancy (
				occupancy_id, resource_id, patient_name, patient_surname, phone, doctor_id,
				started_at, status, notes, assigned_by
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, uuid.NewString(), resource.ResourceID, input.PatientName, input.PatientSurname, nullIfEmpty(input.Phone),
			nullIfEmpty(input.DoctorID), startedAt, status, nullIfEmpty(input.Notes), input.Actor)
		if err != nil {
			if isUniqueViolation(err, occupancyResourceUnique) {
				return occupiedConflict(resource)
			}
			return err
		}

		occ, _, err = loadOccupancy(ctx, tx, resource.ResourceID, false)
		return err
	})
	if err != nil {
		return models.Occupancy{}, err
	}
	return occ, nil
}

func (s *Store) UpdateOccupancy(ctx context.Context, input store.UpdateOccupancyInput) (models.Occupancy, error) {
	if err := store.ValidateOccupancyPatch(input); err != nil {
		return models.Occupancy{}, err
	}
	if err := checkID("resource", input.ResourceID); err != nil {
		return models.Occupancy{}, err
	}

	var occ models.Occupancy
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, found, err := loadOccupancy(ctx, tx, input.ResourceID, true)
		if err != nil {
			return err
		}
		if !found {
			return store.NotFound("occupancy", input.ResourceID)
		}

		clearDoctor := false
		var doctorID interface{}
		if input.DoctorID != nil {
			if *input.DoctorID == "" {
				clearDoctor = true
			} else {
				if _, err := getDoctor(ctx, tx, *input.DoctorID); err != nil {
					return err
				}
				doctorID = *input.DoctorID
			}
		}

		c, err := txNow(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE occupancy
			SET patient_name = COALESCE($2, patient_name),
				patient_surname = COALESCE($3, patient_surname),
				phone = COALESCE($4, phone),
				doctor_id = CASE WHEN $5 THEN NULL ELSE COALESCE($6::uuid, doctor_id) END,
				status = COALESCE($7, status),
				notes = COALESCE($8, notes),
				updated_at = $9
			WHERE occupancy_id = $1
		`, current.OccupancyID, input.PatientName, input.PatientSurname, input.Phone,
			clearDoctor, doctorID, input.Status, input.Notes, c.now)
		if err != nil {
			return err
		}

		occ, _, err = loadOccupancy(ctx, tx, input.ResourceID, false)
		return err
	})
	if err != nil {
		return models.Occupancy{}, err
	}
	return occ, nil
}

// ReleaseResource closes the occupancy window: the history row and the
// removal of the occupancy commit together or not at all.
func (s *Store) ReleaseResource(ctx context.Context, input store.ReleaseInput) (models.ResourceHistory, error) {
	if err := store.ValidateRelease(input); err != nil {
		return models.ResourceHistory{}, err
	}
	if err := checkID("resource", input.ResourceID); err != nil {
		return models.ResourceHistory{}, err
	}
	outcome := input.Outcome
	if outcome == "" {
		outcome = models.OutcomeAttended
	}

	var history models.ResourceHistory
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		occ, found, err := loadOccupancy(ctx, tx, input.ResourceID, true)
		if err != nil {
			return err
		}
		if !found {
			return store.NotFound("occupancy", input.ResourceID)
		}

		c, err := txNow(ctx, tx)
		if err != nil {
			return err
		}
		notes := input.Notes
		if notes == "" {
			notes = occ.Notes
		}

		history = models.ResourceHistory{
			HistoryID:       uuid.NewString(),
			ResourceID:      occ.ResourceID,
			ResourceName:    occ.ResourceName,
			ResourceType:    occ.ResourceType,
			PatientName:     occ.PatientName,
			PatientSurname:  occ.PatientSurname,
			Phone:           occ.Phone,
			DoctorID:        occ.DoctorID,
			DoctorName:      occ.DoctorName,
			Specialty:       occ.Specialty,
			StartedAt:       occ.StartedAt,
			EndedAt:         c.now,
			DurationMinutes: store.DurationMinutes(occ.StartedAt, c.now),
			Outcome:         outcome,
			Notes:           notes,
		}
		if err := insertResourceHistory(ctx, tx, history, input.Actor); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM occupancy WHERE occupancy_id = $1`, occ.OccupancyID)
		return err
	})
	if err != nil {
		return models.ResourceHistory{}, err
	}
	return history, nil
}

func insertResourceHistory(ctx context.Context, tx pgx.Tx, h models.ResourceHistory, actor string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO resource_history (
			history_id, turn_id, resource_id, resource_name, resource_type,
			patient_name, patient_surname, phone, doctor_id, doctor_name, specialty,
			started_at, ended_at, duration_minutes, outcome, notes, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, h.HistoryID, h.TurnID, h.ResourceID, h.ResourceName, h.ResourceType,
		h.PatientName, nullIfEmpty(h.PatientSurname), nullIfEmpty(h.Phone), h.DoctorID,
		nullIfEmpty(h.DoctorName), nullIfEmpty(h.Specialty),
		h.StartedAt, h.EndedAt, h.DurationMinutes, h.Outcome, nullIfEmpty(h.Notes), nullIfEmpty(actor))
	return err
}

// DeactivateResource retires a free resource. The row lock keeps an assign
// from slipping in between the occupancy check and the update.
func (s *Store) DeactivateResource(ctx context.Context, resourceID string) (models.Resource, error) {
	var resource models.Resource
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		resource, err = getResource(ctx, tx, resourceID, true)
		if err != nil {
			return err
		}
		if _, found, err := loadOccupancy(ctx, tx, resourceID, false); err != nil {
			return err
		} else if found {
			return store.Conflict(fmt.Sprintf("resource %s is occupied and cannot be deactivated", resource.Name), "resource_id", resourceID)
		}
		if _, err := tx.Exec(ctx, `UPDATE resources SET active = FALSE WHERE resource_id = $1`, resourceID); err != nil {
			return err
		}
		resource.Active = false
		return nil
	})
	if err != nil {
		return models.Resource{}, err
	}
	return resource, nil
}

func (s *Store) GetOccupancy(ctx context.Context, resourceID string) (models.Occupancy, bool, error) {
	if err := checkID("resource", resourceID); err != nil {
		return models.Occupancy{}, false, err
	}
	occ, found, err := loadOccupancy(ctx, s.pool, resourceID, false)
	return occ, found, translate(err)
}

func (s *Store) ListOccupancies(ctx context.Context, filter store.OccupancyFilter) ([]models.Occupancy, error) {
	var a args
	if filter.ResourceType != "" {
		a.where("r.type = " + a.add(string(filter.ResourceType)))
	}
	if filter.Status != "" {
		a.where("o.status = " + a.add(filter.Status))
	}
	if filter.DoctorID != "" {
		if err := checkID("doctor", filter.DoctorID); err != nil {
			return nil, err
		}
		a.where("o.doctor_id = " + a.add(filter.DoctorID))
	}
	rows, err := s.pool.Query(ctx, `SELECT `+occupancyColumns+occupancyJoins+a.clause()+` ORDER BY r.name ASC`, a.values...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	occupancies := []models.Occupancy{}
	for rows.Next() {
		occ, err := scanOccupancy(rows)
		if err != nil {
			return nil, translate(err)
		}
		occupancies = append(occupancies, occ)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return occupancies, nil
}

func (s *Store) ListResourceHistory(ctx context.Context, filter store.HistoryFilter) ([]models.ResourceHistory, error) {
	var a args
	if filter.ResourceID != "" {
		if err := checkID("resource", filter.ResourceID); err != nil {
			return nil, err
		}
		a.where("h.resource_id = " + a.add(filter.ResourceID))
	}
	if filter.ResourceType != "" {
		a.where("h.resource_type = " + a.add(string(filter.ResourceType)))
	}
	if filter.DoctorID != "" {
		if err := checkID("doctor", filter.DoctorID); err != nil {
			return nil, err
		}
		a.where("h.doctor_id = " + a.add(filter.DoctorID))
	}
	if filter.From != nil {
		a.where("h.ended_at >= " + a.add(*filter.From))
	}
	if filter.To != nil {
		a.where("h.ended_at < " + a.add(*filter.To))
	}
	if filter.Search != "" {
		p := a.add("%" + filter.Search + "%")
		a.where(fmt.Sprintf("(h.patient_name ILIKE %s OR h.patient_surname ILIKE %s OR h.resource_name ILIKE %s)", p, p, p))
	}
	limit := a.add(clampLimit(filter.Limit, s.listLimit))
	offset := a.add(max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, `
		SELECT h.history_id, h.turn_id, h.resource_id, h.resource_name, h.resource_type,
			h.patient_name, COALESCE(h.patient_surname, ''), COALESCE(h.phone, ''),
			h.doctor_id, COALESCE(h.doctor_name, ''), COALESCE(h.specialty, ''),
			h.started_at, h.ended_at, h.duration_minutes, h.outcome, COALESCE(h.notes, '')
		FROM resource_history h
		`+a.clause()+`
		ORDER BY h.ended_at DESC
		LIMIT `+limit+` OFFSET `+offset, a.values...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	entries := []models.ResourceHistory{}
	for rows.Next() {
		var h models.ResourceHistory
		var turnID, doctorID sql.NullString
		if err := rows.Scan(&h.HistoryID, &turnID, &h.ResourceID, &h.ResourceName, &h.ResourceType,
			&h.PatientName, &h.PatientSurname, &h.Phone,
			&doctorID, &h.DoctorName, &h.Specialty,
			&h.StartedAt, &h.EndedAt, &h.DurationMinutes, &h.Outcome, &h.Notes); err != nil {
			return nil, translate(err)
		}
		h.TurnID = nullStringPtr(turnID)
		h.DoctorID = nullStringPtr(doctorID)
		h.StartedAt = h.StartedAt.UTC()
		h.EndedAt = h.EndedAt.UTC()
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return entries, nil
}
