package postgres

import (
	"context"
	"database/sql"
	"errors"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/jackc/pgx/v5"
)

// querier is satisfied by both the pool and a transaction, so catalog
// lookups can run inside a unit of work or on their own.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	service, err := getService(ctx, s.pool, serviceID)
	return service, translate(err)
}

func (s *Store) GetResource(ctx context.Context, resourceID string) (models.Resource, error) {
	resource, err := getResource(ctx, s.pool, resourceID, false)
	return resource, translate(err)
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	doctor, err := getDoctor(ctx, s.pool, doctorID)
	return doctor, translate(err)
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	patient, err := getPatient(ctx, s.pool, patientID)
	return patient, translate(err)
}

func getService(ctx context.Context, q querier, serviceID string) (models.Service, error) {
	if err := checkID("service", serviceID); err != nil {
		return models.Service{}, err
	}
	var service models.Service
	row := q.QueryRow(ctx, `
		SELECT service_id, name, prefix, estimated_minutes, active
		FROM services
		WHERE service_id = $1
	`, serviceID)
	if err := row.Scan(&service.ServiceID, &service.Name, &service.Prefix, &service.EstimatedMinutes, &service.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.NotFound("service", serviceID)
		}
		return models.Service{}, err
	}
	return service, nil
}

// getResource optionally takes a row lock: FOR SHARE lets concurrent
// assigns proceed while blocking deactivation, FOR UPDATE is used by
// deactivation itself.
func getResource(ctx context.Context, q querier, resourceID string, forUpdate bool) (models.Resource, error) {
	if err := checkID("resource", resourceID); err != nil {
		return models.Resource{}, err
	}
	lock := "FOR SHARE"
	if forUpdate {
		lock = "FOR UPDATE"
	}
	if _, ok := q.(pgx.Tx); !ok {
		lock = ""
	}
	var resource models.Resource
	var location sql.NullString
	row := q.QueryRow(ctx, `
		SELECT resource_id, code, name, type, location, active
		FROM resources
		WHERE resource_id = $1
	`+lock, resourceID)
	if err := row.Scan(&resource.ResourceID, &resource.Code, &resource.Name, &resource.Type, &location, &resource.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Resource{}, store.NotFound("resource", resourceID)
		}
		return models.Resource{}, err
	}
	resource.Location = location.String
	return resource, nil
}

func getDoctor(ctx context.Context, q querier, doctorID string) (models.Doctor, error) {
	if err := checkID("doctor", doctorID); err != nil {
		return models.Doctor{}, err
	}
	var doctor models.Doctor
	var specialty, office sql.NullString
	row := q.QueryRow(ctx, `
		SELECT doctor_id, full_name, specialty, office_number
		FROM doctors
		WHERE doctor_id = $1
	`, doctorID)
	if err := row.Scan(&doctor.DoctorID, &doctor.FullName, &specialty, &office); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, store.NotFound("doctor", doctorID)
		}
		return models.Doctor{}, err
	}
	doctor.Specialty = specialty.String
	doctor.OfficeNumber = office.String
	return doctor, nil
}

func getPatient(ctx context.Context, q querier, patientID string) (models.Patient, error) {
	if err := checkID("patient", patientID); err != nil {
		return models.Patient{}, err
	}
	var patient models.Patient
	var phone sql.NullString
	row := q.QueryRow(ctx, `
		SELECT patient_id, full_name, phone, is_preferential
		FROM patients
		WHERE patient_id = $1
	`, patientID)
	if err := row.Scan(&patient.PatientID, &patient.FullName, &phone, &patient.IsPreferential); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, store.NotFound("patient", patientID)
		}
		return models.Patient{}, err
	}
	patient.Phone = phone.String
	return patient, nil
}
