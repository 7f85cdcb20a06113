package store

import (
	"context"
	"time"

	"qms/turn-service/internal/models"
)

// SystemActor attributes changes made by the service itself.
const SystemActor = "system"

type CreateTurnInput struct {
	RequestID    string
	ServiceID    string
	PatientID    string
	PatientName  string
	PatientPhone string
	DoctorID     string
	ResourceID   string
	Priority     int
	Notes        string
	Actor        string
}

// TransitionInput moves a turn to To. When From is set the turn must
// currently be in From, which separates steps sharing a target such as
// SetWaiting and Recall.
type TransitionInput struct {
	TurnID   string
	From     models.Status
	To       models.Status
	Actor    string
	Notes    string
	DoctorID string
}

type AssignInput struct {
	ResourceID     string
	PatientName    string
	PatientSurname string
	Phone          string
	DoctorID       string
	StartedAt      *time.Time
	Status         string
	Notes          string
	Actor          string
}

// UpdateOccupancyInput is a patch: nil fields are left untouched and an
// empty DoctorID clears the doctor.
type UpdateOccupancyInput struct {
	ResourceID     string
	PatientName    *string
	PatientSurname *string
	Phone          *string
	DoctorID       *string
	Status         *string
	Notes          *string
	Actor          string
}

type ReleaseInput struct {
	ResourceID string
	Outcome    string
	Notes      string
	Actor      string
}

type TurnFilter struct {
	Statuses  []models.Status
	ServiceID string
	DoctorID  string
	// Day is YYYY-MM-DD; empty means the database's current date.
	Day   string
	Limit int
}

type QueueFilter struct {
	Statuses  []models.Status
	ServiceID string
	DoctorID  string
	Limit     int
}

type OccupancyFilter struct {
	ResourceType models.ResourceType
	Status       string
	DoctorID     string
}

type HistoryFilter struct {
	ResourceID   string
	ResourceType models.ResourceType
	DoctorID     string
	From         *time.Time
	To           *time.Time
	Search       string
	Limit        int
	Offset       int
}

type TurnStore interface {
	CreateTurn(ctx context.Context, input CreateTurnInput) (models.Turn, bool, error)
	TransitionTurn(ctx context.Context, input TransitionInput) (models.Turn, bool, error)
	CancelStaleTurns(ctx context.Context) (int, error)
	GetTurn(ctx context.Context, turnID string) (models.Turn, error)
	ListTurns(ctx context.Context, filter TurnFilter) ([]models.Turn, error)
	ListTurnHistory(ctx context.Context, turnID string) ([]models.TurnHistory, error)
	ListQueue(ctx context.Context, filter QueueFilter) ([]models.Turn, error)
	InServiceForDoctor(ctx context.Context, doctorID string) (models.Turn, bool, error)
	DailyStats(ctx context.Context, day string) (models.DailyStats, error)
}

type Ledger interface {
	AssignResource(ctx context.Context, input AssignInput) (models.Occupancy, error)
	UpdateOccupancy(ctx context.Context, input UpdateOccupancyInput) (models.Occupancy, error)
	ReleaseResource(ctx context.Context, input ReleaseInput) (models.ResourceHistory, error)
	DeactivateResource(ctx context.Context, resourceID string) (models.Resource, error)
	GetOccupancy(ctx context.Context, resourceID string) (models.Occupancy, bool, error)
	ListOccupancies(ctx context.Context, filter OccupancyFilter) ([]models.Occupancy, error)
	ListResourceHistory(ctx context.Context, filter HistoryFilter) ([]models.ResourceHistory, error)
}

type Catalog interface {
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	GetResource(ctx context.Context, resourceID string) (models.Resource, error)
	GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error)
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
}

type Store interface {
	TurnStore
	Ledger
	Catalog
	Ping(ctx context.Context) error
}
