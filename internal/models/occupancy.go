package models

import "time"

// Clinical sub-states of an occupied resource.
const (
	OccupancyOccupied        = "OCUPADO"
	OccupancyHospitalization = "HOSPITALIZACION"
	OccupancySurgery         = "QUIROFANO"
	OccupancyRecovery        = "RECUPERACION"
	OccupancyTherapy         = "TERAPIA"
	OccupancyEmergency       = "URGENCIAS"
	OccupancyMaintenance     = "MANTENIMIENTO"
)

var OccupancyStatuses = []string{
	OccupancyHospitalization,
	OccupancySurgery,
	OccupancyRecovery,
	OccupancyTherapy,
	OccupancyEmergency,
	OccupancyMaintenance,
	OccupancyOccupied,
}

// Release outcomes.
const (
	OutcomeAttended  = "ATENDIDO"
	OutcomeCancelled = "CANCELADO"
	OutcomeNoShow    = "NO_SE_PRESENTO"
)

var ReleaseOutcomes = []string{OutcomeAttended, OutcomeCancelled, OutcomeNoShow}

type Occupancy struct {
	OccupancyID    string     `json:"occupancy_id"`
	ResourceID     string     `json:"resource_id"`
	PatientName    string     `json:"patient_name"`
	PatientSurname string     `json:"patient_surname"`
	Phone          string     `json:"phone,omitempty"`
	DoctorID       *string    `json:"doctor_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	AssignedBy     string     `json:"assigned_by,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`

	ResourceName string       `json:"resource_name,omitempty"`
	ResourceCode string       `json:"resource_code,omitempty"`
	ResourceType ResourceType `json:"resource_type,omitempty"`
	DoctorName   string       `json:"doctor_name,omitempty"`
	Specialty    string       `json:"specialty,omitempty"`
}

// ResourceHistory is the immutable record written when an occupancy window
// ends. Resource and doctor fields are copied so the row outlives renames.
type ResourceHistory struct {
	HistoryID       string       `json:"history_id"`
	TurnID          *string      `json:"turn_id,omitempty"`
	ResourceID      string       `json:"resource_id"`
	ResourceName    string       `json:"resource_name"`
	ResourceType    ResourceType `json:"resource_type"`
	PatientName     string       `json:"patient_name"`
	PatientSurname  string       `json:"patient_surname,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	DoctorID        *string      `json:"doctor_id,omitempty"`
	DoctorName      string       `json:"doctor_name,omitempty"`
	Specialty       string       `json:"specialty,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         time.Time    `json:"ended_at"`
	DurationMinutes int          `json:"duration_minutes"`
	Outcome         string       `json:"outcome"`
	Notes           string       `json:"notes,omitempty"`
}
