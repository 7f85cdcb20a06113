package models

type Service struct {
	ServiceID        string `json:"service_id"`
	Name             string `json:"name"`
	Prefix           string `json:"prefix"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Active           bool   `json:"active"`
}

type ResourceType string

const (
	ResourceConsultingRoom      ResourceType = "CONSULTORIO"
	ResourceHospitalizationRoom ResourceType = "HABITACION"
)

type Resource struct {
	ResourceID string       `json:"resource_id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Type       ResourceType `json:"type"`
	Location   string       `json:"location,omitempty"`
	Active     bool         `json:"active"`
}

type Doctor struct {
	DoctorID     string `json:"doctor_id"`
	FullName     string `json:"full_name"`
	Specialty    string `json:"specialty,omitempty"`
	OfficeNumber string `json:"office_number,omitempty"`
}

type Patient struct {
	PatientID      string `json:"patient_id"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone,omitempty"`
	IsPreferential bool   `json:"is_preferential"`
}
