package store

import (
	"math"
	"strconv"
	"strings"
	"time"

	"qms/turn-service/internal/models"
)

// ResolvePriority raises the requested priority to preferential for
// preferential patients. It never lowers an explicit request.
func ResolvePriority(requested int, patient *models.Patient) int {
	priority := requested
	if patient != nil && patient.IsPreferential && priority < models.PriorityPreferential {
		priority = models.PriorityPreferential
	}
	return priority
}

// DurationMinutes rounds the occupancy window to whole minutes.
func DurationMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}

func ValidateCreate(input CreateTurnInput) error {
	if strings.TrimSpace(input.ServiceID) == "" {
		return Validation("service_id is required")
	}
	if strings.TrimSpace(input.PatientID) == "" && strings.TrimSpace(input.PatientName) == "" {
		return Validation("either patient_id or patient_name is required")
	}
	if input.Priority < models.PriorityNormal || input.Priority > models.PriorityUrgent {
		return Validation("priority must be between 0 and 2", "priority", strconv.Itoa(input.Priority))
	}
	if strings.TrimSpace(input.Actor) == "" {
		return Validation("actor is required")
	}
	return nil
}

func ValidateAssign(input AssignInput) error {
	if strings.TrimSpace(input.ResourceID) == "" {
		return Validation("resource_id is required")
	}
	if strings.TrimSpace(input.PatientName) == "" || strings.TrimSpace(input.PatientSurname) == "" {
		return Validation("patient_name and patient_surname are required", "resource_id", input.ResourceID)
	}
	if input.Status != "" && !contains(models.OccupancyStatuses, input.Status) {
		return Validation("unknown occupancy status", "status", input.Status)
	}
	if strings.TrimSpace(input.Actor) == "" {
		return Validation("actor is required")
	}
	return nil
}

func ValidateOccupancyPatch(input UpdateOccupancyInput) error {
	if strings.TrimSpace(input.ResourceID) == "" {
		return Validation("resource_id is required")
	}
	if input.PatientName != nil && strings.TrimSpace(*input.PatientName) == "" {
		return Validation("patient_name cannot be blank", "resource_id", input.ResourceID)
	}
	if input.PatientSurname != nil && strings.TrimSpace(*input.PatientSurname) == "" {
		return Validation("patient_surname cannot be blank", "resource_id", input.ResourceID)
	}
	if input.Status != nil && !contains(models.OccupancyStatuses, *input.Status) {
		return Validation("unknown occupancy status", "status", *input.Status)
	}
	return nil
}

func ValidateRelease(input ReleaseInput) error {
	if strings.TrimSpace(input.ResourceID) == "" {
		return Validation("resource_id is required")
	}
	if input.Outcome != "" && !contains(models.ReleaseOutcomes, input.Outcome) {
		return Validation("unknown release outcome", "outcome", input.Outcome)
	}
	return nil
}

// PatientDisplayName prefers the registered patient's name over the inline one.
func PatientDisplayName(turn models.Turn, patient *models.Patient) string {
	if patient != nil && patient.FullName != "" {
		return patient.FullName
	}
	return turn.PatientName
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
