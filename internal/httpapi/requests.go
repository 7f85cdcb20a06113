package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"qms/turn-service/internal/models"
)

var isUUID = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
})

func occupancyStatusRule() validation.Rule {
	values := make([]interface{}, len(models.OccupancyStatuses))
	for i, s := range models.OccupancyStatuses {
		values[i] = s
	}
	return validation.In(values...).Error("must be a known occupancy status")
}

func outcomeRule() validation.Rule {
	values := make([]interface{}, len(models.ReleaseOutcomes))
	for i, s := range models.ReleaseOutcomes {
		values[i] = s
	}
	return validation.In(values...).Error("must be a known release outcome")
}

var resourceTypeRule = validation.In(models.ResourceConsultingRoom, models.ResourceHospitalizationRoom).
	Error("must be CONSULTORIO or HABITACION")

type createTurnRequest struct {
	RequestID    string `json:"request_id"`
	ServiceID    string `json:"service_id"`
	PatientID    string `json:"patient_id"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	DoctorID     string `json:"doctor_id"`
	ResourceID   string `json:"resource_id"`
	Priority     int    `json:"priority"`
	Notes        string `json:"notes"`
}

func (r *createTurnRequest) normalize() {
	r.RequestID = strings.TrimSpace(r.RequestID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.PatientPhone = strings.TrimSpace(r.PatientPhone)
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	r.ResourceID = strings.TrimSpace(r.ResourceID)
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r createTurnRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RequestID, validation.Length(0, 128)),
		validation.Field(&r.ServiceID, validation.Required, isUUID),
		validation.Field(&r.PatientID, isUUID,
			validation.When(r.PatientName == "", validation.Required.Error("patient_id or patient_name is required"))),
		validation.Field(&r.PatientName, validation.Length(0, 200)),
		validation.Field(&r.PatientPhone, validation.Length(0, 32)),
		validation.Field(&r.DoctorID, isUUID),
		validation.Field(&r.ResourceID, isUUID),
		validation.Field(&r.Priority, validation.Min(models.PriorityNormal), validation.Max(models.PriorityUrgent)),
		validation.Field(&r.Notes, validation.Length(0, 1000)),
	)
}

type turnActionRequest struct {
	Notes    string `json:"notes"`
	DoctorID string `json:"doctor_id"`
}

func (r turnActionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Notes, validation.Length(0, 1000)),
		validation.Field(&r.DoctorID, isUUID),
	)
}

type assignRequest struct {
	PatientName    string     `json:"patient_name"`
	PatientSurname string     `json:"patient_surname"`
	Phone          string     `json:"phone"`
	DoctorID       string     `json:"doctor_id"`
	StartedAt      *time.Time `json:"started_at"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes"`
}

func (r assignRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PatientName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.PatientSurname, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
		validation.Field(&r.DoctorID, isUUID),
		validation.Field(&r.Status, occupancyStatusRule()),
		validation.Field(&r.Notes, validation.Length(0, 1000)),
	)
}

// updateOccupancyRequest is a patch; absent fields stay as they are.
type updateOccupancyRequest struct {
	PatientName    *string `json:"patient_name"`
	PatientSurname *string `json:"patient_surname"`
	Phone          *string `json:"phone"`
	DoctorID       *string `json:"doctor_id"`
	Status         *string `json:"status"`
	Notes          *string `json:"notes"`
}

func (r updateOccupancyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PatientName, validation.NilOrNotEmpty, validation.Length(0, 200)),
		validation.Field(&r.PatientSurname, validation.NilOrNotEmpty, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
		validation.Field(&r.Status, occupancyStatusRule()),
		validation.Field(&r.Notes, validation.Length(0, 1000)),
	)
}

type releaseRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

func (r releaseRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Outcome, outcomeRule()),
		validation.Field(&r.Notes, validation.Length(0, 1000)),
	)
}

// writeValidation reports ozzo field errors as details, falling back to
// a plain message for anything else.
func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for field, fe := range fieldErrs {
			details[field] = fe.Error()
		}
		writeErrorDetails(w, requestIDFromRequest(r), http.StatusBadRequest, "validation_error", "invalid request", details)
		return
	}
	writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "validation_error", err.Error())
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
