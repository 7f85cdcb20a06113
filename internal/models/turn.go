package models

import "time"

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusWaiting   Status = "WAITING"
	StatusCalled    Status = "CALLED"
	StatusInService Status = "IN_SERVICE"
	StatusDone      Status = "DONE"
	StatusNoShow    Status = "NO_SHOW"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses are the statuses whose holders keep their code reserved.
var ActiveStatuses = []Status{StatusCreated, StatusWaiting, StatusCalled, StatusInService}

func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusWaiting, StatusCalled, StatusInService, StatusDone, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

const (
	PriorityNormal       = 0
	PriorityPreferential = 1
	PriorityUrgent       = 2
)

type Turn struct {
	TurnID           string     `json:"turn_id"`
	Code             string     `json:"code"`
	PatientID        *string    `json:"patient_id,omitempty"`
	PatientName      string     `json:"patient_name,omitempty"`
	PatientPhone     string     `json:"patient_phone,omitempty"`
	ServiceID        string     `json:"service_id"`
	DoctorID         *string    `json:"doctor_id,omitempty"`
	ResourceID       *string    `json:"resource_id,omitempty"`
	Status           Status     `json:"status"`
	Priority         int        `json:"priority"`
	Notes            string     `json:"notes,omitempty"`
	RequestID        string     `json:"request_id,omitempty"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	WaitingAt        *time.Time `json:"waiting_at,omitempty"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	ServiceStartedAt *time.Time `json:"service_started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`

	// Display fields resolved from the catalog at read time.
	PatientDisplayName string `json:"patient_display_name,omitempty"`
	ServiceName        string `json:"service_name,omitempty"`
	DoctorName         string `json:"doctor_name,omitempty"`
	OfficeNumber       string `json:"office_number,omitempty"`
	ResourceName       string `json:"resource_name,omitempty"`
}

type TurnHistory struct {
	TurnID         string    `json:"turn_id"`
	Seq            int       `json:"seq"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	NewStatus      Status    `json:"new_status"`
	ChangedBy      string    `json:"changed_by"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	PrevHash       string    `json:"prev_hash"`
	Hash           string    `json:"hash"`
}

// TurnAudit is a turn's history together with the result of replaying its
// hash chain.
type TurnAudit struct {
	TurnID   string        `json:"turn_id"`
	Status   Status        `json:"status"`
	Verified bool          `json:"verified"`
	Problem  string        `json:"problem,omitempty"`
	Entries  []TurnHistory `json:"entries"`
}
