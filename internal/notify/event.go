// Package notify carries committed turn changes to displays and worklists.
// Delivery is best effort: the engine logs failures and moves on.
package notify

import (
	"context"
	"errors"
	"time"

	"qms/turn-service/internal/models"
)

type Kind string

const (
	TurnCreated   Kind = "TURN_CREATED"
	TurnCalled    Kind = "TURN_CALLED"
	TurnStarted   Kind = "TURN_STARTED"
	TurnFinished  Kind = "TURN_FINISHED"
	TurnCancelled Kind = "TURN_CANCELLED"
	TurnNoShow    Kind = "TURN_NO_SHOW"
	QueueUpdate   Kind = "QUEUE_UPDATE"
	DisplayUpdate Kind = "DISPLAY_UPDATE"
)

// Payload is the wire shape of a turn inside an event.
type Payload struct {
	TurnID       string     `json:"turn_id"`
	Code         string     `json:"code"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	PatientName  string     `json:"patient_name,omitempty"`
	DoctorName   string     `json:"doctor_name,omitempty"`
	OfficeNumber string     `json:"office_number,omitempty"`
	ServiceName  string     `json:"service_name,omitempty"`
	ResourceName string     `json:"resource_name,omitempty"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

type Event struct {
	Kind      Kind      `json:"type"`
	ServiceID string    `json:"service_id,omitempty"`
	DoctorID  string    `json:"doctor_id,omitempty"`
	Turn      *Payload  `json:"turn,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ForTurn builds an event describing turn at time at.
func ForTurn(kind Kind, turn models.Turn, at time.Time) Event {
	at = at.UTC()
	event := Event{
		Kind:      kind,
		ServiceID: turn.ServiceID,
		Timestamp: at,
		Turn: &Payload{
			TurnID:       turn.TurnID,
			Code:         turn.Code,
			Status:       string(turn.Status),
			Priority:     turn.Priority,
			PatientName:  turn.PatientDisplayName,
			DoctorName:   turn.DoctorName,
			OfficeNumber: turn.OfficeNumber,
			ServiceName:  turn.ServiceName,
			ResourceName: turn.ResourceName,
			CalledAt:     turn.CalledAt,
			Timestamp:    at,
		},
	}
	if event.Turn.PatientName == "" {
		event.Turn.PatientName = turn.PatientName
	}
	if turn.DoctorID != nil {
		event.DoctorID = *turn.DoctorID
	}
	return event
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Func adapts a function to Notifier.
type Func func(ctx context.Context, event Event) error

func (f Func) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
