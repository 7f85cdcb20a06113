package store

import (
	"errors"
	"testing"

	"qms/turn-service/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from  models.Status
		to    models.Status
		valid bool
	}{
		{models.StatusCreated, models.StatusWaiting, true},
		{models.StatusCreated, models.StatusCancelled, true},
		{models.StatusCreated, models.StatusCalled, false},
		{models.StatusWaiting, models.StatusCalled, true},
		{models.StatusWaiting, models.StatusCancelled, true},
		{models.StatusWaiting, models.StatusInService, false},
		{models.StatusWaiting, models.StatusNoShow, false},
		{models.StatusCalled, models.StatusInService, true},
		{models.StatusCalled, models.StatusNoShow, true},
		{models.StatusCalled, models.StatusWaiting, true},
		{models.StatusCalled, models.StatusCancelled, true},
		{models.StatusCalled, models.StatusDone, false},
		{models.StatusInService, models.StatusDone, true},
		{models.StatusInService, models.StatusCancelled, true},
		{models.StatusInService, models.StatusWaiting, false},
		{models.StatusDone, models.StatusWaiting, false},
		{models.StatusNoShow, models.StatusCalled, false},
		{models.StatusCancelled, models.StatusWaiting, false},
		{models.Status("BOGUS"), models.StatusWaiting, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.from, tt.to); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	statuses := []models.Status{
		models.StatusCreated, models.StatusWaiting, models.StatusCalled, models.StatusInService,
		models.StatusDone, models.StatusNoShow, models.StatusCancelled,
	}
	for _, from := range statuses {
		exits := AllowedTransitions(from)
		if from.Terminal() && len(exits) != 0 {
			t.Fatalf("terminal status %s has exits %v", from, exits)
		}
		if !from.Terminal() && len(exits) == 0 {
			t.Fatalf("active status %s has no exits", from)
		}
	}
}

func TestCheckTransitionCarriesPair(t *testing.T) {
	err := CheckTransition("turn-1", models.StatusDone, models.StatusWaiting)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	fields := FieldsOf(err)
	if fields["from"] != "DONE" || fields["to"] != "WAITING" || fields["turn_id"] != "turn-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if err := CheckTransition("turn-1", models.StatusWaiting, models.StatusCalled); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestTimestampColumn(t *testing.T) {
	cases := map[models.Status]string{
		models.StatusWaiting:   "waiting_at",
		models.StatusCalled:    "called_at",
		models.StatusInService: "service_started_at",
		models.StatusDone:      "finished_at",
		models.StatusNoShow:    "finished_at",
		models.StatusCancelled: "finished_at",
		models.StatusCreated:   "",
	}
	for status, want := range cases {
		if got := TimestampColumn(status); got != want {
			t.Fatalf("TimestampColumn(%s)=%q, want %q", status, got, want)
		}
	}
}
