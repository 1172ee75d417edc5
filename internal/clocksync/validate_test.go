package clocksync

import (
	"errors"
	"testing"
	"time"
)

func TestValidatePayloadAcceptsWellFormedPayloads(t *testing.T) {
	lat := 40.7
	lng := -74.0
	payloads := []Payload{
		CheckInPayload{
			EmployeeID: "emp_1",
			ShiftID:    "shift_1",
			ClockInAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
			Latitude:   &lat,
			Longitude:  &lng,
		},
		CheckOutPayload{
			EmployeeID:  "emp_1",
			TimesheetID: "ts_1",
			ClockOutAt:  time.Date(2026, 4, 1, 17, 0, 0, 0, time.UTC),
		},
		ShiftUpdatePayload{
			ShiftID:  "shift_1",
			StartsAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
			EndsAt:   time.Date(2026, 4, 2, 17, 0, 0, 0, time.UTC),
			Note:     "swapped with emp_2",
		},
	}
	for _, p := range payloads {
		if err := ValidatePayload(p); err != nil {
			t.Fatalf("%s payload rejected: %v", p.Kind(), err)
		}
	}
}

func TestValidatePayloadRejectsMissingEmployeeID(t *testing.T) {
	p := CheckInPayload{ClockInAt: time.Now().UTC()}
	err := ValidatePayload(p)
	if err == nil {
		t.Fatalf("expected rejection for missing employeeId")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidatePayloadRejectsMissingTimesheetID(t *testing.T) {
	p := CheckOutPayload{EmployeeID: "emp_1", ClockOutAt: time.Now().UTC()}
	if err := ValidatePayload(p); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidatePayloadRejectsOutOfRangeCoordinates(t *testing.T) {
	lat := 123.4
	p := CheckInPayload{EmployeeID: "emp_1", ClockInAt: time.Now().UTC(), Latitude: &lat}
	if err := ValidatePayload(p); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for latitude 123.4, got %v", err)
	}
}

func TestValidatePayloadRejectsNil(t *testing.T) {
	if err := ValidatePayload(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil payload, got %v", err)
	}
}
