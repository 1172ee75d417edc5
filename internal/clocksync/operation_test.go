package clocksync

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestOperationEnvelopeRoundTrip(t *testing.T) {
	lat := 52.52
	lng := 13.405
	original := Operation{
		ID:             "op_1",
		OrganizationID: "org_9",
		EnqueuedAt:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		RetryCount:     2,
		Status:         StatusPending,
		LastError:      "network failure",
		Payload: CheckInPayload{
			EmployeeID: "emp_7",
			ShiftID:    "shift_3",
			ClockInAt:  time.Date(2026, 3, 14, 8, 58, 12, 0, time.UTC),
			Latitude:   &lat,
			Longitude:  &lng,
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Operation
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.ID != original.ID || decoded.RetryCount != 2 || decoded.Status != StatusPending {
		t.Fatalf("envelope fields lost: %+v", decoded)
	}
	payload, ok := decoded.Payload.(CheckInPayload)
	if !ok {
		t.Fatalf("expected CheckInPayload, got %T", decoded.Payload)
	}
	if payload.EmployeeID != "emp_7" || !payload.ClockInAt.Equal(time.Date(2026, 3, 14, 8, 58, 12, 0, time.UTC)) {
		t.Fatalf("payload fields lost: %+v", payload)
	}
	if payload.Latitude == nil || *payload.Latitude != lat {
		t.Fatalf("expected latitude %v, got %v", lat, payload.Latitude)
	}
}

func TestOperationUnmarshalRejectsUnknownKind(t *testing.T) {
	raw := `{"id":"op_x","kind":"clock_smash","enqueuedAt":"2026-03-14T09:00:00Z","status":"pending","payload":{}}`
	var op Operation
	err := json.Unmarshal([]byte(raw), &op)
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOperationMarshalRequiresPayload(t *testing.T) {
	op := Operation{ID: "op_nil", Status: StatusPending}
	if _, err := json.Marshal(op); err == nil {
		t.Fatalf("expected marshal to fail without payload")
	}
}

func TestEntityKeysGroupByTargetEntity(t *testing.T) {
	checkIn := CheckInPayload{EmployeeID: "emp_1"}
	checkOut := CheckOutPayload{EmployeeID: "emp_1", TimesheetID: "ts_4"}
	if checkIn.EntityKey() != checkOut.EntityKey() {
		t.Fatalf("check-in and check-out for the same employee must share an entity key")
	}
	if !strings.HasPrefix(checkIn.EntityKey(), "timesheet/") {
		t.Fatalf("unexpected timesheet key %q", checkIn.EntityKey())
	}
	shift := ShiftUpdatePayload{ShiftID: "shift_2", EmployeeID: "emp_1"}
	if shift.EntityKey() == checkIn.EntityKey() {
		t.Fatalf("shift updates must not share a key with timesheet mutations")
	}
	if shift.EntityKey() != "shift/shift_2" {
		t.Fatalf("unexpected shift key %q", shift.EntityKey())
	}
}
