// Package clocksync implements the offline mutation queue for time-clock
// events and the coordinator that replays queued mutations against the
// remote system of record once connectivity allows.
package clocksync

import (
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindCheckIn     Kind = "check_in"
	KindCheckOut    Kind = "check_out"
	KindShiftUpdate Kind = "shift_update"
)

type OpStatus string

const (
	StatusPending    OpStatus = "pending"
	StatusProcessing OpStatus = "processing"
	StatusSent       OpStatus = "sent"
	StatusFailed     OpStatus = "failed"
)

// Payload is the closed set of mutation payloads. Each variant carries its
// own strongly typed fields; dispatch happens by type switch, never by
// comparing raw strings from the wire.
type Payload interface {
	Kind() Kind
	// EntityKey identifies the logical entity the mutation targets.
	// Operations sharing a key must reach the remote in enqueue order.
	EntityKey() string
}

type CheckInPayload struct {
	EmployeeID string    `json:"employeeId"`
	ShiftID    string    `json:"shiftId,omitempty"`
	ClockInAt  time.Time `json:"clockInAt"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
}

func (CheckInPayload) Kind() Kind { return KindCheckIn }

func (p CheckInPayload) EntityKey() string { return "timesheet/" + p.EmployeeID }

type CheckOutPayload struct {
	EmployeeID  string    `json:"employeeId"`
	TimesheetID string    `json:"timesheetId"`
	ClockOutAt  time.Time `json:"clockOutAt"`
}

func (CheckOutPayload) Kind() Kind { return KindCheckOut }

func (p CheckOutPayload) EntityKey() string { return "timesheet/" + p.EmployeeID }

type ShiftUpdatePayload struct {
	ShiftID    string    `json:"shiftId"`
	EmployeeID string    `json:"employeeId,omitempty"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	Note       string    `json:"note,omitempty"`
}

func (ShiftUpdatePayload) Kind() Kind { return KindShiftUpdate }

func (p ShiftUpdatePayload) EntityKey() string { return "shift/" + p.ShiftID }

// Operation is a single staged mutation awaiting remote application.
// Created by a producer with StatusPending; mutated only by the coordinator;
// removed on success or retained under StatusFailed for inspection.
type Operation struct {
	ID             string
	OrganizationID string
	EnqueuedAt     time.Time
	RetryCount     int
	Status         OpStatus
	LastError      string
	Payload        Payload
}

// EntityKey returns the causal-ordering key of the operation's payload.
func (op Operation) EntityKey() string {
	if op.Payload == nil {
		return ""
	}
	return op.Payload.EntityKey()
}

// Kind returns the payload kind, or the empty Kind for a zero operation.
func (op Operation) Kind() Kind {
	if op.Payload == nil {
		return ""
	}
	return op.Payload.Kind()
}

type operationEnvelope struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	OrganizationID string          `json:"organizationId,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
	RetryCount     int             `json:"retryCount"`
	Status         OpStatus        `json:"status"`
	LastError      string          `json:"lastError,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	if op.Payload == nil {
		return nil, fmt.Errorf("%w: operation %s has no payload", ErrInvalidInput, op.ID)
	}
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(operationEnvelope{
		ID:             op.ID,
		Kind:           op.Payload.Kind(),
		OrganizationID: op.OrganizationID,
		EnqueuedAt:     op.EnqueuedAt,
		RetryCount:     op.RetryCount,
		Status:         op.Status,
		LastError:      op.LastError,
		Payload:        payload,
	})
}

func (op *Operation) UnmarshalJSON(data []byte) error {
	var envelope operationEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	payload, err := decodePayload(envelope.Kind, envelope.Payload)
	if err != nil {
		return err
	}
	op.ID = envelope.ID
	op.OrganizationID = envelope.OrganizationID
	op.EnqueuedAt = envelope.EnqueuedAt
	op.RetryCount = envelope.RetryCount
	op.Status = envelope.Status
	op.LastError = envelope.LastError
	op.Payload = payload
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindCheckIn:
		var p CheckInPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindCheckOut:
		var p CheckOutPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindShiftUpdate:
		var p ShiftUpdatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown operation kind %q", ErrInvalidInput, kind)
	}
}
