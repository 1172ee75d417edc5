package clocksync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func checkInOp(id string) Operation {
	return Operation{
		ID:             id,
		OrganizationID: "org_1",
		EnqueuedAt:     time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Status:         StatusPending,
		Payload: CheckInPayload{
			EmployeeID: "emp_1",
			ClockInAt:  time.Date(2026, 6, 1, 8, 59, 0, 0, time.UTC),
		},
	}
}

func TestHTTPGatewayAppliesCheckIn(t *testing.T) {
	var gotIdempotencyKey, gotOrg, gotAuth, gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		gotOrg = r.Header.Get("X-Organization-Id")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		checkIn := time.Date(2026, 6, 1, 8, 59, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode(RemoteRecord{TimesheetID: "ts_9", CheckInTime: &checkIn})
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, "tok_secret", nil)
	record, err := gateway.ApplyOperation(context.Background(), checkInOp("op_1"))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if record.TimesheetID != "ts_9" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/timesheets" {
		t.Fatalf("unexpected route %s %s", gotMethod, gotPath)
	}
	if gotIdempotencyKey != "op_1" {
		t.Fatalf("operation ID must travel as the idempotency key, got %q", gotIdempotencyKey)
	}
	if gotOrg != "org_1" || gotAuth != "Bearer tok_secret" {
		t.Fatalf("missing headers: org=%q auth=%q", gotOrg, gotAuth)
	}
}

func TestHTTPGatewayRoutesCheckOutAndShiftUpdate(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	gateway := NewHTTPGateway(server.URL, "", nil)

	checkOut := Operation{ID: "op_2", Status: StatusPending, Payload: CheckOutPayload{
		EmployeeID: "emp_1", TimesheetID: "ts_9", ClockOutAt: time.Now().UTC(),
	}}
	if _, err := gateway.ApplyOperation(context.Background(), checkOut); err != nil {
		t.Fatalf("check-out apply failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/v1/timesheets/ts_9/check-out" {
		t.Fatalf("unexpected check-out route %s %s", gotMethod, gotPath)
	}

	shift := Operation{ID: "op_3", Status: StatusPending, Payload: ShiftUpdatePayload{
		ShiftID: "shift_4", StartsAt: time.Now().UTC(), EndsAt: time.Now().UTC().Add(8 * time.Hour),
	}}
	if _, err := gateway.ApplyOperation(context.Background(), shift); err != nil {
		t.Fatalf("shift update apply failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/v1/shifts/shift_4" {
		t.Fatalf("unexpected shift route %s %s", gotMethod, gotPath)
	}
}

func TestHTTPGatewayConflictCarriesRemoteRecord(t *testing.T) {
	remoteOut := time.Date(2026, 6, 1, 10, 5, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(RemoteRecord{TimesheetID: "ts_9", CheckOutTime: &remoteOut})
	}))
	defer server.Close()

	gateway := NewHTTPGateway(server.URL, "", nil)
	_, err := gateway.ApplyOperation(context.Background(), checkInOp("op_1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflict.Remote.TimesheetID != "ts_9" || conflict.Remote.CheckOutTime == nil {
		t.Fatalf("remote record lost in conflict: %+v", conflict.Remote)
	}
}

func TestHTTPGatewayClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrPermission},
		{http.StatusForbidden, ErrPermission},
		{http.StatusBadRequest, ErrValidation},
		{http.StatusUnprocessableEntity, ErrValidation},
		{http.StatusTooManyRequests, ErrNetwork},
		{http.StatusRequestTimeout, ErrNetwork},
		{http.StatusInternalServerError, ErrNetwork},
		{http.StatusServiceUnavailable, ErrNetwork},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "err_code", "message": "nope"})
		}))
		gateway := NewHTTPGateway(server.URL, "", nil)
		_, err := gateway.ApplyOperation(context.Background(), checkInOp("op_1"))
		server.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var gerr *GatewayError
		if !errors.As(err, &gerr) || gerr.StatusCode != tc.status {
			t.Fatalf("status %d: expected GatewayError with status, got %v", tc.status, err)
		}
	}
}

func TestHTTPGatewayTransportFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	gateway := NewHTTPGateway(server.URL, "", nil)
	_, err := gateway.ApplyOperation(context.Background(), checkInOp("op_1"))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for refused connection, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("transport failure must be retryable")
	}
}

func TestHTTPGatewayHonorsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	gateway := NewHTTPGateway(server.URL, "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := gateway.ApplyOperation(ctx, checkInOp("op_1"))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected deadline to classify as ErrNetwork, got %v", err)
	}
}
