package clocksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteRecord is the server-authoritative view returned by the backend.
// Timestamps here are what the conflict resolver trusts.
type RemoteRecord struct {
	TimesheetID     string       `json:"id,omitempty"`
	CheckInTime     *time.Time   `json:"check_in_time,omitempty"`
	CheckOutTime    *time.Time   `json:"check_out_time,omitempty"`
	OvertimeMinutes int          `json:"overtime_minutes,omitempty"`
	Shift           *ShiftRecord `json:"shift,omitempty"`
}

type ShiftRecord struct {
	ShiftID    string    `json:"id"`
	EmployeeID string    `json:"employee_id,omitempty"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Note       string    `json:"note,omitempty"`
}

// Gateway is the consumed transport to the system of record. Replaying an
// operation whose ID the backend has already applied must be a remote no-op;
// the operation ID doubles as the idempotency key.
//
// Failures are classified through errors.Is: ErrNetwork (retryable),
// ErrValidation and ErrPermission (terminal), or a *ConflictError carrying
// the remote record.
type Gateway interface {
	ApplyOperation(ctx context.Context, op Operation) (RemoteRecord, error)
}

type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPGateway builds the HTTP implementation of Gateway. The caller (the
// coordinator) bounds each call with a context deadline; the embedded client
// timeout is only a backstop.
func NewHTTPGateway(baseURL, token string, httpClient *http.Client) *HTTPGateway {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGateway{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

func (g *HTTPGateway) ApplyOperation(ctx context.Context, op Operation) (RemoteRecord, error) {
	switch p := op.Payload.(type) {
	case CheckInPayload:
		return g.doJSON(ctx, http.MethodPost, "/v1/timesheets", op, p)
	case CheckOutPayload:
		path := fmt.Sprintf("/v1/timesheets/%s/check-out", url.PathEscape(p.TimesheetID))
		return g.doJSON(ctx, http.MethodPatch, path, op, p)
	case ShiftUpdatePayload:
		path := fmt.Sprintf("/v1/shifts/%s", url.PathEscape(p.ShiftID))
		return g.doJSON(ctx, http.MethodPatch, path, op, p)
	default:
		return RemoteRecord{}, fmt.Errorf("%w: unsupported operation kind %q", ErrInvalidInput, op.Kind())
	}
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, op Operation, body any) (RemoteRecord, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return RemoteRecord{}, err
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return RemoteRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", op.ID)
	if op.OrganizationID != "" {
		req.Header.Set("X-Organization-Id", op.OrganizationID)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Transport failures and expired deadlines are both retryable.
		return RemoteRecord{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return RemoteRecord{}, fmt.Errorf("%w: %v", ErrNetwork, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		var record RemoteRecord
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &record); err != nil {
				return RemoteRecord{}, fmt.Errorf("%w: %v", ErrNetwork, err)
			}
		}
		return record, nil
	}

	if resp.StatusCode == http.StatusConflict {
		var record RemoteRecord
		_ = json.Unmarshal(payload, &record)
		return RemoteRecord{}, &ConflictError{Remote: record}
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	return RemoteRecord{}, &GatewayError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
		class:      classifyStatus(resp.StatusCode),
	}
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrPermission
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return ErrNetwork
	case status >= 500:
		return ErrNetwork
	default:
		return ErrValidation
	}
}
