package clocksync

import "fmt"

// Resolve merges a locally staged payload with the authoritative remote
// record for the same entity. It is pure and deterministic: identical inputs
// always yield identical output, and it is safe to call repeatedly.
//
// Rules per kind:
//   - CheckIn: the remote check-in time wins whenever the remote already
//     holds one. The server clock is authoritative for the canonical
//     in-time, so client clock skew can never overwrite it.
//   - CheckOut: later timestamp wins, so a correction recorded on either
//     side survives.
//   - ShiftUpdate: the remote shift wins in full; local schedule edits are
//     advisory only.
func Resolve(local Payload, remote RemoteRecord) (Payload, error) {
	switch p := local.(type) {
	case CheckInPayload:
		if remote.CheckInTime != nil {
			p.ClockInAt = *remote.CheckInTime
		}
		return p, nil
	case CheckOutPayload:
		if remote.CheckOutTime != nil && remote.CheckOutTime.After(p.ClockOutAt) {
			p.ClockOutAt = *remote.CheckOutTime
		}
		return p, nil
	case ShiftUpdatePayload:
		if remote.Shift != nil {
			merged := ShiftUpdatePayload{
				ShiftID:    p.ShiftID,
				EmployeeID: remote.Shift.EmployeeID,
				StartsAt:   remote.Shift.StartsAt,
				EndsAt:     remote.Shift.EndsAt,
				Note:       remote.Shift.Note,
			}
			if remote.Shift.ShiftID != "" {
				merged.ShiftID = remote.Shift.ShiftID
			}
			return merged, nil
		}
		return p, nil
	case nil:
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: cannot resolve payload kind %q", ErrInvalidInput, local.Kind())
	}
}
