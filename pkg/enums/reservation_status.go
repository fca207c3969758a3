package enums

import "fmt"

// ReservationStatus tracks the lifecycle of a stock reservation.
type ReservationStatus string

const (
	ReservationStatusPending       ReservationStatus = "pending"
	ReservationStatusPicked        ReservationStatus = "picked"
	ReservationStatusSelfPickReady ReservationStatus = "self_pick_ready"
	ReservationStatusNoShow        ReservationStatus = "no_show"
	ReservationStatusCanceled      ReservationStatus = "canceled"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusPicked,
	ReservationStatusSelfPickReady,
	ReservationStatusNoShow,
	ReservationStatusCanceled,
}

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReservationStatus.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (r ReservationStatus) IsTerminal() bool {
	return r != ReservationStatusPending
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
