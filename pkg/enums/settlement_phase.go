package enums

// SettlementPhase is the signed category under which a reservation's
// quantity/amount is folded into the daily aggregates.
type SettlementPhase string

const (
	SettlementPhasePickedPlus     SettlementPhase = "picked_plus"
	SettlementPhaseSelfPickupPlus SettlementPhase = "self_pickup_ready_plus"
	SettlementPhaseNoShowMinus    SettlementPhase = "no_show_minus"
)

// Sign returns +1 or -1 depending on whether the phase adds to or subtracts
// from the daily aggregate.
func (p SettlementPhase) Sign() int {
	if p == SettlementPhaseNoShowMinus {
		return -1
	}
	return 1
}

// String implements fmt.Stringer.
func (p SettlementPhase) String() string {
	return string(p)
}

// IsValid reports whether the value is a known SettlementPhase.
func (p SettlementPhase) IsValid() bool {
	switch p {
	case SettlementPhasePickedPlus, SettlementPhaseSelfPickupPlus, SettlementPhaseNoShowMinus:
		return true
	}
	return false
}

// PhaseForReservationStatus maps a settlement-relevant reservation status to
// its phase. The second return is false for statuses that never settle.
func PhaseForReservationStatus(status ReservationStatus) (SettlementPhase, bool) {
	switch status {
	case ReservationStatusPicked:
		return SettlementPhasePickedPlus, true
	case ReservationStatusSelfPickReady:
		return SettlementPhaseSelfPickupPlus, true
	case ReservationStatusNoShow:
		return SettlementPhaseNoShowMinus, true
	}
	return "", false
}
