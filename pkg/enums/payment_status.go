package enums

// PaymentStatus tracks a single payment attempt against the gateway.
type PaymentStatus string

const (
	PaymentStatusReady           PaymentStatus = "ready"
	PaymentStatusApproved        PaymentStatus = "approved"
	PaymentStatusCanceled        PaymentStatus = "canceled"
	PaymentStatusFailed          PaymentStatus = "failed"
	PaymentStatusPartialCanceled PaymentStatus = "partial_canceled"
)

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusReady, PaymentStatusApproved, PaymentStatusCanceled,
		PaymentStatusFailed, PaymentStatusPartialCanceled:
		return true
	}
	return false
}
