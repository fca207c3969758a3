package enums

import "fmt"

// OrderKind distinguishes same-day home delivery from courier shipment.
type OrderKind string

const (
	OrderKindDelivery OrderKind = "delivery"
	OrderKindCourier  OrderKind = "courier"
)

// String implements fmt.Stringer.
func (o OrderKind) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderKind.
func (o OrderKind) IsValid() bool {
	return o == OrderKindDelivery || o == OrderKindCourier
}

// ParseOrderKind converts raw input into an OrderKind.
func ParseOrderKind(value string) (OrderKind, error) {
	kind := OrderKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid order kind %q", value)
	}
	return kind, nil
}
