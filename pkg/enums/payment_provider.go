package enums

// PaymentProvider identifies the configured external payment gateway.
type PaymentProvider string

const (
	PaymentProviderKakaoPay PaymentProvider = "kakaopay"
	// PaymentProviderNone is recorded for cash/no-gateway environments where
	// checkout short-circuits straight to paid.
	PaymentProviderNone PaymentProvider = "none"
)

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}
